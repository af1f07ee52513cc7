// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package telemetry provides the service's structured logger.
// It plays the same package-level-singleton role as driver's driver
// registry: one process-wide sink, configured once at startup.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. It is safe for concurrent use.
var Log zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	Log = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

// SetVerbose raises or lowers the global log level, mirroring the
// MONXRT_TRACE / MONXRT_VERBOSE_SESSION_LOG debug override keys (§6).
func SetVerbose(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Session returns a logger scoped to a single session id, used by
// internal/session to report state transitions (§4.D) without every
// caller repeating the field.
func Session(sessionID uint64) zerolog.Logger {
	return Log.With().Uint64("session_id", sessionID).Logger()
}

// Client returns a logger scoped to a single client slot index.
func Client(slot int) zerolog.Logger {
	return Log.With().Int("client_slot", slot).Logger()
}

// Render returns the logger used by the dedicated render task.
func Render() zerolog.Logger {
	return Log.With().Str("task", "render").Logger()
}
