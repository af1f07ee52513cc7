// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package ipc implements the control-socket wire protocol described in
// spec §4.B/§6: length-prefixed request/reply/event framing over a
// unix-domain socket, with SCM_RIGHTS file-descriptor passing for
// GPU-importable swapchain images.
package ipc

import "fmt"

// Kind classifies a Fault (spec §7 "Kinds").
type Kind int

// Fault kinds.
const (
	Validation Kind = iota
	CallOrder
	ResourceExhausted
	Timeout
	IPCFailure
	Runtime
	DeviceLost
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION"
	case CallOrder:
		return "CALL_ORDER"
	case ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case Timeout:
		return "TIMEOUT"
	case IPCFailure:
		return "IPC_FAILURE"
	case Runtime:
		return "RUNTIME"
	case DeviceLost:
		return "DEVICE_LOST"
	default:
		return "UNKNOWN"
	}
}

// maxMsgLen is the diagnostic message truncation limit (spec §7 "every
// failing request returns {status, diagnostic message <= 256 bytes}").
const maxMsgLen = 256

// Fault is the error type every request-handling path returns; it
// carries enough information to build the reply's status word and
// diagnostic message.
type Fault struct {
	Kind Kind
	Msg  string
}

// NewFault builds a Fault, truncating msg to the wire's 256-byte limit.
func NewFault(kind Kind, format string, args ...any) *Fault {
	msg := fmt.Sprintf(format, args...)
	if len(msg) > maxMsgLen {
		msg = msg[:maxMsgLen]
	}
	return &Fault{Kind: kind, Msg: msg}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

// Fatal reports whether the fault is fatal to the session per spec §7
// ("IPC errors terminate the session cleanly ... Runtime ... fatal to
// session").
func (f *Fault) Fatal() bool {
	switch f.Kind {
	case IPCFailure, Runtime, DeviceLost:
		return true
	default:
		return false
	}
}
