// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"github.com/monoxr/runtime/internal/config"
	"github.com/monoxr/runtime/internal/telemetry"
	"github.com/monoxr/runtime/wsi"
)

// openDebugView honors spec.md §6's "debug views" override key
// (cfg.DebugViews). It is a best-effort seam: the only wsi backend
// this module wires is the dummy one (DESIGN.md "wsi (kept,
// trimmed)"), so NewWindow always fails here. The service still logs
// the attempt and continues headless rather than treating it as an
// init failure, since a direct-mode HMD runtime has no desktop window
// by default.
func openDebugView(cfg config.Config) (wsi.Window, func()) {
	if !cfg.DebugViews {
		return nil, func() {}
	}
	log := telemetry.Log
	wsi.SetAppName("monxrtd")
	win, err := wsi.NewWindow(1280, 800, "monxrtd debug view")
	if err != nil {
		log.Warn().Err(err).Msg("debug views requested but no wsi backend is wired in this build")
		return nil, func() {}
	}
	log.Info().Str("platform", platformName(wsi.PlatformInUse())).Msg("debug view window opened")
	return win, func() { win.Close() }
}

func platformName(p wsi.Platform) string {
	switch p {
	case wsi.None:
		return "none"
	case wsi.Android:
		return "android"
	case wsi.Wayland:
		return "wayland"
	case wsi.Win32:
		return "win32"
	case wsi.XCB:
		return "xcb"
	default:
		return "unknown"
	}
}
