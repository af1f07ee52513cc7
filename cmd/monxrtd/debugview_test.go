// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"testing"

	"github.com/monoxr/runtime/internal/config"
	"github.com/monoxr/runtime/wsi"
)

func TestOpenDebugViewDisabledByDefault(t *testing.T) {
	win, closeFn := openDebugView(config.DefaultConfig())
	defer closeFn()
	if win != nil {
		t.Fatalf("expected no window when DebugViews is false")
	}
}

func TestOpenDebugViewFallsBackWithoutABackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DebugViews = true
	win, closeFn := openDebugView(cfg)
	defer closeFn()
	if win != nil {
		t.Fatalf("expected nil window: this build only wires the dummy wsi backend")
	}
}

func TestPlatformNameCoversKnownPlatforms(t *testing.T) {
	cases := map[wsi.Platform]string{
		wsi.None:    "none",
		wsi.Android: "android",
		wsi.Wayland: "wayland",
		wsi.Win32:   "win32",
		wsi.XCB:     "xcb",
	}
	for p, want := range cases {
		if have := platformName(p); have != want {
			t.Errorf("platformName(%d): have %q want %q", p, have, want)
		}
	}
}
