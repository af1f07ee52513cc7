// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package wsi

// The runtime's native compositor drives the HMD directly (direct mode);
// it has no need for a desktop window manager. The dummy backend is thus
// the only backend wired into the service build — a debug windowed view
// (MONXRT_DEBUG_VIEWS) is a platform-specific collaborator outside this
// module's scope (see spec's window-backend Non-goal).
func init() {
	initDummy()
}
