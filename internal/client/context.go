// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package client

import (
	"github.com/monoxr/runtime/internal/events"
	"github.com/monoxr/runtime/internal/pacing"
	"github.com/monoxr/runtime/internal/session"
)

// Context is one connected application's state, held for the lifetime
// of its control-socket worker (spec §4.C). It is destroyed when the
// worker returns or the socket drops; its swapchains are enqueued on
// the shared GC stack rather than freed synchronously.
type Context struct {
	ID                uint64
	ServerThreadIndex  int
	Overlay            bool
	ZOrder             int32

	Session    *session.Session
	Swapchains *SwapchainTable
	Events     *events.Ring
	Timing     *pacing.PerClientHelper

	Visible bool
	Focused bool
}

// New creates a per-client context. serverThreadIndex is the bounded,
// recyclable index (see shm.SlotArena) into the shared-memory
// per-client slot array; it is carried separately from ID because
// spec §4.C treats it as the context's "slot identity" distinct from
// the ever-incrementing protocol-level id.
func New(id uint64, serverThreadIndex int, overlay bool, zOrder int32) *Context {
	ring := events.New(events.DefaultCapacity)
	return &Context{
		ID:                id,
		ServerThreadIndex: serverThreadIndex,
		Overlay:           overlay,
		ZOrder:            zOrder,
		Session:           session.New(ring, overlay, zOrder),
		Swapchains:        NewSwapchainTable(),
		Events:            ring,
		Timing:            pacing.NewPerClientHelper(),
	}
}

// Close tears the context down: every outstanding swapchain is queued
// for deferred GC (spec §4.C). The session's state is left unchanged.
func (c *Context) Close() {
	c.Swapchains.DestroyAll()
}
