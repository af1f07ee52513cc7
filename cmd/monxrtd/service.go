// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"context"
	"net"
	"time"

	"github.com/monoxr/runtime/internal/ipc"
	"github.com/monoxr/runtime/internal/renderloop"
	"github.com/monoxr/runtime/internal/telemetry"
	"github.com/monoxr/runtime/wsi"
)

// renderTask drives loop.Tick once per periodNs until ctx is canceled,
// the dedicated render task of spec §4.G.
func renderTask(ctx context.Context, loop *renderloop.Loop, periodNs int64) error {
	t := time.NewTicker(time.Duration(periodNs))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := loop.Tick(); err != nil {
				telemetry.Render().Warn().Err(err).Msg("tick reported an error; continuing")
			}
			wsi.Dispatch()
		}
	}
}

// acceptLoop accepts client connections on listener and spawns a
// dedicated worker task per connection (spec §4.B "Each client
// connection gets a dedicated worker task"). A single client's failure
// never brings the service down; only listener.Accept failing (e.g.
// because Close was called for shutdown) ends the loop.
func acceptLoop(ctx context.Context, listener net.Listener, svc *ipc.Services) error {
	var nextID uint64
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}
		// The slot arena, when present, is the authoritative admission
		// gate: it is bounded and recycles indices on teardown, unlike
		// a raw session count. Fall back to the MaxClients count check
		// for callers that never built an arena (e.g. tests).
		slot := -1
		if svc.SlotArena != nil {
			idx, ok := svc.SlotArena.Acquire()
			if !ok {
				telemetry.Log.Warn().Int("max_clients", svc.SlotArena.Capacity()).Msg("rejecting connection: RESOURCE_EXHAUSTED")
				conn.Close()
				continue
			}
			slot = idx
		} else if svc.MaxClients > 0 && len(svc.Sessions.Sessions()) >= svc.MaxClients {
			telemetry.Log.Warn().Int("max_clients", svc.MaxClients).Msg("rejecting connection: RESOURCE_EXHAUSTED")
			conn.Close()
			continue
		}
		nextID++
		id := nextID
		if slot < 0 {
			slot = int(id)
		}
		w := ipc.NewWorker(ipc.NewConn(uc), id, slot, false, 0, svc)
		go w.Run(ctx)
	}
}
