// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package renderloop

import (
	"time"

	"github.com/monoxr/runtime/driver"
	"github.com/monoxr/runtime/internal/client"
	"github.com/monoxr/runtime/internal/compositor"
	"github.com/monoxr/runtime/internal/pacing"
	"github.com/monoxr/runtime/internal/session"
	"github.com/monoxr/runtime/internal/shm"
	"github.com/monoxr/runtime/internal/swapchain"
	"github.com/monoxr/runtime/internal/telemetry"
)

// Loop is the single dedicated render task that drives every vsync
// tick (spec §4.G). There is exactly one Loop per running service; it
// owns the compositor merge, the renderer submission and the frame-
// pacing engine's feedback path.
type Loop struct {
	Engine     pacing.Engine
	Renderer   driver.Renderer
	Sessions   *session.Table
	Compositor *compositor.Compositor
	Clients    *Registry
	GC         *swapchain.GCStack

	// Region is the shared-memory region backing the per-client render
	// slot array (spec §4.A). nil in tests that only exercise the
	// in-process timing path.
	Region *shm.Region

	// PollControl is called once per tick, after the frame is
	// submitted, to service any ready control-socket I/O without
	// blocking (spec §4.G "poll_control_epoll(non_blocking)"). nil is
	// a valid no-op.
	PollControl func()

	// Now returns the current time in nanoseconds. Defaults to the
	// wall clock; tests substitute a deterministic source.
	Now func() int64
}

// NewLoop wires a Loop from its component services.
func NewLoop(engine pacing.Engine, renderer driver.Renderer, sessions *session.Table, comp *compositor.Compositor, clients *Registry, gc *swapchain.GCStack) *Loop {
	return &Loop{
		Engine:     engine,
		Renderer:   renderer,
		Sessions:   sessions,
		Compositor: comp,
		Clients:    clients,
		GC:         gc,
		Now:        func() int64 { return time.Now().UnixNano() },
	}
}

// Tick runs exactly one iteration of the render task's loop (spec
// §4.G). It never blocks on client I/O; client workers observe this
// tick's prediction asynchronously through their own timing helper.
func (l *Loop) Tick() error {
	now := l.Now()
	pred := l.Engine.Predict(now)
	l.Engine.MarkPoint(pacing.Woke, pred.FrameID, now)

	// broadcast(t_display, t_period) to all per-client timing helpers,
	// and mirror the same prediction into each client's shared-memory
	// slot (spec §4.A) so a client polling the region without a round
	// trip through the control socket still observes this tick.
	l.Clients.Each(func(c *client.Context) {
		c.Timing.Observe(pred)
		if l.Region != nil {
			if err := l.Region.WriteSlot(c.ServerThreadIndex, shm.ClientSlot{
				InUse:              true,
				FrameID:            pred.FrameID,
				PredictedDisplayNs: pred.PredictedDisplayNs,
				PredictedPeriodNs:  pred.PeriodNs,
			}); err != nil {
				telemetry.Render().Warn().Err(err).Uint64("client_id", c.ID).Msg("write_slot failed")
			}
		}
	})

	l.Engine.MarkPoint(pacing.Began, pred.FrameID, now)

	order := l.renderOrder()
	l.Compositor.PromotePending(pred.PredictedDisplayNs)
	stack := l.Compositor.Merge(order, pred.PredictedDisplayNs)

	deadline := time.Unix(0, pred.PredictedDisplayNs)
	err := l.Renderer.SubmitFrame(stack, deadline)
	actual := l.Now()
	l.Engine.MarkPoint(pacing.Submitted, pred.FrameID, actual)
	margin := pred.DesiredPresentNs - actual
	l.Engine.Info(pred.FrameID, pred.DesiredPresentNs, actual, actual, margin)

	l.GC.Drain()
	l.Sessions.AdvanceLossPendingSessions()

	if l.PollControl != nil {
		l.PollControl()
	}
	if err != nil {
		telemetry.Render().Warn().Err(err).Uint64("frame_id", pred.FrameID).Msg("submit_frame failed")
	}
	return err
}

// renderOrder collects every session's z-order participation and
// returns client ids in composite order (spec §4.F steps 1-3).
func (l *Loop) renderOrder() []uint64 {
	ids := l.Sessions.Sessions()
	entries := make([]compositor.ZEntry, 0, len(ids))
	for _, id := range ids {
		s, ok := l.Sessions.Session(id)
		if !ok {
			continue
		}
		entries = append(entries, compositor.ZEntry{
			ClientID:      id,
			Z:             s.ZOrder(),
			ActivePrimary: !s.Overlay() && s.ActivePrimary(),
		})
	}
	return compositor.RenderOrder(entries)
}
