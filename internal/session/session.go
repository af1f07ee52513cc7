// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package session implements the per-client session state machine and
// frame-sequencing semaphore described in spec §4.D/§5.
package session

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/monoxr/runtime/internal/events"
)

// State is one of the session lifecycle states.
type State int

// Session states, in the order a well-behaved client visits them.
const (
	Idle State = iota
	Ready
	Synchronized
	Visible
	Focused
	Stopping
	LossPending
	Exiting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Ready:
		return "READY"
	case Synchronized:
		return "SYNCHRONIZED"
	case Visible:
		return "VISIBLE"
	case Focused:
		return "FOCUSED"
	case Stopping:
		return "STOPPING"
	case LossPending:
		return "LOSS_PENDING"
	case Exiting:
		return "EXITING"
	default:
		return "UNKNOWN"
	}
}

// ErrCallOrder is returned by WaitFrame/BeginFrame/EndFrame when called
// out of the wait→begin→end sequence (spec §4.B, §8).
var ErrCallOrder = errors.New("session: call-order violation")

// maxActiveWait is the outstanding wait_frame..end_frame cap (spec §3
// "active-wait counter (0-2)").
const maxActiveWait = 2

// Session is one client's state machine and frame-sequencing gate. The
// zero value is not usable; construct with New.
type Session struct {
	mu sync.Mutex

	state   State
	overlay bool
	zOrder  int32

	compositorVisible bool // reported by the compositor (spec §4.D)
	activePrimary     bool
	requestedExit     bool

	overlayVisibleNotified bool // last OVERLAY_VISIBILITY_CHANGED value sent

	waitedFrameID uint64
	activeWait    int

	sem *semaphore.Weighted

	events *events.Ring
}

// New creates a session in state IDLE with the given overlay flag and
// z-order, backed by ring for outbound events.
func New(ring *events.Ring, overlay bool, zOrder int32) *Session {
	return &Session{
		overlay: overlay,
		zOrder:  zOrder,
		sem:     semaphore.NewWeighted(1),
		events:  ring,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Overlay reports whether this session is an overlay client.
func (s *Session) Overlay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// ZOrder returns the session's z-order (overlays only; ignored for the
// active primary, which always renders first).
func (s *Session) ZOrder() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zOrder
}

// ActivePrimary reports whether the table currently treats this
// session as the active primary (spec §4.F step 1).
func (s *Session) ActivePrimary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePrimary
}

func (s *Session) setState(n State) {
	if s.state == n {
		return
	}
	s.state = n
	s.events.Push(0, events.SessionStateChanged, events.Payload{State: int(n)})
}

// OnSessionCreate handles session_create's IDLE -> READY transition
// (spec §4.D). If the session had previously called RequestExit while
// idle, it instead moves to EXITING.
func (s *Session) OnSessionCreate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestedExit {
		s.setState(Exiting)
		return
	}
	s.setState(Ready)
}

// WaitFrame hands out the next frame id, blocking on the session's
// sequencing semaphore if a previous wait_frame has not yet completed
// its matching begin_frame. It fails immediately with ErrCallOrder if
// the client already has maxActiveWait frames outstanding.
func (s *Session) WaitFrame(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	if s.activeWait >= maxActiveWait {
		s.mu.Unlock()
		return 0, ErrCallOrder
	}
	s.activeWait++
	fid := s.waitedFrameID
	s.waitedFrameID++
	s.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.mu.Lock()
		s.activeWait--
		s.mu.Unlock()
		return 0, err
	}
	return fid, nil
}

// BeginFrame marks frameID as begun and releases the sequencing
// semaphore, unblocking any pipelined WaitFrame. The first successful
// BeginFrame advances READY -> SYNCHRONIZED (spec §4.D). It fails with
// ErrCallOrder if no WaitFrame holds the semaphore.
func (s *Session) BeginFrame(frameID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sem.TryAcquire(1) {
		// Nothing held the semaphore: no wait_frame precedes this call.
		s.sem.Release(1)
		return ErrCallOrder
	}
	if s.state == Ready {
		s.setState(Synchronized)
	}
	s.sem.Release(1)
	return nil
}

// EndFrame retires frameID, freeing one slot of the active-wait budget.
func (s *Session) EndFrame(frameID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeWait <= 0 {
		return ErrCallOrder
	}
	s.activeWait--
	return nil
}

// RequestExit marks the session for advisory exit (spec §5 "advisory;
// actual destruction only after end_session or socket drop").
func (s *Session) RequestExit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestedExit = true
	s.setState(Stopping)
}

// LoseConnection forces the session into LOSS_PENDING, the entry point
// for the IPC-failure/device-loss escalation path (spec's "Failure
// semantics (core)").
func (s *Session) LoseConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(LossPending)
}

// AdvanceLossPending moves a LOSS_PENDING session to EXITING. The spec
// leaves the exact migration tick for a fallback primary unspecified;
// this runtime performs the move on the render tick following the
// loss, never within the same tick the loss was observed (see
// SPEC_FULL.md's resolution of this open question).
func (s *Session) AdvanceLossPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == LossPending {
		s.setState(Exiting)
	}
}

// SetCompositorVisible records whether the compositor has placed this
// session's slot in the z-ordered render set (spec §4.D "when the
// compositor reports the client is visible").
func (s *Session) SetCompositorVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compositorVisible = visible
	if visible && s.state == Synchronized {
		s.setState(Visible)
	}
}

// setActivePrimary is called by Table.recompute while holding the
// table's lock (which always precedes the session lock, per the lock
// order in spec §5); it drives VISIBLE <-> FOCUSED.
func (s *Session) setActivePrimary(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePrimary = active
	switch {
	case active && s.state == Visible:
		s.setState(Focused)
	case !active && s.state == Focused:
		s.setState(Visible)
	}
}

func (s *Session) pushOverlayVisibility(visible bool) {
	s.events.Push(0, events.OverlayVisibilityChanged, events.Payload{Visible: visible})
}

// overlayNotifiedVisible and setOverlayNotifiedVisible track the last
// OVERLAY_VISIBILITY_CHANGED value delivered to an overlay session, so
// Table.recompute sends the event only on an actual change (spec §8
// scenario 3: "exactly once").
func (s *Session) overlayNotifiedVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlayVisibleNotified
}

func (s *Session) setOverlayNotifiedVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlayVisibleNotified = v
}
