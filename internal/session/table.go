// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package session

import "sync"

// Table is the service-wide session table: the "global_state_lock"
// guarded resource of spec §5. It owns active-primary selection and
// the central `update_server_state` transition function (spec §4.D).
type Table struct {
	mu sync.Mutex

	sessions map[uint64]*Session
	order    []uint64 // insertion order, for "first session-active client" fallback

	activeID  uint64
	haveActive bool
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[uint64]*Session)}
}

// Add registers a new session under id.
func (t *Table) Add(id uint64, s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = s
	t.order = append(t.order, id)
}

// Remove drops id from the table, clearing active-primary status if it
// held it.
func (t *Table) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	if t.haveActive && t.activeID == id {
		t.haveActive = false
	}
	t.recompute()
}

// SetCompositorVisible forwards to the named session and recomputes
// active-primary selection (the newly visible session may become the
// fallback primary).
func (t *Table) SetCompositorVisible(id uint64, visible bool) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		return
	}
	s.SetCompositorVisible(visible)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recompute()
}

// SetActivePrimary explicitly designates id the active primary (e.g. on
// an application's request to take focus). Passing an id not in the
// table, or an overlay session, clears the active primary instead.
func (t *Table) SetActivePrimary(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok || s.Overlay() {
		t.haveActive = false
		t.recompute()
		return
	}
	t.activeID = id
	t.haveActive = true
	t.recompute()
}

// RequestExit marks id for advisory exit and recomputes active-primary
// selection, in case it was the active primary.
func (t *Table) RequestExit(id uint64) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		return
	}
	s.RequestExit()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.haveActive && t.activeID == id {
		t.haveActive = false
	}
	t.recompute()
}

// LoseConnection forces id into LOSS_PENDING and recomputes selection.
func (t *Table) LoseConnection(id uint64) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		return
	}
	s.LoseConnection()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.haveActive && t.activeID == id {
		t.haveActive = false
	}
	t.recompute()
}

// AdvanceLossPendingSessions moves every LOSS_PENDING session to
// EXITING. The render loop calls this once per tick, one tick after
// the loss was observed (spec §9 open question, resolved: next-tick
// migration).
func (t *Table) AdvanceLossPendingSessions() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.order {
		t.sessions[id].AdvanceLossPending()
	}
	t.recompute()
}

// ActivePrimary returns the current active primary's id, if any.
func (t *Table) ActivePrimary() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeID, t.haveActive
}

// recompute implements `update_server_state`'s active-primary fallback
// order (spec §4.D: "most-recently-set active primary; else first
// session-active, non-overlay client; else none") and propagates
// FOCUSED/VISIBLE and overlay-visibility transitions. Callers must hold
// t.mu.
func (t *Table) recompute() {
	if t.haveActive {
		if s, ok := t.sessions[t.activeID]; !ok || s.Overlay() || s.State() == Exiting {
			t.haveActive = false
		}
	}
	if !t.haveActive {
		for _, id := range t.order {
			s := t.sessions[id]
			if !s.Overlay() && s.compositorVisible && s.State() != Exiting {
				t.activeID = id
				t.haveActive = true
				break
			}
		}
	}

	for _, id := range t.order {
		s := t.sessions[id]
		if s.Overlay() {
			continue
		}
		s.setActivePrimary(t.haveActive && t.activeID == id)
	}

	for _, id := range t.order {
		s := t.sessions[id]
		if !s.Overlay() {
			continue
		}
		nowVisible := t.haveActive
		if nowVisible != s.overlayNotifiedVisible() {
			s.pushOverlayVisibility(nowVisible)
			s.setOverlayNotifiedVisible(nowVisible)
		}
	}
}

// Sessions returns every session id currently in the table, in
// insertion order, for the compositor's z-order collection (spec
// §4.F step 1).
func (t *Table) Sessions() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.order))
	copy(out, t.order)
	return out
}

// Session returns the session registered under id, if any.
func (t *Table) Session(id uint64) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}
