// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package events implements the per-client bounded outbound event ring
// described in spec §4.H: fixed capacity, oldest-evicted on overflow,
// consumed by poll_event.
package events

import "sync"

// Kind identifies the category of an outbound event.
type Kind int

// Event kinds.
const (
	SessionStateChanged Kind = iota
	OverlayVisibilityChanged
	LossPending
	Exiting
	HapticStop
)

// String returns a human-readable name for k.
func (k Kind) String() string {
	switch k {
	case SessionStateChanged:
		return "SESSION_STATE_CHANGED"
	case OverlayVisibilityChanged:
		return "OVERLAY_VISIBILITY_CHANGED"
	case LossPending:
		return "LOSS_PENDING"
	case Exiting:
		return "EXITING"
	case HapticStop:
		return "HAPTIC_STOP"
	default:
		return "UNKNOWN"
	}
}

// Payload carries the kind-specific data for an event.
type Payload struct {
	// Kind-specific integer payloads. SessionStateChanged uses
	// State; OverlayVisibilityChanged uses Visible (0/1).
	State   int
	Visible bool
}

// entry is a single ring slot.
type entry struct {
	timestampNs int64
	pending     bool
	kind        Kind
	payload     Payload
	seq         uint64
}

// DefaultCapacity is the ring size used unless overridden, matching
// spec §4.H's "e.g., 32 slots".
const DefaultCapacity = 32

// Ring is a fixed-size, oldest-evicted-on-overflow ring of pending
// events for one client. The zero value is not usable; call New.
type Ring struct {
	mu      sync.Mutex
	entries []entry
	next    int // slot to use next absent a free one
	seq     uint64
	evicted uint64
}

// New creates a Ring with the given capacity. If capacity <= 0,
// DefaultCapacity is used.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]entry, capacity)}
}

// findSlot returns the index of the first non-pending slot, or, if
// every slot is pending, the index of the oldest one (lowest seq),
// per spec §4.H "find_slot returns the first non-pending, else the
// oldest".
func (r *Ring) findSlot() int {
	for i := range r.entries {
		if !r.entries[i].pending {
			return i
		}
	}
	oldest := 0
	for i := 1; i < len(r.entries); i++ {
		if r.entries[i].seq < r.entries[oldest].seq {
			oldest = i
		}
	}
	return oldest
}

// Push enqueues an event, evicting the oldest pending entry if the
// ring is full. It returns true if an entry was evicted.
func (r *Ring) Push(timestampNs int64, kind Kind, payload Payload) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.findSlot()
	evicted = r.entries[i].pending
	if evicted {
		r.evicted++
	}
	r.seq++
	r.entries[i] = entry{
		timestampNs: timestampNs,
		pending:     true,
		kind:        kind,
		payload:     payload,
		seq:         r.seq,
	}
	return evicted
}

// Polled is the value returned by Poll.
type Polled struct {
	TimestampNs int64
	Kind        Kind
	Payload     Payload
}

// Poll removes and returns the oldest pending event, if any, per
// spec §4.B "poll_event() -> {event | none}".
func (r *Ring) Poll() (Polled, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	oldest := -1
	for i := range r.entries {
		if !r.entries[i].pending {
			continue
		}
		if oldest == -1 || r.entries[i].seq < r.entries[oldest].seq {
			oldest = i
		}
	}
	if oldest == -1 {
		return Polled{}, false
	}
	e := r.entries[oldest]
	r.entries[oldest].pending = false
	return Polled{TimestampNs: e.timestampNs, Kind: e.kind, Payload: e.payload}, true
}

// Evicted returns the number of events dropped due to ring overflow
// since the ring was created, for diagnostic logging.
func (r *Ring) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

// Pending returns the number of events currently queued.
func (r *Ring) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.entries {
		if r.entries[i].pending {
			n++
		}
	}
	return n
}
