// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package compositor implements the multi-client layer-stack collector
// and z-order dispatcher described in spec §4.F: a triple-buffered slot
// per client (progress/scheduled/delivered) and the per-tick promotion
// and z-sort that turns every client's submitted layers into a single
// native present.
package compositor

import (
	"sync"

	"github.com/monoxr/runtime/driver"
)

// Stack is one client's layer submission for a frame (spec §3 "Layer
// slot"), carried through progress/scheduled/delivered unchanged.
type Stack struct {
	Layers        []driver.ResolvedLayer
	EnvBlendMode  int
	DisplayTimeNs int64
	Active        bool
}

// Slot is one client's triple-buffered hand-off. progress is touched
// only by that client's worker goroutine and needs no lock (spec §5);
// scheduled is guarded by mu, the slot_lock; delivered is touched only
// by the render task and also needs no lock.
type Slot struct {
	progress Stack // client-worker-only

	mu        sync.Mutex
	scheduled Stack

	delivered Stack // render-task-only
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// BeginProgress resets the progress buffer for a new begin_frame,
// reusing its layer slice's backing array.
func (s *Slot) BeginProgress() {
	s.progress.Layers = s.progress.Layers[:0]
	s.progress.Active = false
}

// AppendLayer adds one resolved layer to the in-progress stack
// (spec §4.G "layer_begin ... layer_commit").
func (s *Slot) AppendLayer(l driver.ResolvedLayer) {
	s.progress.Layers = append(s.progress.Layers, l)
}

// CommitProgress finalizes the in-progress stack with its display time
// and blend mode, then publishes it to scheduled under the slot lock
// (spec §4.F "atomically copies into scheduled under the slot lock").
func (s *Slot) CommitProgress(envBlendMode int, displayTimeNs int64) {
	s.progress.EnvBlendMode = envBlendMode
	s.progress.DisplayTimeNs = displayTimeNs
	s.progress.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled.Layers = append(s.scheduled.Layers[:0], s.progress.Layers...)
	s.scheduled.EnvBlendMode = s.progress.EnvBlendMode
	s.scheduled.DisplayTimeNs = s.progress.DisplayTimeNs
	s.scheduled.Active = s.progress.Active
}

// PromoteIfDue promotes scheduled to delivered when the scheduled
// stack's display time has arrived, i.e. targetDisplayNs has reached or
// passed it (spec §4.F step: "if scheduled.display_time <= target_
// display_time promote scheduled -> delivered"). It must be called
// only from the render task. It reports whether a promotion occurred.
func (s *Slot) PromoteIfDue(targetDisplayNs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scheduled.Active || s.scheduled.DisplayTimeNs > targetDisplayNs {
		return false
	}
	s.delivered.Layers = append(s.delivered.Layers[:0], s.scheduled.Layers...)
	s.delivered.EnvBlendMode = s.scheduled.EnvBlendMode
	s.delivered.DisplayTimeNs = s.scheduled.DisplayTimeNs
	s.delivered.Active = s.scheduled.Active
	return true
}

// Delivered returns the stack currently being composited by the render
// task. Callers must be the render task.
func (s *Slot) Delivered() Stack {
	return s.delivered
}
