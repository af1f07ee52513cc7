// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package compositor

import (
	"sync"

	"github.com/monoxr/runtime/driver"
)

// Compositor owns every connected client's slot and merges their
// delivered layer stacks into the single LayerStack submitted to the
// renderer once per tick (spec §2 "emits one native present per
// vsync").
type Compositor struct {
	mu    sync.Mutex
	slots map[uint64]*Slot
}

// New creates an empty Compositor.
func New() *Compositor {
	return &Compositor{slots: make(map[uint64]*Slot)}
}

// AddClient registers a new slot for clientID, returning it so the
// client's worker can write into it directly.
func (c *Compositor) AddClient(clientID uint64) *Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := NewSlot()
	c.slots[clientID] = s
	return s
}

// RemoveClient drops clientID's slot.
func (c *Compositor) RemoveClient(clientID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, clientID)
}

// Slot returns clientID's slot, if registered.
func (c *Compositor) Slot(clientID uint64) (*Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[clientID]
	return s, ok
}

// PromotePending walks every registered slot and promotes scheduled to
// delivered where due, for the render task's tick at targetDisplayNs
// (spec §4.F).
func (c *Compositor) PromotePending(targetDisplayNs int64) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.slots))
	for id := range c.slots {
		ids = append(ids, id)
	}
	slots := make([]*Slot, len(ids))
	for i, id := range ids {
		slots[i] = c.slots[id]
	}
	c.mu.Unlock()

	for _, s := range slots {
		s.PromoteIfDue(targetDisplayNs)
	}
}

// Merge dispatches, in the given render order, every slot's delivered
// layers into one LayerStack ready for driver.Renderer.SubmitFrame
// (spec §4.F step 4). The env blend mode is taken from the first
// active stack in order that contributes at least one layer
// (conventionally the active primary).
func (c *Compositor) Merge(order []uint64, targetDisplayNs int64) driver.LayerStack {
	c.mu.Lock()
	slots := make([]*Slot, 0, len(order))
	for _, id := range order {
		if s, ok := c.slots[id]; ok {
			slots = append(slots, s)
		}
	}
	c.mu.Unlock()

	out := driver.LayerStack{DisplayTimeNs: targetDisplayNs}
	for _, s := range slots {
		d := s.Delivered()
		if !d.Active {
			continue
		}
		if len(out.Layers) == 0 {
			out.EnvBlendMode = d.EnvBlendMode
		}
		out.Layers = append(out.Layers, d.Layers...)
	}
	return out
}
