// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shm

import (
	"sync"

	"github.com/monoxr/runtime/internal/bitvec"
)

// SlotArena hands out bounded, recyclable indices into a Region's
// per-client render slot array (spec §4.A "Per-client render slot
// array"). A connecting client is assigned a slot on admission and
// returns it on teardown, so a long-lived service with high connection
// turnover reuses slots instead of requiring ever-growing capacity.
//
// Acquire is called from the accept loop and Release from a worker's
// teardown, both of which may run concurrently with other workers, so
// the arena guards the underlying bitvec.V with its own mutex rather
// than relying on a caller-held lock.
type SlotArena struct {
	mu       sync.Mutex
	free     bitvec.V[uint64]
	capacity int
}

// NewSlotArena builds an arena covering exactly capacity slots, all
// initially free. capacity must match the Region's slot count so every
// index Acquire returns is valid for WriteSlot/ReadSlot.
func NewSlotArena(capacity int) *SlotArena {
	a := &SlotArena{capacity: capacity}
	words := (capacity + 63) / 64
	if words == 0 {
		words = 1
	}
	a.free.Grow(words)
	// The bit vector rounds up to a whole number of uint64 words;
	// permanently mark the padding past capacity as used so Acquire
	// never hands out an out-of-range index.
	for i := capacity; i < words*64; i++ {
		a.free.Set(i)
	}
	return a
}

// Capacity returns the number of slots the arena was built with.
func (a *SlotArena) Capacity() int { return a.capacity }

// Acquire reserves the lowest-numbered free slot index. ok is false
// when every slot is in use.
func (a *SlotArena) Acquire() (index int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	index, ok = a.free.Search()
	if !ok {
		return 0, false
	}
	a.free.Set(index)
	return index, true
}

// Release returns index to the free list so a later Acquire can reuse
// it. Releasing an index that was not acquired is a no-op.
func (a *SlotArena) Release(index int) {
	if index < 0 || index >= a.capacity {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free.Unset(index)
}
