// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package client implements the per-client context described in spec
// §4.C: the session, swapchain table, event ring, and render-timing
// helper a connected application's control-socket worker operates on.
package client

import (
	"errors"
	"sync"

	"github.com/monoxr/runtime/driver"
	"github.com/monoxr/runtime/internal/swapchain"
)

// ErrUnknownSwapchain is returned by operations referencing a
// swapchain id the client never created (or already destroyed).
var ErrUnknownSwapchain = errors.New("client: unknown swapchain id")

// SwapchainTable maps a client's local swapchain ids to their Chain,
// allocating ids sequentially as swapchain_create requests arrive
// (spec §4.B "swapchain_create(info) -> {swapchain_id, ...}").
type SwapchainTable struct {
	mu     sync.Mutex
	nextID uint64
	chains map[uint64]*swapchain.Chain
}

// NewSwapchainTable returns an empty table.
func NewSwapchainTable() *SwapchainTable {
	return &SwapchainTable{chains: make(map[uint64]*swapchain.Chain)}
}

// Create wraps sc in a swapchain.Chain, assigns it a new id, and
// registers it.
func (t *SwapchainTable) Create(sc driver.Swapchain, maxOutstanding int, gc *swapchain.GCStack) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.chains[id] = swapchain.New(sc, maxOutstanding, gc)
	return id
}

// Get returns the chain registered under id.
func (t *SwapchainTable) Get(id uint64) (*swapchain.Chain, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.chains[id]
	if !ok {
		return nil, ErrUnknownSwapchain
	}
	return c, nil
}

// Destroy enqueues id's chain for deferred destruction (spec §4.x) and
// removes it from the table; a later swapchain_create may reuse ids
// only via the monotonic counter, never by recycling a destroyed slot.
func (t *SwapchainTable) Destroy(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.chains[id]
	if !ok {
		return ErrUnknownSwapchain
	}
	delete(t.chains, id)
	c.Destroy()
	return nil
}

// DestroyAll enqueues every remaining chain for deferred destruction,
// for session teardown (spec §4.C "swapchains enqueued to GC list on
// the render thread").
func (t *SwapchainTable) DestroyAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.chains {
		c.Destroy()
		delete(t.chains, id)
	}
}
