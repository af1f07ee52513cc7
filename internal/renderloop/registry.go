// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package renderloop implements the single dedicated render task
// described in spec §4.G: wait_frame -> broadcast -> begin_frame ->
// merge-and-submit -> layer_commit -> non-blocking control poll.
package renderloop

import (
	"sync"

	"github.com/monoxr/runtime/internal/client"
)

// Registry is the render task's view of every connected client's
// context, used to broadcast the per-tick prediction sample (spec
// §4.G "broadcast(t_display, t_period) to all per-client timing
// helpers") and to collect z-order entries for the compositor.
type Registry struct {
	mu      sync.Mutex
	clients map[uint64]*client.Context
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint64]*client.Context)}
}

// Add registers ctx under its own id.
func (r *Registry) Add(ctx *client.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[ctx.ID] = ctx
}

// Remove drops the context registered under id.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Each calls fn for every registered context's current snapshot. fn
// must not retain the slice across calls.
func (r *Registry) Each(fn func(*client.Context)) {
	r.mu.Lock()
	snapshot := make([]*client.Context, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()
	for _, c := range snapshot {
		fn(c)
	}
}
