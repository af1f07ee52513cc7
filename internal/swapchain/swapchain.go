// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package swapchain implements the client-visible swapchain described in
// spec §3/§4.x: a FIFO of image indices, a GPU-opaque handle per image
// exported for OS transfer, and a lock-free GC stack for deferred
// destroy so the render thread can finish in-flight references before
// an image is reused.
package swapchain

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/monoxr/runtime/driver"
	"github.com/monoxr/runtime/internal/bitm"
)

// Swapchain errors, mapped to IPC fault kinds by the caller (spec §4.B
// "Fails with ... CALL_ORDER"). Acquire, Wait and Release return only
// ErrCallOrder; Wait takes no timeout and does not block, so no Chain
// method returns ErrTimeoutExpired.
var (
	ErrCallOrder      = errors.New("swapchain: call-order violation")
	ErrTimeoutExpired = errors.New("swapchain: wait timed out")
)

// imageState tracks one image's lifecycle within a client (spec §3
// "acquired/waited/released state per image").
type imageState int

const (
	released imageState = iota
	acquired
	waited
)

// Chain is one client's swapchain: an image set with a FIFO acquire
// ordering policy (oldest released first) and per-image state.
type Chain struct {
	mu      sync.Mutex
	sc      driver.Swapchain
	state   []imageState
	fifo    []int // indices, oldest-released first
	inFlight bitm.Bitm[uint32]
	gc      *GCStack
	// outstanding counts images currently acquired by the client
	// (not yet released), used to cap acquire per spec §4.x.
	outstanding int
	maxOutstanding int
}

// New wraps sc (freshly created via driver.Renderer.NewSwapchain) with
// the FIFO/state bookkeeping clients observe through acquire/wait/
// release. maxOutstanding bounds simultaneous acquires (the spec leaves
// this implementation-defined; this runtime uses imageCount-1 so there
// is always at least one image available to present). gc receives the
// chain on Destroy and is drained by the render task once per tick.
func New(sc driver.Swapchain, maxOutstanding int, gc *GCStack) *Chain {
	n := len(sc.Images())
	c := &Chain{
		sc:             sc,
		state:          make([]imageState, n),
		fifo:           make([]int, n),
		maxOutstanding: maxOutstanding,
		gc:             gc,
	}
	c.inFlight.Grow((n + 31) / 32)
	for i := range c.fifo {
		c.fifo[i] = i
	}
	return c
}

// ImageCount returns the number of images in the chain.
func (c *Chain) ImageCount() int { return len(c.state) }

// Images returns the OS-transferable handle for every image, in index
// order, for swapchain_create's reply (spec §4.B).
func (c *Chain) Images() []driver.ImageHandle { return c.sc.Images() }

// Format returns the swapchain's pixel format.
func (c *Chain) Format() driver.PixelFmt { return c.sc.Format() }

// Acquire returns the oldest released image index and marks it
// acquired. It fails with ErrCallOrder if the client already has the
// maximum outstanding acquisitions.
func (c *Chain) Acquire() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outstanding >= c.maxOutstanding {
		return 0, ErrCallOrder
	}
	if len(c.fifo) == 0 {
		return 0, ErrCallOrder
	}
	idx := c.fifo[0]
	c.fifo = c.fifo[1:]
	c.state[idx] = acquired
	c.inFlight.Set(idx)
	c.outstanding++
	return idx, nil
}

// Wait marks image idx as waited (its GPU fence has signaled, or the
// caller is asserting that it has after a real fence wait elsewhere).
// It fails with ErrCallOrder if idx was not acquired.
func (c *Chain) Wait(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.state) || c.state[idx] != acquired {
		return ErrCallOrder
	}
	c.state[idx] = waited
	return nil
}

// Release returns image idx to the FIFO's tail, available for
// acquisition again. It fails with ErrCallOrder if idx was not
// acquired/waited.
func (c *Chain) Release(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < 0 || idx >= len(c.state) || c.state[idx] == released {
		return ErrCallOrder
	}
	c.state[idx] = released
	c.inFlight.Unset(idx)
	c.fifo = append(c.fifo, idx)
	c.outstanding--
	return nil
}

// Destroy enqueues the chain on its GC stack instead of destroying it
// immediately, so any render-thread reference to one of its images
// (spec's "delivered" slot) can finish first (spec §4.x, §5 "Shared
// resources", §9 "Cyclic references"). Destroy is safe to call without
// any lock held and does not block.
func (c *Chain) Destroy() {
	c.gc.push(c)
}

// destroyNow releases the underlying driver.Swapchain. Only a GCStack
// drain calls this.
func (c *Chain) destroyNow() {
	c.sc.Destroy()
}

// gcNode is one entry of the lock-free GC stack.
type gcNode struct {
	chain *Chain
	next  *gcNode
}

// GCStack is a Treiber stack: Push is lock-free via CAS; Drain takes
// the whole stack atomically and is meant to run on the render task
// only, per spec §4.x "queued on a lock-free GC stack; the render
// thread drains it at a safe point each tick". It is an explicit state
// container (spec §9 "Global mutable state ... introduced as explicit
// state containers"), owned by the render loop, not a package-level
// global — callers construct one with NewGCStack and pass it to every
// Chain they create.
type GCStack struct {
	head unsafe.Pointer // *gcNode
}

// NewGCStack creates an empty GCStack.
func NewGCStack() *GCStack { return &GCStack{} }

func (s *GCStack) push(c *Chain) {
	n := &gcNode{chain: c}
	for {
		old := atomic.LoadPointer(&s.head)
		n.next = (*gcNode)(old)
		if atomic.CompareAndSwapPointer(&s.head, old, unsafe.Pointer(n)) {
			return
		}
	}
}

// Drain detaches and destroys every chain queued since the last Drain,
// returning how many were destroyed.
func (s *GCStack) Drain() int {
	old := atomic.SwapPointer(&s.head, nil)
	n := 0
	for node := (*gcNode)(old); node != nil; node = node.next {
		node.chain.destroyNow()
		n++
	}
	return n
}
