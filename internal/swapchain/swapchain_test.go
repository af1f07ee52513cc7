// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package swapchain

import (
	"testing"

	"github.com/monoxr/runtime/driver"
)

type fakeSwapchain struct {
	imgs      []driver.ImageHandle
	destroyed bool
}

func (s *fakeSwapchain) Destroy()                     { s.destroyed = true }
func (s *fakeSwapchain) Images() []driver.ImageHandle { return s.imgs }
func (s *fakeSwapchain) Format() driver.PixelFmt      { return driver.RGBA8Unorm }
func (s *fakeSwapchain) Recreate() error               { return nil }

func newFakeChain(n, maxOutstanding int) (*Chain, *fakeSwapchain) {
	imgs := make([]driver.ImageHandle, n)
	for i := range imgs {
		imgs[i] = driver.ImageHandle{FD: uintptr(i)}
	}
	fake := &fakeSwapchain{imgs: imgs}
	return New(fake, maxOutstanding, NewGCStack()), fake
}

func TestAcquireReleaseFIFOOrder(t *testing.T) {
	c, _ := newFakeChain(3, 3)
	var got []int
	for i := 0; i < 6; i++ {
		idx, err := c.Acquire()
		if err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		got = append(got, idx)
		if err := c.Release(idx); err != nil {
			t.Fatalf("Release #%d: %v", i, err)
		}
	}
	want := []int{0, 1, 2, 0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("acquire order\nhave %v\nwant %v", got, want)
		}
	}
}

func TestAcquireCapsOutstanding(t *testing.T) {
	c, _ := newFakeChain(3, 2)
	if _, err := c.Acquire(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Acquire(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Acquire(); err != ErrCallOrder {
		t.Fatalf("third Acquire\nhave %v\nwant %v", err, ErrCallOrder)
	}
}

func TestWaitRequiresAcquired(t *testing.T) {
	c, _ := newFakeChain(2, 2)
	if err := c.Wait(0); err != ErrCallOrder {
		t.Fatalf("Wait before Acquire\nhave %v\nwant %v", err, ErrCallOrder)
	}
	idx, _ := c.Acquire()
	if err := c.Wait(idx); err != nil {
		t.Fatalf("Wait after Acquire: %v", err)
	}
	if err := c.Release(idx); err != nil {
		t.Fatalf("Release after Wait: %v", err)
	}
}

func TestReleaseWithoutAcquireFails(t *testing.T) {
	c, _ := newFakeChain(2, 2)
	if err := c.Release(0); err != ErrCallOrder {
		t.Fatalf("Release before Acquire\nhave %v\nwant %v", err, ErrCallOrder)
	}
}

func TestDestroyIsDeferredUntilDrain(t *testing.T) {
	gc := NewGCStack()
	fake := &fakeSwapchain{imgs: []driver.ImageHandle{{FD: 1}, {FD: 2}, {FD: 3}}}
	c := New(fake, 3, gc)

	idx, _ := c.Acquire()
	c.Destroy()
	if fake.destroyed {
		t.Fatal("Destroy released the swapchain immediately; it must be deferred to the next Drain")
	}
	// Even with an image in-flight, Drain (simulating "the render
	// thread reaches a safe point") performs the actual destroy.
	_ = idx
	n := gc.Drain()
	if n != 1 {
		t.Fatalf("Drain\nhave %d destroyed\nwant 1", n)
	}
	if !fake.destroyed {
		t.Fatal("Drain did not destroy the underlying swapchain")
	}
	if n := gc.Drain(); n != 0 {
		t.Fatalf("second Drain\nhave %d\nwant 0 (nothing re-queued)", n)
	}
}
