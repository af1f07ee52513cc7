// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package client

import (
	"testing"

	"github.com/monoxr/runtime/driver"
	"github.com/monoxr/runtime/internal/swapchain"
)

type fakeSwapchain struct {
	destroyed bool
}

func (s *fakeSwapchain) Destroy()                     { s.destroyed = true }
func (s *fakeSwapchain) Images() []driver.ImageHandle { return []driver.ImageHandle{{FD: 1}, {FD: 2}} }
func (s *fakeSwapchain) Format() driver.PixelFmt       { return driver.RGBA8Unorm }
func (s *fakeSwapchain) Recreate() error               { return nil }

func TestSwapchainTableCreateGetDestroy(t *testing.T) {
	tbl := NewSwapchainTable()
	gc := swapchain.NewGCStack()
	fake := &fakeSwapchain{}
	id := tbl.Create(fake, 2, gc)

	if _, err := tbl.Get(id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := tbl.Destroy(id); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := tbl.Get(id); err != ErrUnknownSwapchain {
		t.Fatalf("Get after Destroy: have %v want %v", err, ErrUnknownSwapchain)
	}
	if fake.destroyed {
		t.Fatal("Destroy must defer to the GC stack, not destroy immediately")
	}
	if n := gc.Drain(); n != 1 || !fake.destroyed {
		t.Fatalf("Drain: n=%d destroyed=%v", n, fake.destroyed)
	}
}

func TestContextCloseEnqueuesAllSwapchains(t *testing.T) {
	c := New(1, 0, false, 0)
	gc := swapchain.NewGCStack()
	f1, f2 := &fakeSwapchain{}, &fakeSwapchain{}
	c.Swapchains.Create(f1, 2, gc)
	c.Swapchains.Create(f2, 2, gc)

	c.Close()
	if f1.destroyed || f2.destroyed {
		t.Fatal("Close must defer destruction to the GC stack")
	}
	if n := gc.Drain(); n != 2 {
		t.Fatalf("Drain after Close: have %d want 2", n)
	}
	if !f1.destroyed || !f2.destroyed {
		t.Fatal("Drain did not destroy both swapchains")
	}
}
