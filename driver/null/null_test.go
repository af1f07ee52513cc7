// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package null

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/monoxr/runtime/driver"
)

func TestOpenReturnsSameRendererUntilClose(t *testing.T) {
	d := &Driver{}
	r1, err := d.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r2, err := d.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r1 != r2 {
		t.Fatal("Open returned different Renderer instances before Close")
	}
	d.Close()
	r3, err := d.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r3 == r1 {
		t.Fatal("Open reused a Renderer from before Close")
	}
}

func TestNewSwapchainAllocatesSizedMemfds(t *testing.T) {
	d := &Driver{}
	r, _ := d.Open()
	sc, err := r.NewSwapchain(driver.ImageDesc{
		Format: driver.RGBA8Unorm,
		Dim2D:  driver.Dim2D{Width: 64, Height: 32},
	}, 3)
	if err != nil {
		t.Fatalf("NewSwapchain: %v", err)
	}
	defer sc.Destroy()

	imgs := sc.Images()
	if len(imgs) != 3 {
		t.Fatalf("image count: have %d want 3", len(imgs))
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(imgs[0].FD), &st); err != nil {
		t.Fatalf("Fstat: %v", err)
	}
	if want := int64(64 * 32 * 4); st.Size != want {
		t.Fatalf("memfd size: have %d want %d", st.Size, want)
	}
}

func TestDestroyClosesEveryFD(t *testing.T) {
	d := &Driver{}
	r, _ := d.Open()
	sc, err := r.NewSwapchain(driver.ImageDesc{Dim2D: driver.Dim2D{Width: 4, Height: 4}}, 2)
	if err != nil {
		t.Fatalf("NewSwapchain: %v", err)
	}
	imgs := sc.Images()
	sc.Destroy()
	var st unix.Stat_t
	if err := unix.Fstat(int(imgs[0].FD), &st); err == nil {
		t.Fatal("fd still open after Destroy")
	}
}
