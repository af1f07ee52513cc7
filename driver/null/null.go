// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package null registers a memfd-backed Renderer that allocates real,
// SCM_RIGHTS-transferable image handles without touching a GPU. It is
// the only Driver this module ships: spec.md §1 places GPU resource
// creation out of scope, so cmd/monxrtd needs a concrete capability to
// Open when no platform-specific backend (e.g. a Vulkan driver) is
// registered, and the same fakes used in driver_test.go cannot be
// imported from a real binary.
package null

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/monoxr/runtime/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver is the null backend; Open always succeeds.
type Driver struct {
	mu       sync.Mutex
	renderer *Renderer
}

// Name identifies this driver in driver.Drivers().
func (d *Driver) Name() string { return "null" }

// Open returns the singleton Renderer, creating it on first call.
func (d *Driver) Open() (driver.Renderer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.renderer == nil {
		d.renderer = &Renderer{driver: d}
	}
	return d.renderer, nil
}

// Close drops the Renderer; a later Open creates a fresh one.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderer = nil
}

// Renderer backs every swapchain image with an anonymous, sealed-size
// memfd instead of a GPU allocation; SubmitFrame is a no-op since there
// is nothing to present to.
type Renderer struct {
	driver *Driver

	mu      sync.Mutex
	nextTag int
}

// Driver returns the owning Driver.
func (r *Renderer) Driver() driver.Driver { return r.driver }

// Limits reports generous, arbitrary capacity limits.
func (r *Renderer) Limits() driver.Limits {
	return driver.Limits{MaxSwapchainImages: 8, MaxViewCount: 2}
}

// NewSwapchain allocates imageCount memfds sized for desc and wraps
// them in a Swapchain.
func (r *Renderer) NewSwapchain(desc driver.ImageDesc, imageCount int) (driver.Swapchain, error) {
	layers := desc.ArrayLayers
	if layers < 1 {
		layers = 1
	}
	size := int64(desc.Width) * int64(desc.Height) * 4 * int64(layers)

	r.mu.Lock()
	tag := r.nextTag
	r.nextTag++
	r.mu.Unlock()

	images := make([]driver.ImageHandle, 0, imageCount)
	for i := 0; i < imageCount; i++ {
		fd, err := unix.MemfdCreate(fmt.Sprintf("monxrt-image-%d-%d", tag, i), unix.MFD_ALLOW_SEALING)
		if err != nil {
			for _, h := range images {
				unix.Close(int(h.FD))
			}
			return nil, fmt.Errorf("null: memfd_create: %w", err)
		}
		if err := unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			for _, h := range images {
				unix.Close(int(h.FD))
			}
			return nil, fmt.Errorf("null: ftruncate: %w", err)
		}
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW); err != nil {
			unix.Close(fd)
			for _, h := range images {
				unix.Close(int(h.FD))
			}
			return nil, fmt.Errorf("null: seal: %w", err)
		}
		images = append(images, driver.ImageHandle{FD: uintptr(fd)})
	}
	return &swapchain{images: images, format: desc.Format}, nil
}

// SubmitFrame is a no-op: the null driver has no presentation surface.
func (r *Renderer) SubmitFrame(stack driver.LayerStack, deadline time.Time) error {
	return nil
}

type swapchain struct {
	images []driver.ImageHandle
	format driver.PixelFmt
}

func (s *swapchain) Images() []driver.ImageHandle { return s.images }
func (s *swapchain) Format() driver.PixelFmt       { return s.format }
func (s *swapchain) Recreate() error               { return nil }

func (s *swapchain) Destroy() {
	for _, h := range s.images {
		unix.Close(int(h.FD))
	}
}
