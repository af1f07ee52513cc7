// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"time"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("presentation not supported")

// ErrDeviceLost represents an unrecoverable GPU device error.
// Every session must be escalated to LOSS_PENDING in response.
var ErrDeviceLost = errors.New("device-related error")

// ErrSwapchain represents an error related to a specific
// swapchain.
// This error usually indicates that changes to the compositor
// made the swapchain unusable.
var ErrSwapchain = errors.New("swapchain-related error")

// PixelFmt identifies a swapchain/layer image's pixel format.
type PixelFmt int

// Supported pixel formats.
const (
	FmtUnknown PixelFmt = iota
	RGBA8Unorm
	RGBA8SRGB
	RGBA16Float
	D16Unorm
	D32Float
)

// Dim2D describes a 2D image extent.
type Dim2D struct {
	Width  int
	Height int
}

// ImageDesc describes the images to allocate for a swapchain.
type ImageDesc struct {
	Format PixelFmt
	Dim2D
	// ArrayLayers is the number of views per image (>1 for
	// array swapchains used by stereo layers).
	ArrayLayers int
	MipLevels   int
}

// ImageHandle is an OS-transferable, GPU-opaque handle to a single
// swapchain image, exported so that a client process can import it
// into its own graphics API (see spec §3 "Swapchain" and §5 "Shared
// resources").
type ImageHandle struct {
	// FD is the handle value; on POSIX systems this is a file
	// descriptor suitable for SCM_RIGHTS transfer (§4.B, §6).
	FD uintptr
}

// Viewport describes a render target sub-region, matching a layer's
// per-eye sub-image rectangle (spec §3 "Layer entry").
type Viewport struct {
	X, Y          int
	Width, Height int
}

// LayerStack is the renderer-facing, already z-sorted and pose-resolved
// description of one tick's composite; it is the argument to SubmitFrame,
// and is the only shape GPU resource creation and submission ever see
// (spec §1: "renderer capability offering submit_frame(layer_stack,
// viewport, present_deadline)").
type LayerStack struct {
	Layers          []ResolvedLayer
	EnvBlendMode    int
	DisplayTimeNs   int64
}

// ResolvedLayer is one composited layer, already bound to concrete
// swapchain images (as opposed to the client-facing Layer entry, which
// references swapchains by client-local id).
type ResolvedLayer struct {
	Type     int
	Images   []ImageHandle
	SubImage Viewport
	PoseX, PoseY, PoseZ       float32
	PoseQX, PoseQY, PoseQZ, PoseQW float32
	ViewSpace bool
}

// Renderer is the interface that a Driver implementation provides for
// GPU resource creation and frame submission. The runtime's core treats
// it as an opaque external collaborator: it never records commands or
// manages GPU memory directly.
type Renderer interface {
	// Driver returns the Driver that owns the Renderer.
	Driver() Driver

	// NewSwapchain allocates imageCount GPU images matching desc and
	// returns a Swapchain exposing their OS-transferable handles.
	NewSwapchain(desc ImageDesc, imageCount int) (Swapchain, error)

	// SubmitFrame composites stack and presents it no later than
	// deadline. It must not block past deadline; callers that miss
	// it observe degraded pacing feedback on the next predict(), not
	// an error.
	SubmitFrame(stack LayerStack, deadline time.Time) error

	// Limits returns implementation limits (e.g. max swapchain image
	// count). They are immutable for the lifetime of the Renderer.
	Limits() Limits
}

// Limits holds capability limits reported by a Renderer.
type Limits struct {
	MaxSwapchainImages int
	MaxViewCount       int
}

// Swapchain is a GPU-allocated, n-buffered image set created through
// Renderer.NewSwapchain. The runtime's internal/swapchain package wraps
// this with the client-visible acquire/wait/release FIFO described in
// spec §4.x; Swapchain itself only exposes raw image handles.
type Swapchain interface {
	Destroyer

	// Images returns the OS-transferable handles for every image in
	// the swapchain, in a stable order used as the image index.
	Images() []ImageHandle

	// Format returns the images' PixelFmt.
	Format() PixelFmt

	// Recreate recreates the swapchain in response to ErrSwapchain.
	Recreate() error
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}
