// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ipc

import "encoding/binary"

// Payload encodings for each reply shape in spec §4.B. These are fixed-
// width structs marshaled the same way as the shared-memory region
// (encoding/binary, little-endian), since the wire protocol carries no
// variable-length fields beyond the swapchain image-handle count, which
// each shape encodes explicitly as a leading count field.

// StatusReply is prefixed onto every reply payload (spec §6 "Reply has
// the same shape ... and adds u32 status as first payload word").
type StatusReply struct {
	Status uint32
}

func (r StatusReply) marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, r.Status)
	return b
}

// InstanceCreateReply answers instance_create.
type InstanceCreateReply struct {
	InstanceID        uint64
	DeviceTableOffset uint32
}

func (r InstanceCreateReply) Marshal() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint64(b[0:8], r.InstanceID)
	binary.LittleEndian.PutUint32(b[8:12], r.DeviceTableOffset)
	return b
}

// SystemPropertiesReply answers system_get_properties.
type SystemPropertiesReply struct {
	ViewCount      uint32
	ViewWidth      [2]uint32
	ViewHeight     [2]uint32
	RefreshHzMilli uint32 // refresh rate * 1000, fixed-point
}

func (r SystemPropertiesReply) Marshal() []byte {
	b := make([]byte, 4+8+8+4)
	o := 0
	binary.LittleEndian.PutUint32(b[o:o+4], r.ViewCount)
	o += 4
	for i := range r.ViewWidth {
		binary.LittleEndian.PutUint32(b[o:o+4], r.ViewWidth[i])
		o += 4
	}
	for i := range r.ViewHeight {
		binary.LittleEndian.PutUint32(b[o:o+4], r.ViewHeight[i])
		o += 4
	}
	binary.LittleEndian.PutUint32(b[o:o+4], r.RefreshHzMilli)
	return b
}

// SessionCreateReply answers session_create.
type SessionCreateReply struct {
	SessionID uint64
}

func (r SessionCreateReply) Marshal() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, r.SessionID)
	return b
}

// SwapchainCreateReply answers swapchain_create; image handles travel
// as SCM_RIGHTS fds, so only the count and id are on the wire.
type SwapchainCreateReply struct {
	SwapchainID uint64
	ImageCount  uint32
}

func (r SwapchainCreateReply) Marshal() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint64(b[0:8], r.SwapchainID)
	binary.LittleEndian.PutUint32(b[8:12], r.ImageCount)
	return b
}

// SwapchainImageIndexReply answers acquire/wait/release.
type SwapchainImageIndexReply struct {
	ImageIndex uint32
}

func (r SwapchainImageIndexReply) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, r.ImageIndex)
	return b
}

// WaitFrameReply answers wait_frame.
type WaitFrameReply struct {
	FrameID                uint64
	PredictedDisplayNs     int64
	PredictedDisplayPeriod int64
}

func (r WaitFrameReply) Marshal() []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], r.FrameID)
	binary.LittleEndian.PutUint64(b[8:16], uint64(r.PredictedDisplayNs))
	binary.LittleEndian.PutUint64(b[16:24], uint64(r.PredictedDisplayPeriod))
	return b
}

// BeginFrameStatus is begin_frame's status payload value.
type BeginFrameStatus uint32

// begin_frame statuses (spec §4.B).
const (
	FrameOK BeginFrameStatus = iota
	FrameDiscarded
)
