// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// ClientSlot is the per-client projection written into shared memory
// so that clients can read the latest broadcast prediction without a
// round trip through the control socket (spec §4.A "Per-client render
// slot array"; §4.G "broadcast(t_display, t_period) ... under global
// lock").
type ClientSlot struct {
	InUse                bool
	FrameID              uint64
	PredictedDisplayNs   int64
	PredictedPeriodNs    int64
}

const clientSlotSize = 1 + 8 + 8 + 8 // encoded size; bool padded to 1 byte by our codec, not binary.Write directly

// Region is the shared-memory region: a header followed by the
// tracking-origin, device, input, output, and client-slot sections, at
// offsets computed once at creation (spec §4.A).
//
// Writers must hold mu (standing in for the service's global_state_lock,
// spec §5); readers accessing only the device table (immutable after
// init) need no lock, per spec §4.A "Populated at startup, read-only
// thereafter".
type Region struct {
	mu   sync.RWMutex
	buf  []byte
	hdr  Header
	table DeviceTable
	slotCount int
}

// sizes of one encoded record, matching the fixed-width fields above.
// Each is derived field-by-field from the struct definitions in
// layout.go so that encode/decode offsets always agree with what
// encoding/binary actually writes (no implicit padding — every field
// is a fixed-width numeric type or an array of such).
const (
	v3Size      = 3 * 4        // linear.V3
	quatSize    = v3Size + 4   // linear.Q{V, R}
	poseSize    = v3Size + quatSize
	fovSize     = 4 * 8        // FOV{4 x float64}
	viewportSize = 4 * 4       // EyeViewport{4 x int32}
	hmdSize     = 1 + 4 + 2*viewportSize + 4 + 4 + 2*fovSize + 8 + 8 + 2*4*8

	originRecSize = NameLen + 4 + poseSize
	inputRecSize  = 4 + 1 + 4 + 2*4 + poseSize + 8
	outputRecSize = NameLen
	deviceRecSize_ = 4 + StrLen + 4 + 4 + 4 + 4 + 4 + hmdSize
)

func deviceRecSize() int { return deviceRecSize_ }

// NewRegion builds an in-memory Region from table; it does not map any
// OS shared-memory object (see CreateMapped for that). It is the form
// used by tests and by Open() callers that already have raw bytes.
func NewRegion(table DeviceTable, maxClients int) (*Region, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	r := &Region{table: table, slotCount: maxClients}
	r.encode()
	return r, nil
}

// encode serializes r.table into r.buf and fills r.hdr.
func (r *Region) encode() {
	off := uint32(headerSize)
	offOrigins := off
	off += uint32(len(r.table.Origins)) * uint32(originRecSize)
	offDevices := off
	off += uint32(len(r.table.Devices)) * uint32(deviceRecSize())
	offInputs := off
	off += uint32(len(r.table.Inputs)) * uint32(inputRecSize)
	offOutputs := off
	off += uint32(len(r.table.Outputs)) * uint32(outputRecSize)
	offSlots := off
	off += uint32(r.slotCount) * uint32(clientSlotSize)

	r.hdr = Header{
		Version:       Version,
		Size:          off,
		NumOrigins:    uint32(len(r.table.Origins)),
		NumDevices:    uint32(len(r.table.Devices)),
		NumInputs:     uint32(len(r.table.Inputs)),
		NumOutputs:    uint32(len(r.table.Outputs)),
		OffsetOrigins: offOrigins,
		OffsetDevices: offDevices,
		OffsetInputs:  offInputs,
		OffsetOutputs: offOutputs,
		OffsetSlots:   offSlots,
	}
	copy(r.hdr.Magic[:], Magic)

	buf := new(bytes.Buffer)
	buf.Grow(int(off))
	binary.Write(buf, binary.LittleEndian, &r.hdr)
	for i := range r.table.Origins {
		binary.Write(buf, binary.LittleEndian, &r.table.Origins[i])
	}
	for i := range r.table.Devices {
		binary.Write(buf, binary.LittleEndian, &r.table.Devices[i])
	}
	for i := range r.table.Inputs {
		binary.Write(buf, binary.LittleEndian, &r.table.Inputs[i])
	}
	for i := range r.table.Outputs {
		binary.Write(buf, binary.LittleEndian, &r.table.Outputs[i])
	}
	slots := make([]byte, int(r.slotCount)*clientSlotSize)
	buf.Write(slots)
	r.buf = buf.Bytes()
}

// Bytes returns the region's backing buffer. Callers must not retain a
// reference across a WriteSlot call without holding the lock, since the
// slot section is mutated in place.
func (r *Region) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf
}

// Table returns the immutable device table.
func (r *Region) Table() *DeviceTable { return &r.table }

// Open parses a previously encoded Region from raw bytes, as a client
// would after mapping the fd received from instance_create (spec §4.B).
func Open(b []byte) (*Region, error) {
	hdr, err := unmarshalHeader(b)
	if err != nil {
		return nil, err
	}
	if int(hdr.Size) > len(b) {
		return nil, fmt.Errorf("shm: region truncated (have %d, want %d)", len(b), hdr.Size)
	}
	table := DeviceTable{
		Origins: make([]TrackingOrigin, hdr.NumOrigins),
		Devices: make([]Device, hdr.NumDevices),
		Inputs:  make([]InputSnapshot, hdr.NumInputs),
		Outputs: make([]OutputDescriptor, hdr.NumOutputs),
	}
	if err := readRecords(b, int(hdr.OffsetOrigins), table.Origins); err != nil {
		return nil, err
	}
	if err := readRecords(b, int(hdr.OffsetDevices), table.Devices); err != nil {
		return nil, err
	}
	if err := readRecords(b, int(hdr.OffsetInputs), table.Inputs); err != nil {
		return nil, err
	}
	if err := readRecords(b, int(hdr.OffsetOutputs), table.Outputs); err != nil {
		return nil, err
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	slotCount := int(hdr.Size-hdr.OffsetSlots) / clientSlotSize
	return &Region{buf: buf, hdr: hdr, table: table, slotCount: slotCount}, nil
}

func readRecords[T any](b []byte, off int, out []T) error {
	r := bytes.NewReader(b[off:])
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return fmt.Errorf("shm: decoding record %d at offset %d: %w", i, off, err)
		}
	}
	return nil
}

// WriteSlot updates the client-slot projection for clientIdx under the
// region's lock, mirroring §4.G's "broadcast ... under global lock".
func (r *Region) WriteSlot(clientIdx int, slot ClientSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if clientIdx < 0 || clientIdx >= r.slotCount {
		return fmt.Errorf("shm: client slot %d out of range [0,%d)", clientIdx, r.slotCount)
	}
	off := int(r.hdr.OffsetSlots) + clientIdx*clientSlotSize
	buf := new(bytes.Buffer)
	buf.Grow(clientSlotSize)
	var inUse byte
	if slot.InUse {
		inUse = 1
	}
	buf.WriteByte(inUse)
	binary.Write(buf, binary.LittleEndian, slot.FrameID)
	binary.Write(buf, binary.LittleEndian, slot.PredictedDisplayNs)
	binary.Write(buf, binary.LittleEndian, slot.PredictedPeriodNs)
	copy(r.buf[off:off+clientSlotSize], buf.Bytes())
	return nil
}

// ReadSlot reads back the client-slot projection for clientIdx.
func (r *Region) ReadSlot(clientIdx int) (ClientSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if clientIdx < 0 || clientIdx >= r.slotCount {
		return ClientSlot{}, fmt.Errorf("shm: client slot %d out of range [0,%d)", clientIdx, r.slotCount)
	}
	off := int(r.hdr.OffsetSlots) + clientIdx*clientSlotSize
	b := r.buf[off : off+clientSlotSize]
	var s ClientSlot
	s.InUse = b[0] != 0
	rd := bytes.NewReader(b[1:])
	binary.Read(rd, binary.LittleEndian, &s.FrameID)
	binary.Read(rd, binary.LittleEndian, &s.PredictedDisplayNs)
	binary.Read(rd, binary.LittleEndian, &s.PredictedPeriodNs)
	return s, nil
}
