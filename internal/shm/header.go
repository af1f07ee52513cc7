// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Header is the fixed, little-endian shared-memory header (spec §6).
type Header struct {
	Magic          [8]byte
	Version        uint32
	Size           uint32
	EpochNs        uint64
	NumOrigins     uint32
	NumDevices     uint32
	NumInputs      uint32
	NumOutputs     uint32
	OffsetOrigins  uint32
	OffsetDevices  uint32
	OffsetInputs   uint32
	OffsetOutputs  uint32
	OffsetSlots    uint32
}

// headerSize is sizeof(Header) with fixed-width fields (no padding,
// matching §4.A "struct widths are fixed at 32/64-bit aligned").
const headerSize = 8 + 4 + 4 + 8 + 4*9

func (h *Header) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(headerSize)
	binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

func unmarshalHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < headerSize {
		return h, fmt.Errorf("shm: header truncated (%d bytes, want %d)", len(b), headerSize)
	}
	r := bytes.NewReader(b[:headerSize])
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, err
	}
	if string(h.Magic[:6]) != "MONXRT" {
		return h, fmt.Errorf("shm: bad magic %q", h.Magic)
	}
	if h.Version != Version {
		return h, fmt.Errorf("shm: unsupported version %d (want %d)", h.Version, Version)
	}
	return h, nil
}
