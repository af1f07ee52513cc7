// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ipc

import (
	"encoding/binary"
	"errors"
)

// Opcode identifies a request, reply, or event message.
type Opcode uint32

// Request opcodes (spec §4.B "Operations").
const (
	OpInstanceCreate Opcode = iota + 1
	OpSystemGetProperties
	OpSessionCreate
	OpSwapchainCreate
	OpSwapchainAcquire
	OpSwapchainWait
	OpSwapchainRelease
	OpBeginSession
	OpEndSession
	OpRequestExit
	OpWaitFrame
	OpBeginFrame
	OpEndFrame
	OpPollEvent
)

// replyBit marks an opcode as a reply to the matching request (spec §6
// "opcode = request_opcode | 0x80000000").
const replyBit Opcode = 0x80000000

// eventBase is the opcode prefix for event messages (spec §6 "Events
// use opcode = 0xFFxxxxxx").
const eventBase Opcode = 0xFF000000

// ReplyOf returns the reply opcode for a request opcode.
func ReplyOf(req Opcode) Opcode { return req | replyBit }

// IsReply reports whether op is a reply opcode.
func (op Opcode) IsReply() bool { return op&replyBit != 0 }

// Request returns the request opcode a reply corresponds to.
func (op Opcode) Request() Opcode { return op &^ replyBit }

// IsEvent reports whether op is an event opcode.
func (op Opcode) IsEvent() bool { return op&eventBase == eventBase }

// EventOpcode builds the wire opcode for an event kind.
func EventOpcode(kind uint32) Opcode { return eventBase | Opcode(kind) }

// flagHasHandles is wire flags bit 0 (spec §6 "bit 0: has_handles").
const flagHasHandles uint32 = 1 << 0

// headerSize is the fixed wire header size in bytes: length, sequence,
// opcode, flags, each a u32 (spec §6).
const headerSize = 16

// Header is the fixed part of every datagram (spec §6 "Control-socket
// wire format").
type Header struct {
	Length   uint32 // payload bytes including this header
	Sequence uint32
	Opcode   Opcode
	Flags    uint32
}

// HasHandles reports whether flag bit 0 is set.
func (h Header) HasHandles() bool { return h.Flags&flagHasHandles != 0 }

// ErrShortMessage is returned when a datagram is too small to contain a
// full Header.
var ErrShortMessage = errors.New("ipc: message shorter than header")

// MarshalHeader encodes h little-endian into a fresh headerSize buffer.
func MarshalHeader(h Header) []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Length)
	binary.LittleEndian.PutUint32(b[4:8], h.Sequence)
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.Opcode))
	binary.LittleEndian.PutUint32(b[12:16], h.Flags)
	return b
}

// UnmarshalHeader decodes a Header from the front of b.
func UnmarshalHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, ErrShortMessage
	}
	return Header{
		Length:   binary.LittleEndian.Uint32(b[0:4]),
		Sequence: binary.LittleEndian.Uint32(b[4:8]),
		Opcode:   Opcode(binary.LittleEndian.Uint32(b[8:12])),
		Flags:    binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// EncodeMessage builds a full wire datagram: header followed by
// payload. If haveHandles is true, flagHasHandles is set in the
// returned header's Flags (the caller passes handles separately to the
// transport, which sends them as SCM_RIGHTS ancillary data).
func EncodeMessage(seq uint32, op Opcode, payload []byte, haveHandles bool) []byte {
	h := Header{
		Length:   uint32(headerSize + len(payload)),
		Sequence: seq,
		Opcode:   op,
	}
	if haveHandles {
		h.Flags |= flagHasHandles
	}
	buf := MarshalHeader(h)
	return append(buf, payload...)
}
