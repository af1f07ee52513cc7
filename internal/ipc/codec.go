// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// maxDatagram bounds a single read; requests and replies in this
// protocol are small fixed-shape structs, never bulk image data (that
// travels as an out-of-band fd), so one page is ample headroom.
const maxDatagram = 4096

// maxAncillary bounds the control-message buffer for a handful of
// passed fds.
const maxAncillary = 128

// Conn wraps a unix-domain SOCK_SEQPACKET connection with this
// package's framing and fd-passing (spec §4.B "out-of-band ancillary
// data carries OS handles").
type Conn struct {
	uc *net.UnixConn
}

// NewConn wraps an already-connected *net.UnixConn.
func NewConn(uc *net.UnixConn) *Conn { return &Conn{uc: uc} }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.uc.Close() }

// Message is one decoded datagram.
type Message struct {
	Header  Header
	Payload []byte
	FDs     []int
}

// Read receives and decodes the next datagram, extracting any passed
// file descriptors.
func (c *Conn) Read() (Message, error) {
	buf := make([]byte, maxDatagram)
	oob := make([]byte, maxAncillary)
	n, oobn, _, _, err := c.uc.ReadMsgUnix(buf, oob)
	if err != nil {
		return Message{}, NewFault(IPCFailure, "read: %v", err)
	}
	hdr, err := UnmarshalHeader(buf[:n])
	if err != nil {
		return Message{}, NewFault(IPCFailure, "decode header: %v", err)
	}

	var fds []int
	if hdr.HasHandles() && oobn > 0 {
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return Message{}, NewFault(IPCFailure, "parse ancillary data: %v", err)
		}
		for _, scm := range scms {
			got, err := unix.ParseUnixRights(&scm)
			if err != nil {
				continue
			}
			fds = append(fds, got...)
		}
	}

	return Message{Header: hdr, Payload: buf[headerSize:n], FDs: fds}, nil
}

// Write encodes and sends a reply or event datagram, attaching fds as
// SCM_RIGHTS ancillary data when present.
func (c *Conn) Write(seq uint32, op Opcode, payload []byte, fds []int) error {
	msg := EncodeMessage(seq, op, payload, len(fds) > 0)
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	if _, _, err := c.uc.WriteMsgUnix(msg, oob, nil); err != nil {
		return NewFault(IPCFailure, "write: %v", err)
	}
	return nil
}
