// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ipc

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/monoxr/runtime/driver"
	"github.com/monoxr/runtime/internal/compositor"
	"github.com/monoxr/runtime/internal/session"
	"github.com/monoxr/runtime/internal/shm"
	"github.com/monoxr/runtime/internal/swapchain"
)

type fakeSwapchain struct{ imgs []driver.ImageHandle }

func (s *fakeSwapchain) Destroy()                     {}
func (s *fakeSwapchain) Images() []driver.ImageHandle { return s.imgs }
func (s *fakeSwapchain) Format() driver.PixelFmt       { return driver.RGBA8Unorm }
func (s *fakeSwapchain) Recreate() error               { return nil }

type fakeRenderer struct{}

func (r *fakeRenderer) Driver() driver.Driver { return nil }
func (r *fakeRenderer) NewSwapchain(desc driver.ImageDesc, imageCount int) (driver.Swapchain, error) {
	imgs := make([]driver.ImageHandle, imageCount)
	for i := range imgs {
		imgs[i] = driver.ImageHandle{FD: uintptr(100 + i)}
	}
	return &fakeSwapchain{imgs: imgs}, nil
}
func (r *fakeRenderer) SubmitFrame(stack driver.LayerStack, deadline time.Time) error { return nil }
func (r *fakeRenderer) Limits() driver.Limits                                         { return driver.Limits{MaxSwapchainImages: 4, MaxViewCount: 2} }

func newTestServices(t *testing.T) *Services {
	t.Helper()
	table, err := shm.NewRegion(shm.DeviceTable{}, 4)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return &Services{
		Renderer:   &fakeRenderer{},
		Sessions:   session.NewTable(),
		Compositor: compositor.New(),
		GC:         swapchain.NewGCStack(),
		Region:     table,
	}
}

func newTestWorkerPair(t *testing.T) (*Worker, *Conn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	serverFC, err := net.FileConn(os.NewFile(uintptr(fds[0]), "server"))
	if err != nil {
		t.Fatal(err)
	}
	clientFC, err := net.FileConn(os.NewFile(uintptr(fds[1]), "client"))
	if err != nil {
		t.Fatal(err)
	}
	svc := newTestServices(t)
	w := NewWorker(NewConn(serverFC.(*net.UnixConn)), 1, 0, false, 0, svc)
	return w, NewConn(clientFC.(*net.UnixConn))
}

func request(t *testing.T, c *Conn, seq uint32, op Opcode, payload []byte) Message {
	t.Helper()
	if err := c.Write(seq, op, payload, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := c.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return msg
}

func TestWorkerHappyPathSequence(t *testing.T) {
	w, c := newTestWorkerPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer c.Close()

	reply := request(t, c, 1, OpInstanceCreate, nil)
	if status := binary.LittleEndian.Uint32(reply.Payload[0:4]); status != 0 {
		t.Fatalf("instance_create status: %d", status)
	}

	reply = request(t, c, 2, OpSessionCreate, nil)
	if status := binary.LittleEndian.Uint32(reply.Payload[0:4]); status != 0 {
		t.Fatalf("session_create status: %d", status)
	}

	scPayload := make([]byte, 16)
	binary.LittleEndian.PutUint32(scPayload[0:4], uint32(driver.RGBA8Unorm))
	binary.LittleEndian.PutUint32(scPayload[4:8], 1024)
	binary.LittleEndian.PutUint32(scPayload[8:12], 1024)
	binary.LittleEndian.PutUint32(scPayload[12:16], 3)
	reply = request(t, c, 3, OpSwapchainCreate, scPayload)
	if status := binary.LittleEndian.Uint32(reply.Payload[0:4]); status != 0 {
		t.Fatalf("swapchain_create status: %d", status)
	}
	if len(reply.FDs) != 3 {
		t.Fatalf("swapchain_create fds: have %d want 3", len(reply.FDs))
	}
	swapchainID := binary.LittleEndian.Uint64(reply.Payload[4:12])

	reply = request(t, c, 4, OpWaitFrame, nil)
	if status := binary.LittleEndian.Uint32(reply.Payload[0:4]); status != 0 {
		t.Fatalf("wait_frame status: %d", status)
	}
	frameID := binary.LittleEndian.Uint64(reply.Payload[4:12])

	bf := make([]byte, 8)
	binary.LittleEndian.PutUint64(bf, frameID)
	reply = request(t, c, 5, OpBeginFrame, bf)
	if status := binary.LittleEndian.Uint32(reply.Payload[0:4]); status != 0 {
		t.Fatalf("begin_frame status: %d", status)
	}

	ef := make([]byte, 8+8) // frame id + zero layers + env blend mode
	binary.LittleEndian.PutUint64(ef[0:8], frameID)
	binary.LittleEndian.PutUint32(ef[8:12], 0) // layer count
	binary.LittleEndian.PutUint32(ef[12:16], 0)
	reply = request(t, c, 6, OpEndFrame, ef)
	if status := binary.LittleEndian.Uint32(reply.Payload[0:4]); status != 0 {
		t.Fatalf("end_frame status: %d", status)
	}

	_ = swapchainID
}

func TestWorkerUnknownOpcodeReturnsValidation(t *testing.T) {
	w, c := newTestWorkerPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer c.Close()

	reply := request(t, c, 1, Opcode(0xDEAD), nil)
	status := binary.LittleEndian.Uint32(reply.Payload[0:4])
	if status != uint32(Validation)+1 {
		t.Fatalf("status: have %d want %d", status, uint32(Validation)+1)
	}
}

func TestWorkerDisconnectMovesSessionToLossPending(t *testing.T) {
	w, c := newTestWorkerPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	request(t, c, 1, OpSessionCreate, nil)
	sessID := w.ctx.ID
	c.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not return after client disconnect")
	}
	if st := w.ctx.Session.State(); st != session.LossPending {
		t.Fatalf("session state after disconnect: have %v want %v", st, session.LossPending)
	}
	if _, ok := w.svc.Sessions.Session(sessID); ok {
		t.Fatal("session was not removed from the table on teardown")
	}
}
