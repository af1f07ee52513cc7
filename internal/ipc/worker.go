// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ipc

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/monoxr/runtime/driver"
	"github.com/monoxr/runtime/internal/client"
	"github.com/monoxr/runtime/internal/compositor"
	"github.com/monoxr/runtime/internal/renderloop"
	"github.com/monoxr/runtime/internal/session"
	"github.com/monoxr/runtime/internal/shm"
	"github.com/monoxr/runtime/internal/swapchain"
	"github.com/monoxr/runtime/internal/telemetry"
)

// Services bundles the shared, render-task-owned state a worker needs
// to service requests. It is constructed once by cmd/monxrtd and
// shared by every worker (spec §5 "global_state_lock ... held briefly,
// never while blocking on I/O" — each field here already does its own
// internal locking).
type Services struct {
	Renderer   driver.Renderer
	Sessions   *session.Table
	Compositor *compositor.Compositor
	Clients    *renderloop.Registry
	GC         *swapchain.GCStack
	Region     *shm.Region

	// RegionFD is the memfd backing Region, passed to each client on
	// instance_create so it can map the same shared-memory object
	// (spec §4.A, §4.B). <= 0 when Region is not OS-backed (tests).
	RegionFD int

	MaxOutstandingImages int

	// ExtraWaitMS adds artificial latency to every wait_frame reply
	// (spec §6 "extra wait-frame sleep in ms" debug override key), for
	// testing pacing behavior under load.
	ExtraWaitMS int

	// MaxClients bounds simultaneous client connections (spec §5
	// "Tasks" — "up to MAX_CLIENTS"). Zero means unbounded, used by
	// tests that construct a Services value directly.
	MaxClients int

	// SlotArena hands out the bounded, recyclable indices into Region's
	// per-client render slot array (spec §4.A). nil in tests that do
	// not exercise the shared-memory broadcast path.
	SlotArena *shm.SlotArena
}

// Worker is the per-client control-socket task (spec §4.B "Each client
// connection gets a dedicated worker task").
type Worker struct {
	conn *Conn
	ctx  *client.Context
	slot *compositor.Slot
	svc  *Services

	// connID correlates this connection's log lines across a
	// restart-prone client without reusing the small, reassignable
	// protocol-level client id.
	connID string

	eventLimiter *rate.Limiter
}

// NewWorker wires conn to a freshly created client context registered
// with svc's session table and compositor.
func NewWorker(conn *Conn, id uint64, serverThreadIndex int, overlay bool, zOrder int32, svc *Services) *Worker {
	ctx := client.New(id, serverThreadIndex, overlay, zOrder)
	svc.Sessions.Add(id, ctx.Session)
	slot := svc.Compositor.AddClient(id)
	if svc.Clients != nil {
		svc.Clients.Add(ctx)
	}
	return &Worker{
		conn:         conn,
		ctx:          ctx,
		slot:         slot,
		svc:          svc,
		connID:       uuid.NewString(),
		eventLimiter: rate.NewLimiter(rate.Limit(240), 8), // poll_event, generous vs. a 90Hz cadence
	}
}

// Run services requests until the connection fails or the client
// requests exit and drops the socket (spec's "Failure semantics
// (core)"). It always tears the context down before returning.
func (w *Worker) Run(ctx context.Context) {
	defer w.teardown()
	log := telemetry.Client(w.ctx.ServerThreadIndex).With().Str("conn_id", w.connID).Logger()
	for {
		msg, err := w.conn.Read()
		if err != nil {
			log.Info().Err(err).Msg("worker read failed; moving session to LOSS_PENDING")
			w.svc.Sessions.LoseConnection(w.ctx.ID)
			return
		}
		if err := w.dispatch(ctx, msg); err != nil {
			if f, ok := err.(*Fault); ok {
				w.replyStatus(msg.Header, statusOf(f))
				if f.Fatal() {
					w.svc.Sessions.LoseConnection(w.ctx.ID)
					return
				}
				continue
			}
			w.svc.Sessions.LoseConnection(w.ctx.ID)
			return
		}
	}
}

func (w *Worker) teardown() {
	w.ctx.Close()
	w.svc.Compositor.RemoveClient(w.ctx.ID)
	w.svc.Sessions.Remove(w.ctx.ID)
	if w.svc.Clients != nil {
		w.svc.Clients.Remove(w.ctx.ID)
	}
	if w.svc.SlotArena != nil {
		w.svc.SlotArena.Release(w.ctx.ServerThreadIndex)
	}
	w.conn.Close()
}

func statusOf(f *Fault) uint32 { return uint32(f.Kind) + 1 }

func (w *Worker) replyStatus(reqHdr Header, status uint32) {
	payload := StatusReply{Status: status}.marshal()
	_ = w.conn.Write(reqHdr.Sequence, ReplyOf(reqHdr.Opcode), payload, nil)
}

func (w *Worker) replyOK(reqHdr Header, payload []byte, fds []int) {
	full := append(StatusReply{Status: 0}.marshal(), payload...)
	_ = w.conn.Write(reqHdr.Sequence, ReplyOf(reqHdr.Opcode), full, fds)
}

func (w *Worker) dispatch(ctx context.Context, msg Message) error {
	switch msg.Header.Opcode {
	case OpInstanceCreate:
		return w.handleInstanceCreate(msg)
	case OpSystemGetProperties:
		return w.handleSystemGetProperties(msg)
	case OpSessionCreate:
		return w.handleSessionCreate(msg)
	case OpSwapchainCreate:
		return w.handleSwapchainCreate(msg)
	case OpSwapchainAcquire:
		return w.handleSwapchainAcquire(msg)
	case OpSwapchainWait:
		return w.handleSwapchainWait(msg)
	case OpSwapchainRelease:
		return w.handleSwapchainRelease(msg)
	case OpBeginSession:
		return w.handleBeginSession(msg)
	case OpEndSession:
		return w.handleEndSession(msg)
	case OpRequestExit:
		return w.handleRequestExit(msg)
	case OpWaitFrame:
		return w.handleWaitFrame(ctx, msg)
	case OpBeginFrame:
		return w.handleBeginFrame(msg)
	case OpEndFrame:
		return w.handleEndFrame(msg)
	case OpPollEvent:
		return w.handlePollEvent(msg)
	default:
		return NewFault(Validation, "unknown opcode %#x", uint32(msg.Header.Opcode))
	}
}

func (w *Worker) handleInstanceCreate(msg Message) error {
	var fds []int
	if w.svc.RegionFD > 0 {
		fds = []int{w.svc.RegionFD}
	}
	w.replyOK(msg.Header, InstanceCreateReply{InstanceID: w.ctx.ID}.Marshal(), fds)
	return nil
}

func (w *Worker) handleSystemGetProperties(msg Message) error {
	tbl := w.svc.Region.Table()
	var hmd *shm.Device
	for i := range tbl.Devices {
		if tbl.Devices[i].Name == shm.ClassHMD {
			hmd = &tbl.Devices[i]
			break
		}
	}
	reply := SystemPropertiesReply{}
	if hmd != nil && hmd.HMD.Present {
		reply.ViewCount = uint32(hmd.HMD.ViewCount)
		for i := 0; i < 2 && i < len(hmd.HMD.Viewport); i++ {
			reply.ViewWidth[i] = uint32(hmd.HMD.Viewport[i].Width)
			reply.ViewHeight[i] = uint32(hmd.HMD.Viewport[i].Height)
		}
		reply.RefreshHzMilli = uint32(hmd.HMD.RefreshHz * 1000)
	}
	w.replyOK(msg.Header, reply.Marshal(), nil)
	return nil
}

func (w *Worker) handleSessionCreate(msg Message) error {
	w.ctx.Session.OnSessionCreate()
	w.replyOK(msg.Header, SessionCreateReply{SessionID: w.ctx.ID}.Marshal(), nil)
	return nil
}

func (w *Worker) handleSwapchainCreate(msg Message) error {
	if len(msg.Payload) < 16 {
		return NewFault(Validation, "swapchain_create payload too short")
	}
	desc := driver.ImageDesc{
		Format: driver.PixelFmt(leUint32(msg.Payload, 0)),
		Dim2D: driver.Dim2D{
			Width:  int(leUint32(msg.Payload, 4)),
			Height: int(leUint32(msg.Payload, 8)),
		},
		ArrayLayers: 1,
		MipLevels:   1,
	}
	imageCount := int(leUint32(msg.Payload, 12))
	if imageCount <= 0 {
		imageCount = 3
	}
	sc, err := w.svc.Renderer.NewSwapchain(desc, imageCount)
	if err != nil {
		return NewFault(ResourceExhausted, "NewSwapchain: %v", err)
	}
	maxOutstanding := w.svc.MaxOutstandingImages
	if maxOutstanding <= 0 {
		maxOutstanding = imageCount - 1
	}
	id := w.ctx.Swapchains.Create(sc, maxOutstanding, w.svc.GC)
	images := sc.Images()
	fds := make([]int, len(images))
	for i, h := range images {
		fds[i] = int(h.FD)
	}
	w.replyOK(msg.Header, SwapchainCreateReply{SwapchainID: id, ImageCount: uint32(len(images))}.Marshal(), fds)
	return nil
}

func (w *Worker) handleSwapchainAcquire(msg Message) error {
	chain, err := w.swapchainFromPayload(msg.Payload)
	if err != nil {
		return err
	}
	idx, err := chain.Acquire()
	if err != nil {
		return NewFault(CallOrder, "acquire: %v", err)
	}
	w.replyOK(msg.Header, SwapchainImageIndexReply{ImageIndex: uint32(idx)}.Marshal(), nil)
	return nil
}

func (w *Worker) handleSwapchainWait(msg Message) error {
	chain, err := w.swapchainFromPayload(msg.Payload)
	if err != nil {
		return err
	}
	if len(msg.Payload) < 12 {
		return NewFault(Validation, "swapchain_wait payload too short")
	}
	idx := int(leUint32(msg.Payload, 8))
	if err := chain.Wait(idx); err != nil {
		return NewFault(CallOrder, "wait: %v", err)
	}
	w.replyOK(msg.Header, SwapchainImageIndexReply{ImageIndex: uint32(idx)}.Marshal(), nil)
	return nil
}

func (w *Worker) handleSwapchainRelease(msg Message) error {
	chain, err := w.swapchainFromPayload(msg.Payload)
	if err != nil {
		return err
	}
	if len(msg.Payload) < 12 {
		return NewFault(Validation, "swapchain_release payload too short")
	}
	idx := int(leUint32(msg.Payload, 8))
	if err := chain.Release(idx); err != nil {
		return NewFault(CallOrder, "release: %v", err)
	}
	w.replyOK(msg.Header, SwapchainImageIndexReply{ImageIndex: uint32(idx)}.Marshal(), nil)
	return nil
}

func (w *Worker) swapchainFromPayload(payload []byte) (*swapchain.Chain, error) {
	if len(payload) < 8 {
		return nil, NewFault(Validation, "payload missing swapchain id")
	}
	id := leUint64(payload, 0)
	chain, err := w.ctx.Swapchains.Get(id)
	if err != nil {
		return nil, NewFault(Validation, "unknown swapchain %d", id)
	}
	return chain, nil
}

func (w *Worker) handleBeginSession(msg Message) error {
	w.replyStatus(msg.Header, 0)
	return nil
}

func (w *Worker) handleEndSession(msg Message) error {
	w.replyStatus(msg.Header, 0)
	return nil
}

func (w *Worker) handleRequestExit(msg Message) error {
	w.svc.Sessions.RequestExit(w.ctx.ID)
	w.replyStatus(msg.Header, 0)
	return nil
}

func (w *Worker) handleWaitFrame(ctx context.Context, msg Message) error {
	fid, err := w.ctx.Session.WaitFrame(ctx)
	if err != nil {
		return NewFault(CallOrder, "wait_frame: %v", err)
	}
	pred := w.ctx.Timing.Next()
	w.slot.BeginProgress()
	if w.svc.ExtraWaitMS > 0 {
		time.Sleep(time.Duration(w.svc.ExtraWaitMS) * time.Millisecond)
	}
	w.replyOK(msg.Header, WaitFrameReply{
		FrameID:                fid,
		PredictedDisplayNs:     pred.PredictedDisplayNs,
		PredictedDisplayPeriod: pred.PeriodNs,
	}.Marshal(), nil)
	return nil
}

func (w *Worker) handleBeginFrame(msg Message) error {
	if len(msg.Payload) < 8 {
		return NewFault(Validation, "begin_frame payload too short")
	}
	fid := leUint64(msg.Payload, 0)
	if err := w.ctx.Session.BeginFrame(fid); err != nil {
		return NewFault(CallOrder, "begin_frame: %v", err)
	}
	w.replyOK(msg.Header, []byte{byte(FrameOK), 0, 0, 0}, nil)
	return nil
}

func (w *Worker) handleEndFrame(msg Message) error {
	if len(msg.Payload) < 8 {
		return NewFault(Validation, "end_frame payload too short")
	}
	fid := leUint64(msg.Payload, 0)
	layers, envBlendMode, err := DecodeEndFrame(msg.Payload[8:], w.ctx)
	if err != nil {
		return err
	}
	for _, l := range layers {
		w.slot.AppendLayer(l)
	}
	pred, ok := w.ctx.Timing.Record(fid)
	displayTimeNs := int64(0)
	if ok {
		displayTimeNs = pred.PredictedDisplayNs
	}
	w.slot.CommitProgress(envBlendMode, displayTimeNs)
	if err := w.ctx.Session.EndFrame(fid); err != nil {
		return NewFault(CallOrder, "end_frame: %v", err)
	}
	w.replyStatus(msg.Header, 0)
	return nil
}

func (w *Worker) handlePollEvent(msg Message) error {
	if !w.eventLimiter.Allow() {
		return NewFault(ResourceExhausted, "poll_event: rate limit exceeded")
	}
	p, ok := w.ctx.Events.Poll()
	if !ok {
		w.replyStatus(msg.Header, 0)
		return nil
	}
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload[0:8], uint64(p.TimestampNs))
	binary.LittleEndian.PutUint32(payload[8:12], uint32(p.Kind))
	if p.Payload.Visible {
		payload[12] = 1
	}
	w.replyOK(msg.Header, payload, nil)
	return nil
}

func leUint32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off : off+4]) }
func leUint64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off : off+8]) }
