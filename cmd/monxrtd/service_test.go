// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/monoxr/runtime/internal/compositor"
	"github.com/monoxr/runtime/internal/events"
	"github.com/monoxr/runtime/internal/ipc"
	"github.com/monoxr/runtime/internal/session"
	"github.com/monoxr/runtime/internal/swapchain"
)

// TestAcceptLoopRejectsBeyondMaxClients exercises spec §5's "up to
// MAX_CLIENTS" bound: once the session table is at capacity, acceptLoop
// must close new connections rather than spawn a worker for them.
func TestAcceptLoopRejectsBeyondMaxClients(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ctrl.sock")
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	sessions := session.NewTable()
	svc := &ipc.Services{
		Sessions:   sessions,
		Compositor: compositor.New(),
		GC:         swapchain.NewGCStack(),
		MaxClients: 1,
	}
	// Pre-fill the table to its cap so every accepted connection below
	// is rejected without needing a live worker handshake.
	sessions.Add(1, session.New(events.New(32), false, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- acceptLoop(ctx, listener, svc) }()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected the rejected connection to be closed, got data instead")
	}

	listener.Close()
	cancel()
	<-errCh
}
