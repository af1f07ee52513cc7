// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/monoxr/runtime/internal/events"
)

func newTestSession(overlay bool, z int32) *Session {
	return New(events.New(events.DefaultCapacity), overlay, z)
}

func TestSessionCreateTransitionsToReady(t *testing.T) {
	s := newTestSession(false, 0)
	s.OnSessionCreate()
	if got := s.State(); got != Ready {
		t.Fatalf("state after OnSessionCreate: have %v want %v", got, Ready)
	}
}

func TestWaitBeginEndSequence(t *testing.T) {
	s := newTestSession(false, 0)
	s.OnSessionCreate()

	ctx := context.Background()
	fid, err := s.WaitFrame(ctx)
	if err != nil {
		t.Fatalf("WaitFrame: %v", err)
	}
	if fid != 0 {
		t.Fatalf("first frame id: have %d want 0", fid)
	}
	if err := s.BeginFrame(fid); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if got := s.State(); got != Synchronized {
		t.Fatalf("state after first BeginFrame: have %v want %v", got, Synchronized)
	}
	if err := s.EndFrame(fid); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func TestWaitFrameCapsOutstandingAtTwo(t *testing.T) {
	s := newTestSession(false, 0)

	// First wait_frame succeeds and acquires the sequencing semaphore
	// immediately (it starts released).
	f0, err := s.WaitFrame(context.Background())
	if err != nil {
		t.Fatalf("wait #0: %v", err)
	}

	// Second wait_frame is legitimate pipelining: it blocks on the
	// semaphore until begin_frame(f0) posts it.
	var f1 uint64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		f1, err = s.WaitFrame(context.Background())
		if err != nil {
			t.Errorf("wait #1: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	// A third wait_frame, with two already outstanding, fails
	// immediately per spec §3's active-wait cap of 2.
	if _, err := s.WaitFrame(context.Background()); err != ErrCallOrder {
		t.Fatalf("wait #2 (over cap): have %v want %v", err, ErrCallOrder)
	}

	if err := s.BeginFrame(f0); err != nil {
		t.Fatalf("BeginFrame(f0): %v", err)
	}
	wg.Wait()
	if f1 != f0+1 {
		t.Fatalf("second frame id: have %d want %d", f1, f0+1)
	}
	if err := s.EndFrame(f0); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginFrame(f1); err != nil {
		t.Fatal(err)
	}
	if err := s.EndFrame(f1); err != nil {
		t.Fatal(err)
	}
}

func TestEndFrameWithoutWaitFails(t *testing.T) {
	s := newTestSession(false, 0)
	if err := s.EndFrame(0); err != ErrCallOrder {
		t.Fatalf("EndFrame without WaitFrame: have %v want %v", err, ErrCallOrder)
	}
}

func TestActivePrimaryFallbackOrder(t *testing.T) {
	tbl := NewTable()
	a := newTestSession(false, 0)
	b := newTestSession(false, 0)
	tbl.Add(1, a)
	tbl.Add(2, b)

	// Neither session is compositor-visible yet: no active primary.
	if _, ok := tbl.ActivePrimary(); ok {
		t.Fatal("active primary selected before any session became visible")
	}

	a.OnSessionCreate()
	a.mu.Lock()
	a.state = Synchronized
	a.mu.Unlock()
	tbl.SetCompositorVisible(1, true)

	id, ok := tbl.ActivePrimary()
	if !ok || id != 1 {
		t.Fatalf("active primary: have (%d, %v) want (1, true)", id, ok)
	}
	if got := a.State(); got != Focused {
		t.Fatalf("a.State(): have %v want %v", got, Focused)
	}

	// a leaves; b should become the fallback primary.
	tbl.Remove(1)
	if _, ok := tbl.ActivePrimary(); ok {
		t.Fatal("fallback should not select a non-visible session")
	}

	b.OnSessionCreate()
	b.mu.Lock()
	b.state = Synchronized
	b.mu.Unlock()
	tbl.SetCompositorVisible(2, true)
	id, ok = tbl.ActivePrimary()
	if !ok || id != 2 {
		t.Fatalf("fallback active primary: have (%d, %v) want (2, true)", id, ok)
	}
}

func TestOverlayVisibilityNotifiedOnce(t *testing.T) {
	tbl := NewTable()
	primary := newTestSession(false, 0)
	overlayRing := events.New(events.DefaultCapacity)
	overlay := New(overlayRing, true, 10)

	tbl.Add(1, primary)
	tbl.Add(2, overlay)

	primary.OnSessionCreate()
	primary.mu.Lock()
	primary.state = Synchronized
	primary.mu.Unlock()
	tbl.SetCompositorVisible(1, true)
	tbl.SetCompositorVisible(2, true) // overlay itself becomes visible-eligible

	var changed int
	for {
		p, ok := overlayRing.Poll()
		if !ok {
			break
		}
		if p.Kind == events.OverlayVisibilityChanged && p.Payload.Visible {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("OVERLAY_VISIBILITY_CHANGED(visible=true) delivered %d times, want 1", changed)
	}

	// Recomputing again with nothing changed must not re-deliver it.
	tbl.SetCompositorVisible(2, true)
	if _, ok := overlayRing.Poll(); ok {
		t.Fatal("overlay visibility event re-delivered with no state change")
	}
}
