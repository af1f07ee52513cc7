// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package events

import "testing"

func TestPushPollOrder(t *testing.T) {
	r := New(4)
	r.Push(1, SessionStateChanged, Payload{State: 1})
	r.Push(2, OverlayVisibilityChanged, Payload{Visible: true})

	p, ok := r.Poll()
	if !ok || p.Kind != SessionStateChanged {
		t.Fatalf("first Poll\nhave %+v, %v\nwant SessionStateChanged, true", p, ok)
	}
	p, ok = r.Poll()
	if !ok || p.Kind != OverlayVisibilityChanged {
		t.Fatalf("second Poll\nhave %+v, %v\nwant OverlayVisibilityChanged, true", p, ok)
	}
	if _, ok := r.Poll(); ok {
		t.Fatal("Poll on empty ring returned ok=true")
	}
}

func TestOverflowEvictsOldest(t *testing.T) {
	r := New(2)
	r.Push(1, SessionStateChanged, Payload{State: 1})
	r.Push(2, SessionStateChanged, Payload{State: 2})
	evicted := r.Push(3, SessionStateChanged, Payload{State: 3})
	if !evicted {
		t.Fatal("Push on full ring did not report eviction")
	}
	if r.Evicted() != 1 {
		t.Fatalf("Evicted()\nhave %d\nwant 1", r.Evicted())
	}
	// The surviving entries must be #2 and #3 (oldest, #1, was evicted);
	// no entry delivered twice.
	seen := map[int]bool{}
	for {
		p, ok := r.Poll()
		if !ok {
			break
		}
		seen[p.Payload.State] = true
	}
	if seen[1] {
		t.Fatal("evicted entry #1 was still delivered")
	}
	if !seen[2] || !seen[3] {
		t.Fatalf("missing surviving entries: %v", seen)
	}
}

func TestFindSlotPrefersFree(t *testing.T) {
	r := New(3)
	r.Push(1, SessionStateChanged, Payload{})
	r.Poll()
	// Slot freed by Poll must be reused before evicting anything.
	r.Push(2, SessionStateChanged, Payload{State: 7})
	r.Push(3, SessionStateChanged, Payload{State: 8})
	r.Push(4, SessionStateChanged, Payload{State: 9})
	if r.Evicted() != 0 {
		t.Fatalf("Evicted()\nhave %d\nwant 0 (free slot should have been reused)", r.Evicted())
	}
}
