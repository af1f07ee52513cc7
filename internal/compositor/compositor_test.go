// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package compositor

import (
	"reflect"
	"testing"

	"github.com/monoxr/runtime/driver"
)

func TestRenderOrderPrimaryFirstThenZAscending(t *testing.T) {
	entries := []ZEntry{
		{ClientID: 20, Z: 20},
		{ClientID: 1, ActivePrimary: true},
		{ClientID: 10, Z: 10},
	}
	got := RenderOrder(entries)
	want := []uint64{1, 10, 20}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("render order\nhave %v\nwant %v", got, want)
	}
}

func TestRenderOrderNoPrimary(t *testing.T) {
	entries := []ZEntry{{ClientID: 2, Z: 5}, {ClientID: 3, Z: 1}}
	got := RenderOrder(entries)
	want := []uint64{3, 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("render order\nhave %v\nwant %v", got, want)
	}
}

func TestRenderOrderStableForEqualZ(t *testing.T) {
	entries := []ZEntry{{ClientID: 5, Z: 10}, {ClientID: 4, Z: 10}}
	got := RenderOrder(entries)
	want := []uint64{5, 4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("render order must be stable for equal z\nhave %v\nwant %v", got, want)
	}
}

func TestSlotPromoteOnlyWhenDue(t *testing.T) {
	s := NewSlot()
	s.BeginProgress()
	s.AppendLayer(driver.ResolvedLayer{Type: 0})
	s.CommitProgress(0, 1_000_000)

	if s.PromoteIfDue(500_000) {
		t.Fatal("promoted before the scheduled display time arrived")
	}
	if !s.PromoteIfDue(1_000_000) {
		t.Fatal("did not promote once the target reached the scheduled display time")
	}
	d := s.Delivered()
	if !d.Active || d.DisplayTimeNs != 1_000_000 || len(d.Layers) != 1 {
		t.Fatalf("delivered stack mismatch: %+v", d)
	}
}

func TestDeliveredNeverExceedsTargetDisplayTime(t *testing.T) {
	s := NewSlot()
	for _, displayNs := range []int64{1_000_000, 2_000_000, 3_000_000} {
		s.BeginProgress()
		s.AppendLayer(driver.ResolvedLayer{Type: 0})
		s.CommitProgress(0, displayNs)
		// A render tick at an earlier target than the newest scheduled
		// stack must never observe a delivered display time beyond it
		// (spec §8 "the render thread never observes delivered.
		// display_time > current_target_display_time").
		s.PromoteIfDue(1_500_000)
		if d := s.Delivered(); d.Active && d.DisplayTimeNs > 1_500_000 {
			t.Fatalf("delivered.display_time %d exceeds target 1_500_000", d.DisplayTimeNs)
		}
	}
}

func TestCompositorMergeOrdersLayersAndBlendMode(t *testing.T) {
	c := New()
	primary := c.AddClient(1)
	overlay := c.AddClient(2)

	primary.BeginProgress()
	primary.AppendLayer(driver.ResolvedLayer{Type: 0})
	primary.CommitProgress(7, 1_000_000)
	primary.PromoteIfDue(1_000_000)

	overlay.BeginProgress()
	overlay.AppendLayer(driver.ResolvedLayer{Type: 1})
	overlay.CommitProgress(9, 1_000_000)
	overlay.PromoteIfDue(1_000_000)

	order := RenderOrder([]ZEntry{
		{ClientID: 1, ActivePrimary: true},
		{ClientID: 2, Z: 10},
	})
	stack := c.Merge(order, 1_000_000)
	if len(stack.Layers) != 2 || stack.Layers[0].Type != 0 || stack.Layers[1].Type != 1 {
		t.Fatalf("merged layers out of order: %+v", stack.Layers)
	}
	if stack.EnvBlendMode != 7 {
		t.Fatalf("env blend mode: have %d want 7 (primary's)", stack.EnvBlendMode)
	}
}
