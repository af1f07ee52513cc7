// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shm

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestCreateMappedRoundTrip(t *testing.T) {
	table := sampleTable()
	region, fd, err := CreateMapped(table, 4)
	if err != nil {
		t.Fatalf("CreateMapped: %v", err)
	}
	defer unix.Close(fd)

	opened, err := OpenMapped(fd, len(region.Bytes()))
	if err != nil {
		t.Fatalf("OpenMapped: %v", err)
	}
	if len(opened.Table().Devices) != len(table.Devices) {
		t.Fatalf("devices: have %d want %d", len(opened.Table().Devices), len(table.Devices))
	}
}

func TestCreateMappedWriteSlotVisibleAcrossMappings(t *testing.T) {
	table := sampleTable()
	region, fd, err := CreateMapped(table, 4)
	if err != nil {
		t.Fatalf("CreateMapped: %v", err)
	}
	defer unix.Close(fd)

	opened, err := OpenMapped(fd, len(region.Bytes()))
	if err != nil {
		t.Fatalf("OpenMapped: %v", err)
	}

	want := ClientSlot{InUse: true, FrameID: 42, PredictedDisplayNs: 123456, PredictedPeriodNs: 11_111_111}
	if err := region.WriteSlot(1, want); err != nil {
		t.Fatalf("WriteSlot: %v", err)
	}

	have, err := opened.ReadSlot(1)
	if err != nil {
		t.Fatalf("ReadSlot: %v", err)
	}
	if have != want {
		t.Fatalf("slot not visible across mappings: have %+v want %+v", have, want)
	}
}

func TestCreateMappedFdIsSealedSize(t *testing.T) {
	table := sampleTable()
	region, fd, err := CreateMapped(table, 2)
	if err != nil {
		t.Fatalf("CreateMapped: %v", err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		t.Fatalf("Fstat: %v", err)
	}
	if int(st.Size) != len(region.Bytes()) {
		t.Fatalf("fd size: have %d want %d", st.Size, len(region.Bytes()))
	}
}
