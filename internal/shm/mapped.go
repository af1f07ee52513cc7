// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CreateMapped builds a Region the same way NewRegion does, then backs
// it with a sealed-size, anonymous memfd mapped MAP_SHARED so that
// WriteSlot's in-place writes (spec §4.G "broadcast ... under global
// lock") are visible to every client process that maps the same fd
// read-only (spec §4.A "a process-visible shared-memory region"). The
// returned fd is what instance_create passes to the client over
// SCM_RIGHTS; the caller owns it and must close it when the service
// exits.
func CreateMapped(table DeviceTable, maxClients int) (region *Region, fd int, err error) {
	region, err = NewRegion(table, maxClients)
	if err != nil {
		return nil, -1, err
	}
	encoded := region.Bytes()

	fd, err = unix.MemfdCreate(Magic[:6], unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, -1, fmt.Errorf("shm: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(len(encoded))); err != nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("shm: ftruncate: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW); err != nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("shm: seal: %w", err)
	}
	mapped, err := unix.Mmap(fd, 0, len(encoded), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("shm: mmap: %w", err)
	}
	copy(mapped, encoded)
	region.buf = mapped
	return region, fd, nil
}

// OpenMapped maps fd read-only and parses the Region it holds, as a
// client does with the handle it receives from instance_create.
func OpenMapped(fd int, size int) (*Region, error) {
	mapped, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	region, err := Open(mapped)
	if err != nil {
		unix.Munmap(mapped)
		return nil, err
	}
	// Open copies into a private buffer; the mapping is only needed
	// transiently to decode it, except when the caller wants live
	// slot updates, in which case region.buf should alias mapped
	// directly. Re-point it here so ReadSlot observes live writes.
	region.buf = mapped
	return region, nil
}
