// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"github.com/monoxr/runtime/internal/config"
	"github.com/monoxr/runtime/internal/shm"
)

// defaultRefreshHz is used when no device reports a refresh rate.
const defaultRefreshHz = 90.0

// defaultFOVRad is the null HMD's reported field of view, in radians,
// used when cfg.FOVOverrideRad is unset.
var defaultFOVRad = shm.FOV{AngleLeft: -0.89, AngleRight: 0.89, AngleUp: 0.91, AngleDown: -0.91}

// defaultDeviceTable builds the in-process device table the service
// publishes through shared memory when no platform-specific device
// enumeration backend is wired in (spec §3 "Device table", populated
// once at startup and never mutated thereafter).
//
// The reported FOV and IPD honor the service's current debug override
// configuration (spec §6 "FOV override angles in radians", "IPD in
// mm"), since the device table is the one artifact clients read to
// learn those values.
func defaultDeviceTable() shm.DeviceTable {
	return deviceTableWithConfig(config.Current())
}

func deviceTableWithConfig(cfg config.Config) shm.DeviceTable {
	fov := defaultFOVRad
	if cfg.FOVOverrideRad != nil {
		o := *cfg.FOVOverrideRad
		fov = shm.FOV{AngleUp: o[0], AngleDown: o[1], AngleLeft: o[2], AngleRight: o[3]}
	}
	hmd := shm.Device{
		Name: shm.ClassHMD,
		HMD: shm.HMDParams{
			Present:       true,
			ViewCount:     2,
			DisplayWidth:  2880,
			DisplayHeight: 1600,
			RefreshHz:     defaultRefreshHz,
			IPDMM:         cfg.IPDMM,
			FOV:           [2]shm.FOV{fov, fov},
			Viewport: [2]shm.EyeViewport{
				{X: 0, Y: 0, Width: 1440, Height: 1600},
				{X: 1440, Y: 0, Width: 1440, Height: 1600},
			},
		},
	}
	copy(hmd.Str[:], "monxrt null HMD")
	return shm.DeviceTable{Devices: []shm.Device{hmd}}
}

// periodFromDeviceTable derives the render task's tick period from the
// HMD's reported refresh rate, falling back to defaultRefreshHz.
func periodFromDeviceTable(table shm.DeviceTable) int64 {
	hz := defaultRefreshHz
	for i := range table.Devices {
		if table.Devices[i].Name == shm.ClassHMD && table.Devices[i].HMD.Present && table.Devices[i].HMD.RefreshHz > 0 {
			hz = table.Devices[i].HMD.RefreshHz
			break
		}
	}
	return int64(1e9 / hz)
}
