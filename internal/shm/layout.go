// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package shm implements the process-visible shared-memory region
// described in spec §4.A: a fixed-layout header followed by the
// tracking-origin array, device array, input/output descriptor arrays,
// and the per-client render slot array. The service maps it read-write;
// clients map the same region read-only by convention.
package shm

import (
	"github.com/monoxr/runtime/linear"
)

// Magic is the shared-memory header's identifying string (§6).
const Magic = "MONXRT\x00\x00"

// Version is the current layout version.
const Version uint32 = 1

// Capacity limits, matching spec §3 "Device table (fixed capacity N≈32)".
const (
	MaxTrackingOrigins = 32
	MaxDevices         = 32
	MaxInputsPerDevice = 16
	MaxOutputsPerDevice = 4
	MaxImagesPerChain  = 4
	NameLen            = 32
	StrLen             = 256
)

// OriginClass identifies the kind of coordinate frame a TrackingOrigin
// represents.
type OriginClass uint32

// Tracking-origin classes.
const (
	OriginStatic OriginClass = iota
	OriginDeviceRelative
	OriginWorld
)

// Pose is a rigid-body transform: position plus orientation.
type Pose struct {
	Position linear.V3
	Orient   linear.Q
}

// TrackingOrigin is a coordinate frame referenced by index from device
// entries (spec §3 "Tracking origin").
type TrackingOrigin struct {
	Name   [NameLen]byte
	Class  OriginClass
	Offset Pose
}

// DeviceClass identifies the kind of device a Device entry describes.
type DeviceClass uint32

// Device classes.
const (
	ClassHMD DeviceClass = iota
	ClassLeftController
	ClassRightController
	ClassGamepad
	ClassTracker
	ClassEyes
)

// InputType identifies the shape of an input descriptor's snapshot.
type InputType uint32

// Input types.
const (
	InputBoolean InputType = iota
	InputFloat
	InputVec2
	InputPose
)

// InputSnapshot is the current value of one input, tagged by InputType;
// only the field matching Type is meaningful.
type InputSnapshot struct {
	Type     InputType
	Boolean  bool
	Float    float32
	Vec2     [2]float32
	Pose     Pose
	ChangedNs int64
}

// OutputDescriptor describes one haptic output channel.
type OutputDescriptor struct {
	Name [NameLen]byte
}

// FOV is a symmetric-or-asymmetric field of view, in radians.
type FOV struct {
	AngleLeft, AngleRight, AngleUp, AngleDown float64
}

// EyeViewport describes one eye's render target sub-region within the
// HMD's combined display resolution.
type EyeViewport struct {
	X, Y, Width, Height int32
}

// HMDParams holds the optional HMD-specific parts of a Device entry
// (spec §3 "optional HMD parts").
//
// All fields use fixed-width types (int32/float64, never plain int) so
// that the struct can be written directly with encoding/binary, matching
// spec §4.A's "struct widths are fixed at 32/64-bit aligned" rule.
type HMDParams struct {
	Present        bool
	ViewCount      int32
	Viewport       [2]EyeViewport
	DisplayWidth   int32
	DisplayHeight  int32
	FOV            [2]FOV
	RefreshHz      float64
	IPDMM          float64
	DistortionCoef [2][4]float64
}

// Device is one device-table entry (spec §3 "Device table").
type Device struct {
	Name              DeviceClass
	Str               [StrLen]byte
	TrackingOriginIdx int32
	NumInputs         int32
	FirstInputIdx     int32
	NumOutputs        int32
	FirstOutputIdx    int32
	HMD               HMDParams
}

// DeviceTable is the full set of data populated at startup and never
// mutated thereafter (spec §3 "Lifetime = process").
type DeviceTable struct {
	Origins []TrackingOrigin
	Devices []Device
	Inputs  []InputSnapshot
	Outputs []OutputDescriptor
}

// Validate checks the table against the fixed capacity limits.
func (t *DeviceTable) Validate() error {
	switch {
	case len(t.Origins) > MaxTrackingOrigins:
		return errTooMany("tracking origins", len(t.Origins), MaxTrackingOrigins)
	case len(t.Devices) > MaxDevices:
		return errTooMany("devices", len(t.Devices), MaxDevices)
	}
	for i := range t.Devices {
		d := &t.Devices[i]
		if int(d.TrackingOriginIdx) >= len(t.Origins) || d.TrackingOriginIdx < -1 {
			return errBadRef("device", i, "tracking origin")
		}
		if int(d.FirstInputIdx+d.NumInputs) > len(t.Inputs) {
			return errBadRef("device", i, "input range")
		}
		if int(d.FirstOutputIdx+d.NumOutputs) > len(t.Outputs) {
			return errBadRef("device", i, "output range")
		}
	}
	return nil
}
