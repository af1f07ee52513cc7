// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pacing

import "sync"

// Fake is the stateless open-loop frame-pacing engine used when the
// device does not report presentation feedback (spec §4.E "Fake
// (open loop)"): predicted_display_ns advances by whole periods from
// the last prediction, with no adaptive controller. MarkPoint and Info
// are accepted and ignored.
type Fake struct {
	mu sync.Mutex

	periodNs    int64
	minPeriodNs int64

	nextFrameID    uint64
	haveLast       bool
	lastDisplayNs  int64

	appTimeNs       int64
	presentOffsetNs int64
	marginNs        int64
	presentSlopNs   int64
}

// NewFake creates a Fake engine for a display with the given nominal
// refresh period.
func NewFake(periodNs int64) *Fake {
	return &Fake{
		periodNs:        periodNs,
		minPeriodNs:     periodNs,
		appTimeNs:       periodNs / 10,
		presentOffsetNs: 4_000_000,
		marginNs:        1_000_000,
		presentSlopNs:   500_000,
	}
}

// Predict implements Engine.
func (f *Fake) Predict(nowNs int64) Prediction {
	f.mu.Lock()
	defer f.mu.Unlock()

	display := nowNs + f.appTimeNs + f.marginNs + f.presentOffsetNs
	if f.haveLast {
		display = f.lastDisplayNs
		for display < nowNs+f.appTimeNs+f.marginNs+f.presentOffsetNs {
			display += f.periodNs
		}
	}
	f.haveLast = true
	f.lastDisplayNs = display

	desired := display - f.presentOffsetNs
	wakeUp := desired - (f.appTimeNs + f.marginNs)

	fid := f.nextFrameID
	f.nextFrameID++

	return Prediction{
		FrameID:            fid,
		WakeUpNs:           wakeUp,
		DesiredPresentNs:   desired,
		PresentSlopNs:      f.presentSlopNs,
		PredictedDisplayNs: display,
		PeriodNs:           f.periodNs,
		MinPeriodNs:        f.minPeriodNs,
	}
}

// MarkPoint implements Engine. The open-loop engine does not track
// per-frame phase; calls are accepted and ignored.
func (f *Fake) MarkPoint(phase Phase, frameID uint64, whenNs int64) {}

// Info implements Engine. The open-loop engine has no controller to
// feed; calls are accepted and ignored.
func (f *Fake) Info(frameID uint64, desiredNs, actualNs, earliestNs, marginNs int64) {}

// Record implements Engine. Fake keeps no per-frame history, so every
// call returns the zero Record.
func (f *Fake) Record(frameID uint64) Record { return Record{} }
