// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pacing

import "sync"

// DisplayTiming is the closed-loop frame-pacing engine used when the
// device reports presentation feedback (spec §4.E "Display-timing
// (closed loop)").
type DisplayTiming struct {
	mu sync.Mutex

	periodNs    int64
	minPeriodNs int64

	ring [NumFrames]Record

	nextFrameID          uint64
	haveBase             bool
	baseDesiredPresentNs int64

	appTimeNs       int64
	appTimeMaxNs    int64
	presentOffsetNs int64
	targetMarginNs  int64
	presentSlopNs   int64
	adjustMissedNs  int64
	adjustNonMissNs int64
}

// NewDisplayTiming creates a DisplayTiming engine for a display with the
// given nominal refresh period. Initial values match spec §4.E: app_time
// = 10% of period, present_offset = 4ms, target margin = 1ms.
func NewDisplayTiming(periodNs int64) *DisplayTiming {
	return &DisplayTiming{
		periodNs:        periodNs,
		minPeriodNs:     periodNs,
		appTimeNs:       periodNs / 10,
		appTimeMaxNs:    periodNs * 30 / 100,
		presentOffsetNs: 4_000_000,
		targetMarginNs:  1_000_000,
		presentSlopNs:   500_000,
		adjustMissedNs:  periodNs * 4 / 100,
		adjustNonMissNs: periodNs * 2 / 100,
	}
}

// Predict implements Engine.
func (dt *DisplayTiming) Predict(nowNs int64) Prediction {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	base := nowNs
	if dt.haveBase {
		base = dt.baseDesiredPresentNs
	}
	desired := base
	for desired < nowNs+dt.appTimeNs+dt.targetMarginNs {
		desired += dt.periodNs
	}

	predictedDisplay := desired + dt.presentOffsetNs
	wakeUp := desired - (dt.appTimeNs + dt.targetMarginNs)

	fid := dt.nextFrameID
	dt.nextFrameID++
	dt.haveBase = true
	dt.baseDesiredPresentNs = desired

	dt.ring[fid%NumFrames] = Record{
		FrameID:            fid,
		WhenPredictNs:      nowNs,
		WakeUpNs:           wakeUp,
		DesiredPresentNs:   desired,
		PredictedDisplayNs: predictedDisplay,
		AppTimeNs:          dt.appTimeNs,
		Phase:              Predicted,
	}

	return Prediction{
		FrameID:            fid,
		WakeUpNs:           wakeUp,
		DesiredPresentNs:   desired,
		PresentSlopNs:      dt.presentSlopNs,
		PredictedDisplayNs: predictedDisplay,
		PeriodNs:           dt.periodNs,
		MinPeriodNs:        dt.minPeriodNs,
	}
}

// MarkPoint implements Engine.
func (dt *DisplayTiming) MarkPoint(phase Phase, frameID uint64, whenNs int64) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	r := &dt.ring[frameID%NumFrames]
	if r.FrameID != frameID {
		onOutOfPhase(frameID, Cleared, phase)
		return
	}
	if phase != r.Phase+1 {
		onOutOfPhase(frameID, r.Phase, phase)
		return
	}
	switch phase {
	case Woke:
		r.WhenWokeNs = whenNs
	case Began:
		r.WhenBeganNs = whenNs
	case Submitted:
		r.WhenSubmittedNs = whenNs
	}
	r.Phase = phase
}

// Info implements Engine, recording feedback and applying the adaptive
// controller (spec §4.E).
func (dt *DisplayTiming) Info(frameID uint64, desiredNs, actualNs, earliestNs, marginNs int64) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	r := &dt.ring[frameID%NumFrames]
	if r.FrameID == frameID {
		r.ActualPresentNs = actualNs
		r.EarliestPresentNs = earliestNs
		r.PresentMarginNs = marginNs
		r.Phase = Info
	}

	switch {
	case actualNs > desiredNs+dt.presentSlopNs:
		// Missed: grow app_time, clamped to the maximum.
		dt.appTimeNs += dt.adjustMissedNs
		if dt.appTimeNs > dt.appTimeMaxNs {
			dt.appTimeNs = dt.appTimeMaxNs
		}
	case abs64(marginNs-dt.targetMarginNs) > dt.adjustNonMissNs:
		if marginNs > dt.targetMarginNs {
			dt.appTimeNs -= dt.adjustNonMissNs
		} else {
			dt.appTimeNs += dt.adjustNonMissNs
		}
		if dt.appTimeNs < 0 {
			dt.appTimeNs = 0
		}
		if dt.appTimeNs > dt.appTimeMaxNs {
			dt.appTimeNs = dt.appTimeMaxNs
		}
	default:
		// Hold.
	}
}

// Record implements Engine.
func (dt *DisplayTiming) Record(frameID uint64) Record {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	r := dt.ring[frameID%NumFrames]
	if r.FrameID != frameID {
		return Record{}
	}
	return r
}

// AppTimeNs returns the engine's current app_time estimate, for tests
// exercising the adaptive-controller property (spec §8).
func (dt *DisplayTiming) AppTimeNs() int64 {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return dt.appTimeNs
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
