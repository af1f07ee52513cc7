// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package pacing implements the frame-pacing engine described in spec
// §4.E: a closed-loop display-timing predictor with an adaptive
// controller, and a stateless open-loop fallback used when the device
// does not report presentation feedback.
package pacing

import (
	"fmt"
	"log"
)

// NumFrames is the size of the frame-record ring.
const NumFrames = 16

// Phase identifies how far a frame record has progressed. Phases are
// monotone: Predicted -> Woke -> Began -> Submitted -> Info. Marking out
// of this order is a programmer error (spec §3 invariant).
type Phase int

// Frame phases.
const (
	Predicted Phase = iota
	Woke
	Began
	Submitted
	Info
	Skipped
	Cleared
)

func (p Phase) String() string {
	switch p {
	case Predicted:
		return "PREDICTED"
	case Woke:
		return "WOKE"
	case Began:
		return "BEGAN"
	case Submitted:
		return "SUBMITTED"
	case Info:
		return "INFO"
	case Skipped:
		return "SKIPPED"
	case Cleared:
		return "CLEARED"
	default:
		return "UNKNOWN"
	}
}

// Record is one entry of the frame-record ring (spec §3 "Frame
// record").
type Record struct {
	FrameID            uint64
	WhenPredictNs      int64
	WakeUpNs           int64
	DesiredPresentNs   int64
	PredictedDisplayNs int64
	WhenWokeNs         int64
	WhenBeganNs        int64
	WhenSubmittedNs    int64
	ActualPresentNs    int64
	EarliestPresentNs  int64
	PresentMarginNs    int64
	AppTimeNs          int64
	Phase              Phase
}

// ErrOutOfPhase identifies a mark made on a record that has not
// progressed through the phase immediately preceding the one being
// marked. MarkPoint and Info do not return it; the default onOutOfPhase
// hook includes it in the log line it writes for such a mark.
var ErrOutOfPhase = fmt.Errorf("pacing: out-of-phase mark")

// Prediction is the result of a call to Predict.
type Prediction struct {
	FrameID            uint64
	WakeUpNs           int64
	DesiredPresentNs   int64
	PresentSlopNs      int64
	PredictedDisplayNs int64
	PeriodNs           int64
	MinPeriodNs        int64
}

// Engine is the frame-pacing interface implemented by both DisplayTiming
// (closed loop) and Fake (open loop); callers program against this
// interface and never need to know which is in use (spec §4.E "Two
// implementations with identical interface").
type Engine interface {
	// Predict returns the next frame's deadlines.
	Predict(nowNs int64) Prediction

	// MarkPoint advances frameID's phase. Out-of-phase marks are
	// logged and ignored (never block or panic in production).
	MarkPoint(phase Phase, frameID uint64, whenNs int64)

	// Info records presentation feedback for frameID and applies the
	// engine's adaptation policy, if any.
	Info(frameID uint64, desiredNs, actualNs, earliestNs, marginNs int64)

	// Record returns a copy of the ring entry for frameID, for tests
	// and diagnostics.
	Record(frameID uint64) Record
}

// onOutOfPhase is the hook DisplayTiming calls when a mark arrives out
// of order (Fake keeps no per-frame phase); the default logs the mark.
// Tests substitute it to observe the condition.
var onOutOfPhase = func(frameID uint64, have, want Phase) {
	log.Printf("%v: frame %d is %v, mark %v ignored", ErrOutOfPhase, frameID, have, want)
}
