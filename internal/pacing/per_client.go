// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pacing

import "sync"

// PerClientHelper smooths the engine's once-per-tick global prediction
// across multiple clients (spec §4.E, §9 "the same global sample is
// broadcast to every client once per tick rather than advanced
// independently per client"). It caps re-prediction to the most recent
// broadcast sample and guarantees the predicted_display it returns never
// decreases for a given client, even if a later sample's display time
// regresses relative to what that client was already told.
type PerClientHelper struct {
	mu sync.Mutex

	ring [NumFrames]Prediction

	lastSample Prediction
	haveSample bool

	lastDisplayNs     int64
	haveLast          bool
	nextClientFrameID uint64
}

// NewPerClientHelper creates a helper with no sample observed yet.
func NewPerClientHelper() *PerClientHelper {
	return &PerClientHelper{}
}

// Observe records the render task's latest broadcast prediction. Called
// once per tick, before any client calls Next for that tick.
func (h *PerClientHelper) Observe(p Prediction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSample = p
	h.haveSample = true
}

// Next returns this client's next frame prediction, derived from the
// most recently observed sample and assigned the client's own
// monotonic frame id.
func (h *PerClientHelper) Next() Prediction {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := h.lastSample
	if h.haveLast && p.PredictedDisplayNs < h.lastDisplayNs {
		p.PredictedDisplayNs = h.lastDisplayNs
	}
	h.haveLast = true
	h.lastDisplayNs = p.PredictedDisplayNs

	fid := h.nextClientFrameID
	h.nextClientFrameID++
	p.FrameID = fid
	h.ring[fid%NumFrames] = p
	return p
}

// Record returns the prediction previously handed out for the client's
// frameID, if still present in the ring.
func (h *PerClientHelper) Record(frameID uint64) (Prediction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if frameID >= h.nextClientFrameID || h.nextClientFrameID-frameID > NumFrames {
		return Prediction{}, false
	}
	return h.ring[frameID%NumFrames], true
}
