// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package compositor

import (
	"math"
	"sort"
)

// PrimaryZ is the z-order assigned to the active primary client, always
// sorting first (spec §4.F step 2).
const PrimaryZ = math.MinInt32

// ZEntry is one client's z-order participation for a tick (spec §4.F
// step 1 "Collect (client_index, z_order) for every overlay-active
// session").
type ZEntry struct {
	ClientID      uint64
	Z             int32
	ActivePrimary bool
}

// RenderOrder returns client ids in render order: the active primary
// (if any) first, followed by overlay clients stable-sorted ascending
// by z (spec §4.F steps 2-3).
func RenderOrder(entries []ZEntry) []uint64 {
	var primaryID uint64
	havePrimary := false
	overlays := make([]ZEntry, 0, len(entries))
	for _, e := range entries {
		if e.ActivePrimary {
			primaryID = e.ClientID
			havePrimary = true
			continue
		}
		overlays = append(overlays, e)
	}
	sort.SliceStable(overlays, func(i, j int) bool { return overlays[i].Z < overlays[j].Z })

	ids := make([]uint64, 0, len(entries))
	if havePrimary {
		ids = append(ids, primaryID)
	}
	for _, e := range overlays {
		ids = append(ids, e.ClientID)
	}
	return ids
}
