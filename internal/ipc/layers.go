// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ipc

import (
	"encoding/binary"
	"math"

	"github.com/monoxr/runtime/driver"
	"github.com/monoxr/runtime/internal/client"
	"github.com/monoxr/runtime/internal/config"
	"github.com/monoxr/runtime/internal/telemetry"
)

// layerWireSize is the fixed encoding of one driver.ResolvedLayer on
// the wire (spec §3 "Layer entry"): type, view-space flag, viewport
// rect, pose (position + quaternion), swapchain id, image index.
const layerWireSize = 4 + 4 + 4*4 + 7*4 + 8 + 4

// DecodeEndFrame parses end_frame's payload into resolved layers,
// looking up each referenced swapchain image in ctx's swapchain table
// (spec §4.B "end_frame(frame_id, layer_stack, env_blend_mode)").
func DecodeEndFrame(payload []byte, ctx *client.Context) ([]driver.ResolvedLayer, int, error) {
	if len(payload) < 8 {
		return nil, 0, NewFault(Validation, "end_frame payload too short")
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	envBlendMode := int(binary.LittleEndian.Uint32(payload[4:8]))
	off := 8

	layers := make([]driver.ResolvedLayer, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+layerWireSize > len(payload) {
			return nil, 0, NewFault(Validation, "end_frame payload truncated at layer %d", i)
		}
		b := payload[off : off+layerWireSize]
		off += layerWireSize

		l := driver.ResolvedLayer{
			Type:      int(binary.LittleEndian.Uint32(b[0:4])),
			ViewSpace: binary.LittleEndian.Uint32(b[4:8]) != 0,
			SubImage: driver.Viewport{
				X:      int(int32(binary.LittleEndian.Uint32(b[8:12]))),
				Y:      int(int32(binary.LittleEndian.Uint32(b[12:16]))),
				Width:  int(int32(binary.LittleEndian.Uint32(b[16:20]))),
				Height: int(int32(binary.LittleEndian.Uint32(b[20:24]))),
			},
			PoseX:  readFloat32(b, 24),
			PoseY:  readFloat32(b, 28),
			PoseZ:  readFloat32(b, 32),
			PoseQX: readFloat32(b, 36),
			PoseQY: readFloat32(b, 40),
			PoseQZ: readFloat32(b, 44),
			PoseQW: readFloat32(b, 48),
		}
		swapchainID := binary.LittleEndian.Uint64(b[52:60])
		imageIndex := binary.LittleEndian.Uint32(b[60:64])

		if config.Current().DebugSpaces {
			telemetry.Log.Debug().
				Int("layer", int(i)).
				Int("type", l.Type).
				Bool("view_space", l.ViewSpace).
				Float64("pose_x", float64(l.PoseX)).
				Float64("pose_y", float64(l.PoseY)).
				Float64("pose_z", float64(l.PoseZ)).
				Msg("space resolution")
		}

		chain, err := ctx.Swapchains.Get(swapchainID)
		if err != nil {
			return nil, 0, NewFault(Validation, "end_frame: layer %d references unknown swapchain %d", i, swapchainID)
		}
		images := chain.Images()
		if int(imageIndex) >= len(images) {
			return nil, 0, NewFault(Validation, "end_frame: layer %d image index %d out of range", i, imageIndex)
		}
		l.Images = []driver.ImageHandle{images[imageIndex]}

		layers = append(layers, l)
	}
	return layers, envBlendMode, nil
}

func readFloat32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}
