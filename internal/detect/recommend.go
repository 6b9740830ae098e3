// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"regexp"
	"strings"
)

// weightsScaleRegex picks the size letter out of base weight names such as
// "yolov8s.pt", "yolo11m.pt" or "yolov5x6.pt".
var weightsScaleRegex = regexp.MustCompile(`^yolo(?:v\d+|\d+)([nsmlx])`)

// TrainRecommendation suggests training settings for a GPU.
type TrainRecommendation struct {
	BaseWeights string `json:"base_weights"`
	Batch       int    `json:"batch"`
	Device      string `json:"device"`
	Description string `json:"description"`
}

// scaleVRAMGB is the approximate VRAM a batch of 16 at 640px needs per scale.
var scaleVRAMGB = map[string]int{
	"n": 2,
	"s": 4,
	"m": 7,
	"l": 10,
	"x": 14,
}

// Recommend picks base weights and a batch size for the given GPU.
//
// Batch sizes are powers of two scaled from the batch-16 footprint of the
// chosen weights; CPU and Apple Silicon get small batches because training
// there is bound by compute, not memory.
func Recommend(gpu *GpuInfo) TrainRecommendation {
	if gpu == nil || gpu.Type == GpuTypeCPU {
		return TrainRecommendation{
			BaseWeights: "yolov8n.pt",
			Batch:       4,
			Device:      "cpu",
			Description: "CPU only: smallest model, small batches",
		}
	}

	if gpu.Type == GpuTypeAppleSilicon {
		return TrainRecommendation{
			BaseWeights: "yolov8s.pt",
			Batch:       8,
			Device:      "mps",
			Description: "Apple Silicon: small model on the MPS device",
		}
	}

	vram := int(gpu.VramGB)
	var rec TrainRecommendation
	switch {
	case vram < 4:
		rec = TrainRecommendation{BaseWeights: "yolov8n.pt", Description: "Limited VRAM: nano model"}
	case vram < 8:
		rec = TrainRecommendation{BaseWeights: "yolov8s.pt", Description: "Small model with room for augmentation"}
	case vram < 12:
		rec = TrainRecommendation{BaseWeights: "yolov8m.pt", Description: "Medium model, good accuracy per VRAM"}
	case vram < 20:
		rec = TrainRecommendation{BaseWeights: "yolov8l.pt", Description: "Large model"}
	default:
		rec = TrainRecommendation{BaseWeights: "yolov8x.pt", Description: "Extra large model"}
	}
	rec.Device = GpuTypeNvidia.Device()
	rec.Batch = BatchFor(rec.BaseWeights, vram)
	return rec
}

// BatchFor estimates the largest power-of-two batch for weights that fits in
// vramGB, between 2 and 64. Unknown weight names are treated as medium.
func BatchFor(weights string, vramGB int) int {
	need := scaleVRAMGB[WeightsScale(weights)]
	if need == 0 {
		need = scaleVRAMGB["m"]
	}

	batch := 2
	for batch < 64 && need*(batch*2) <= vramGB*16 {
		batch *= 2
	}
	return batch
}

// WeightsScale returns the scale letter (n, s, m, l, x) of a base weights
// name, or "" when the name does not follow the framework's naming.
func WeightsScale(weights string) string {
	name := strings.ToLower(weights)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	m := weightsScaleRegex.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}
