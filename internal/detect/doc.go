// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detect provides GPU detection and training recommendations.
//
// # Key Functions
//
//   - DetectGPU, DetectGPUCached: identify the GPU (NVIDIA, Apple Silicon, CPU)
//   - DetectCUDAVersion, ParseCUDAVersion: read "CUDA Version: X.Y" from nvidia-smi
//   - IndexTag: map a CUDA version to a PyTorch wheel tag ("12.8" -> "cu128")
//   - Recommend: base weights and batch size suggestion by VRAM
//
// # Usage
//
//	version, err := detect.DetectCUDAVersion(ctx)
//	if err == nil && version != "" {
//	    tag := detect.IndexTag(version)
//	}
package detect
