// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for yolokit.
//
// # Key Types
//
//   - Config: main configuration structure
//   - PathsConfig: run directory, communication directory and output naming
//   - TrainConfig, PredictConfig: options forwarded to the detection framework
//   - WatchConfig: continuous prediction and broadcast settings
//   - InstallerConfig: PyTorch package list and wheel index
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (YOLOKIT_*), including values from ./.env
//   - ./yolokit.toml
//   - ~/.yolokit/config.toml
//   - ~/.yolokit/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg := config.Global()
//	weights := filepath.Join(cfg.Paths.RunsDir, name, "weights", "best.pt")
//	out := cfg.OutputPath(name)
package config
