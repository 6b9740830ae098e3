// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model implements the model lifecycle: create, train, continue,
// validate, predict, digit reading, delete and list.
//
// A model is a run directory under the configured runs dir; its trained
// weights live at <runs_dir>/<name>/weights/best.pt. All framework work is
// delegated to a yolo.Framework. Every operation is recorded in the run
// history when a Recorder is configured.
//
// # Usage
//
//	mgr := model.NewManager(cfg, yolo.NewPythonBridge(cfg.Python, os.Stdout), store, os.Stdout)
//	res, err := mgr.Predict(ctx, model.Request{Name: "buildings"})
//	if errors.Is(err, model.ErrWeightsNotFound) {
//		// nothing was written
//	}
package model
