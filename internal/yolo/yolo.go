// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package yolo drives the external detection framework. Training, validation
// and prediction are delegated to ultralytics through a small Python bridge
// script; this package only builds requests and decodes results.
package yolo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/yolokit/internal/detection"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Trainer trains and validates models.
type Trainer interface {
	Train(ctx context.Context, model string, args map[string]interface{}) (*TrainResult, error)
	Validate(ctx context.Context, model string, args map[string]interface{}) (Metrics, error)
}

// Predictor runs inference on an image.
type Predictor interface {
	Predict(ctx context.Context, model, source string, args map[string]interface{}) (*Prediction, error)
}

// Framework is the full framework surface.
type Framework interface {
	Trainer
	Predictor
}

// =============================================================================
// RESULTS
// =============================================================================

// Metrics holds validation metrics keyed precision, recall, mAP50, mAP50-95.
type Metrics map[string]float64

// TrainResult is the outcome of a training run.
type TrainResult struct {
	SaveDir string  `json:"save_dir"`
	Metrics Metrics `json:"metrics"`
}

// Prediction is the raw output of one predict call.
type Prediction struct {
	Boxes []detection.RawBox `json:"boxes"`
	Names map[int]string     `json:"names"`
}

// Detections flattens the prediction into detection records.
func (p *Prediction) Detections() ([]detection.Detection, error) {
	return detection.FromBoxes(p.Boxes, p.Names)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNoResult is returned when the bridge exits without a result line.
var ErrNoResult = errors.New("framework produced no result")

// ErrSessionClosed is returned by a Session that has stopped.
var ErrSessionClosed = errors.New("framework session closed")

// FrameworkError is an error reported by the framework itself.
type FrameworkError struct {
	Action  string
	Message string
}

func (e *FrameworkError) Error() string {
	return fmt.Sprintf("framework %s failed: %s", e.Action, e.Message)
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// Action names understood by the bridge.
const (
	ActionTrain   = "train"
	ActionVal     = "val"
	ActionPredict = "predict"
	ActionNames   = "names"
)

type request struct {
	Action string                 `json:"action,omitempty"`
	Model  string                 `json:"model,omitempty"`
	Source string                 `json:"source,omitempty"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

type response struct {
	Error   string             `json:"error,omitempty"`
	Ready   bool               `json:"ready,omitempty"`
	SaveDir string             `json:"save_dir,omitempty"`
	Metrics Metrics            `json:"metrics,omitempty"`
	Boxes   []detection.RawBox `json:"boxes,omitempty"`
	Names   map[int]string     `json:"names,omitempty"`
}

// resultPrefix marks the bridge's result line on stdout.
const resultPrefix = "json "
