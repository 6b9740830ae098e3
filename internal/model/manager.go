// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/detection"
	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/util"
	"github.com/jeranaias/yolokit/internal/yolo"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrModelExists     = errors.New("model already exists")
	ErrModelNotFound   = errors.New("model not found")
	ErrWeightsNotFound = errors.New("weights not found")
	ErrImageNotFound   = errors.New("image not found")
	ErrNameRequired    = errors.New("model name required")
	ErrInvalidName     = errors.New("invalid model name")
	ErrBaseRequired    = errors.New("base weights required")
)

// =============================================================================
// OPERATIONS
// =============================================================================

// Operation names as recorded in the history.
const (
	OpCreate   = "create"
	OpTrain    = "train"
	OpContinue = "continue"
	OpValidate = "val"
	OpPredict  = "predict"
	OpDigits   = "digits"
	OpDelete   = "delete"
)

// Request carries the parameters shared by all operations. Zero values fall
// back to configuration.
type Request struct {
	Name        string
	Base        string
	Dataset     string
	Epochs      int
	WeightsPath string
	ImagePath   string
}

// Recorder stores operation history. *history.Store implements it.
type Recorder interface {
	Begin(ctx context.Context, operation, model string) (string, error)
	Finish(ctx context.Context, id string, res history.Result) error
}

// TrainResult is returned by Create, Train and Continue.
type TrainResult struct {
	Name        string       `json:"name"`
	From        string       `json:"from"`
	Dataset     string       `json:"dataset"`
	Epochs      int          `json:"epochs"`
	Weights     string       `json:"weights"`
	SaveDir     string       `json:"save_dir"`
	Metrics     yolo.Metrics `json:"metrics,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
}

// ValidateResult is returned by Validate.
type ValidateResult struct {
	Name    string       `json:"name"`
	Weights string       `json:"weights"`
	Dataset string       `json:"dataset"`
	Metrics yolo.Metrics `json:"metrics"`
}

// PredictResult is returned by Predict.
type PredictResult struct {
	Name        string                `json:"name"`
	Weights     string                `json:"weights"`
	Image       string                `json:"image"`
	Output      string                `json:"output"`
	Detections  []detection.Detection `json:"detections"`
	Fingerprint string                `json:"fingerprint,omitempty"`
}

// DigitsResult is returned by Digits.
type DigitsResult struct {
	PredictResult
	Number int    `json:"number"`
	Digits string `json:"digits,omitempty"` // as read, left to right
	Read   bool   `json:"read"`
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager runs model operations against a framework.
type Manager struct {
	cfg *config.Config
	fw  yolo.Framework
	rec Recorder
	out io.Writer

	// DefaultBase is used by Create when the request has no base weights.
	DefaultBase string
}

// NewManager returns a manager. rec and out may be nil.
func NewManager(cfg *config.Config, fw yolo.Framework, rec Recorder, out io.Writer) *Manager {
	if out == nil {
		out = io.Discard
	}
	return &Manager{cfg: cfg, fw: fw, rec: rec, out: out}
}

func (m *Manager) printf(format string, args ...interface{}) {
	fmt.Fprintf(m.out, format+"\n", args...)
}

func (m *Manager) epochs(req Request) int {
	if req.Epochs > 0 {
		return req.Epochs
	}
	return m.cfg.Train.Epochs
}

// record wraps an operation with history bookkeeping. History failures never
// fail the operation.
func (m *Manager) record(ctx context.Context, op, name string, fn func() (history.Result, error)) error {
	var id string
	if m.rec != nil {
		var err error
		if id, err = m.rec.Begin(ctx, op, name); err != nil {
			m.printf("warning: history unavailable: %v", err)
		}
	}

	res, opErr := fn()
	if opErr != nil {
		res.Status = history.StatusFailed
		res.Detail = opErr.Error()
	} else if res.Status == "" {
		res.Status = history.StatusOK
	}

	if id != "" {
		// Record even when ctx was cancelled.
		if err := m.rec.Finish(context.WithoutCancel(ctx), id, res); err != nil {
			m.printf("warning: failed to record %s: %v", op, err)
		}
	}
	return opErr
}

func (m *Manager) fingerprint(path string) string {
	fp, err := Fingerprint(path)
	if err != nil {
		return ""
	}
	return fp
}

// train runs the framework and fills in the resulting weights.
func (m *Manager) train(ctx context.Context, name, from string, req Request, existOK bool) (*TrainResult, error) {
	res := &TrainResult{
		Name:    name,
		From:    from,
		Dataset: m.cfg.DatasetPath(req.Dataset),
		Epochs:  m.epochs(req),
	}

	args := m.cfg.TrainOptions()
	args["data"] = res.Dataset
	args["epochs"] = res.Epochs
	args["project"] = m.cfg.Paths.RunsDir
	args["name"] = name
	args["exist_ok"] = existOK

	m.printf("Training %s from %s on %s for %d epochs", name, from, res.Dataset, res.Epochs)
	out, err := m.fw.Train(ctx, from, args)
	if err != nil {
		return nil, err
	}
	res.SaveDir = out.SaveDir
	res.Metrics = out.Metrics
	res.Weights = m.WeightsPath(name)
	if !util.FileExists(res.Weights) {
		return nil, fmt.Errorf("%w: training finished without %s", ErrWeightsNotFound, res.Weights)
	}
	res.Fingerprint = m.fingerprint(res.Weights)
	m.printf("Training finished: %s", res.Weights)
	return res, nil
}

// Create starts a new training run from base weights. It refuses to touch an
// existing run directory.
func (m *Manager) Create(ctx context.Context, req Request) (*TrainResult, error) {
	var res *TrainResult
	err := m.record(ctx, OpCreate, req.Name, func() (history.Result, error) {
		if err := CheckName(req.Name); err != nil {
			return history.Result{}, err
		}
		if util.DirExists(m.RunDir(req.Name)) {
			return history.Result{}, fmt.Errorf("%w: %s", ErrModelExists, m.RunDir(req.Name))
		}
		base := req.Base
		if base == "" {
			base = m.DefaultBase
		}
		if base == "" {
			return history.Result{}, ErrBaseRequired
		}
		if err := checkBase(base); err != nil {
			return history.Result{}, err
		}

		var err error
		res, err = m.train(ctx, req.Name, base, req, false)
		if err != nil {
			return history.Result{}, err
		}
		return history.Result{Detail: res.Weights, Fingerprint: res.Fingerprint}, nil
	})
	return res, err
}

// Train trains the named model, from --base when given, else from its own
// best weights.
func (m *Manager) Train(ctx context.Context, req Request) (*TrainResult, error) {
	var res *TrainResult
	err := m.record(ctx, OpTrain, req.Name, func() (history.Result, error) {
		if err := CheckName(req.Name); err != nil {
			return history.Result{}, err
		}
		from := req.Base
		if from != "" {
			if err := checkBase(from); err != nil {
				return history.Result{}, err
			}
		} else {
			w, err := m.ResolveWeights(Request{Name: req.Name, WeightsPath: req.WeightsPath})
			if err != nil {
				return history.Result{}, err
			}
			from = w
		}

		var err error
		res, err = m.train(ctx, req.Name, from, req, true)
		if err != nil {
			return history.Result{}, err
		}
		return history.Result{Detail: res.Weights, Fingerprint: res.Fingerprint}, nil
	})
	return res, err
}

// Continue fine-tunes the named model from its existing best weights.
func (m *Manager) Continue(ctx context.Context, req Request) (*TrainResult, error) {
	var res *TrainResult
	err := m.record(ctx, OpContinue, req.Name, func() (history.Result, error) {
		if err := CheckName(req.Name); err != nil {
			return history.Result{}, err
		}
		from, err := m.ResolveWeights(Request{Name: req.Name, WeightsPath: req.WeightsPath})
		if err != nil {
			return history.Result{}, err
		}
		res, err = m.train(ctx, req.Name, from, req, true)
		if err != nil {
			return history.Result{}, err
		}
		return history.Result{Detail: res.Weights, Fingerprint: res.Fingerprint}, nil
	})
	return res, err
}

// Validate evaluates the model on its dataset.
func (m *Manager) Validate(ctx context.Context, req Request) (*ValidateResult, error) {
	var res *ValidateResult
	err := m.record(ctx, OpValidate, req.Name, func() (history.Result, error) {
		weights, err := m.ResolveWeights(req)
		if err != nil {
			return history.Result{}, err
		}

		res = &ValidateResult{Name: req.Name, Weights: weights, Dataset: m.cfg.DatasetPath(req.Dataset)}
		args := map[string]interface{}{
			"data":  res.Dataset,
			"imgsz": m.cfg.Train.ImgSize,
			"batch": m.cfg.Train.Batch,
			"split": "val",
		}
		if m.cfg.Train.Device != "" {
			args["device"] = m.cfg.Train.Device
		}

		m.printf("Validating %s on %s", weights, res.Dataset)
		res.Metrics, err = m.fw.Validate(ctx, weights, args)
		if err != nil {
			res = nil
			return history.Result{}, err
		}
		return history.Result{Detail: formatMetrics(res.Metrics), Fingerprint: m.fingerprint(weights)}, nil
	})
	return res, err
}

// Predict runs the model on the input image and writes the detections to
// the output file. Nothing is written when the weights or the image are
// missing or the framework fails.
func (m *Manager) Predict(ctx context.Context, req Request) (*PredictResult, error) {
	var res *PredictResult
	err := m.record(ctx, OpPredict, req.Name, func() (history.Result, error) {
		var err error
		res, err = m.predict(ctx, req)
		if err != nil {
			return history.Result{}, err
		}
		return history.Result{Detail: res.Output, Detections: len(res.Detections), Fingerprint: res.Fingerprint}, nil
	})
	return res, err
}

func (m *Manager) predict(ctx context.Context, req Request) (*PredictResult, error) {
	weights, err := m.ResolveWeights(req)
	if err != nil {
		return nil, err
	}
	image := req.ImagePath
	if image == "" {
		image = m.cfg.ScreenshotPath()
	}
	if !util.FileExists(image) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, image)
	}

	m.printf("Predicting %s with %s", image, weights)
	pred, err := m.fw.Predict(ctx, weights, image, m.cfg.PredictOptions())
	if err != nil {
		return nil, err
	}
	dets, err := pred.Detections()
	if err != nil {
		return nil, err
	}

	res := &PredictResult{
		Name:        req.Name,
		Weights:     weights,
		Image:       image,
		Output:      m.cfg.OutputPath(req.Name),
		Detections:  dets,
		Fingerprint: m.fingerprint(weights),
	}
	if err := detection.WriteFile(res.Output, dets); err != nil {
		return nil, err
	}
	m.printf("Wrote %d detections to %s", len(dets), res.Output)
	return res, nil
}

// Digits runs the configured digit model (predict.digits_model) and reads
// the detected digits as a number. req.Name is ignored: the legacy flags
// share one request between operations, so --model-name belongs to the
// others. An explicit WeightsPath still overrides the digit model's weights.
// The detections are written like a normal prediction; Read is false when no
// number could be read.
func (m *Manager) Digits(ctx context.Context, req Request) (*DigitsResult, error) {
	req.Name = m.cfg.Predict.DigitsModel

	var res *DigitsResult
	err := m.record(ctx, OpDigits, req.Name, func() (history.Result, error) {
		pred, err := m.predict(ctx, req)
		if err != nil {
			return history.Result{}, err
		}
		res = &DigitsResult{PredictResult: *pred}
		res.Digits, _ = detection.ReadDigits(pred.Detections)
		n, err := detection.ReadNumber(pred.Detections)
		switch {
		case err == nil:
			res.Number = n
			res.Read = true
			m.printf("Read number: %d", n)
		case errors.Is(err, detection.ErrNoDigits):
			m.printf("No digits found")
		case errors.Is(err, detection.ErrNumberTooLong):
			m.printf("Read digits %s: %v", res.Digits, err)
		default:
			return history.Result{}, err
		}
		return history.Result{
			Detail:      fmt.Sprintf("number=%d read=%t", res.Number, res.Read),
			Detections:  len(pred.Detections),
			Fingerprint: pred.Fingerprint,
		}, nil
	})
	return res, err
}

// Delete removes the model's run directory.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.record(ctx, OpDelete, name, func() (history.Result, error) {
		if err := CheckName(name); err != nil {
			return history.Result{}, err
		}
		dir := m.RunDir(name)
		if !util.DirExists(dir) {
			return history.Result{}, fmt.Errorf("%w: %s", ErrModelNotFound, dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			return history.Result{}, fmt.Errorf("failed to delete %s: %w", dir, err)
		}
		m.printf("Deleted %s", dir)
		return history.Result{Detail: dir}, nil
	})
}

func formatMetrics(m yolo.Metrics) string {
	keys := []string{"precision", "recall", "mAP50", "mAP50-95"}
	s := ""
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s != "" {
				s += " "
			}
			s += fmt.Sprintf("%s=%.4f", k, v)
		}
	}
	return s
}
