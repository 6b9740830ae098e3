// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/detection"
	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/yolo"
)

// fakeFramework records calls and simulates framework side effects.
type fakeFramework struct {
	runsDir string

	trainFrom []string
	trainArgs []map[string]interface{}
	predicted []string
	boxes     []detection.RawBox
	names     map[int]string
	metrics   yolo.Metrics
	err       error
	skipWrite bool
}

func (f *fakeFramework) Train(ctx context.Context, model string, args map[string]interface{}) (*yolo.TrainResult, error) {
	f.trainFrom = append(f.trainFrom, model)
	f.trainArgs = append(f.trainArgs, args)
	if f.err != nil {
		return nil, f.err
	}
	dir := filepath.Join(f.runsDir, args["name"].(string))
	if !f.skipWrite {
		if err := os.MkdirAll(filepath.Join(dir, "weights"), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, "weights", "best.pt"), []byte("weights:"+model), 0644); err != nil {
			return nil, err
		}
	}
	return &yolo.TrainResult{SaveDir: dir, Metrics: f.metrics}, nil
}

func (f *fakeFramework) Validate(ctx context.Context, model string, args map[string]interface{}) (yolo.Metrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

func (f *fakeFramework) Predict(ctx context.Context, model, source string, args map[string]interface{}) (*yolo.Prediction, error) {
	f.predicted = append(f.predicted, model)
	if f.err != nil {
		return nil, f.err
	}
	return &yolo.Prediction{Boxes: f.boxes, Names: f.names}, nil
}

type fakeRecorder struct {
	ops     []string
	results []history.Result
}

func (r *fakeRecorder) Begin(ctx context.Context, op, model string) (string, error) {
	r.ops = append(r.ops, op+":"+model)
	return "id", nil
}

func (r *fakeRecorder) Finish(ctx context.Context, id string, res history.Result) error {
	r.results = append(r.results, res)
	return nil
}

type fixture struct {
	dir string
	cfg *config.Config
	fw  *fakeFramework
	rec *fakeRecorder
	mgr *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RunsDir = filepath.Join(dir, "runs", "detect")
	cfg.Paths.LegacyWeights = filepath.Join(dir, "runs", "train", "exp", "weights", "best.pt")
	cfg.Paths.CommunicationDir = filepath.Join(dir, "Communication")

	fw := &fakeFramework{
		runsDir: cfg.Paths.RunsDir,
		boxes: []detection.RawBox{
			{Class: 0, Confidence: 0.9, XYXY: []float64{10, 10, 20, 20}},
			{Class: 1, Confidence: 0.8, XYXY: []float64{30, 10, 40, 20}},
			{Class: 2, Confidence: 0.7, XYXY: []float64{50, 10, 60, 20}},
		},
		names:   map[int]string{0: "1", 1: "2", 2: "mauer"},
		metrics: yolo.Metrics{"precision": 0.9, "mAP50": 0.8},
	}
	rec := &fakeRecorder{}
	return &fixture{dir: dir, cfg: cfg, fw: fw, rec: rec, mgr: NewManager(cfg, fw, rec, nil)}
}

func (f *fixture) writeWeights(t *testing.T, name string) string {
	t.Helper()
	path := f.mgr.WeightsPath(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("w"), 0644))
	return path
}

func (f *fixture) writeScreenshot(t *testing.T) {
	t.Helper()
	path := f.cfg.ScreenshotPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
}

func TestCheckName(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"buildings", nil},
		{"zahlen_v2", nil},
		{"", ErrNameRequired},
		{"  ", ErrNameRequired},
		{"..", ErrInvalidName},
		{"a/b", ErrInvalidName},
		{`a\b`, ErrInvalidName},
	}
	for _, tt := range tests {
		err := CheckName(tt.name)
		if tt.want == nil {
			require.NoError(t, err, tt.name)
		} else {
			require.ErrorIs(t, err, tt.want, tt.name)
		}
	}
}

func TestResolveWeights(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.ResolveWeights(Request{Name: "buildings"})
	require.ErrorIs(t, err, ErrWeightsNotFound)

	want := f.writeWeights(t, "buildings")
	got, err := f.mgr.ResolveWeights(Request{Name: "buildings"})
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = f.mgr.ResolveWeights(Request{})
	require.ErrorIs(t, err, ErrNameRequired)

	require.NoError(t, os.MkdirAll(filepath.Dir(f.cfg.Paths.LegacyWeights), 0755))
	require.NoError(t, os.WriteFile(f.cfg.Paths.LegacyWeights, []byte("w"), 0644))
	got, err = f.mgr.ResolveWeights(Request{})
	require.NoError(t, err)
	require.Equal(t, f.cfg.Paths.LegacyWeights, got)

	got, err = f.mgr.ResolveWeights(Request{Name: "other", WeightsPath: want})
	require.NoError(t, err, "explicit path wins over the name")
	require.Equal(t, want, got)

	_, err = f.mgr.ResolveWeights(Request{WeightsPath: filepath.Join(f.dir, "nope.pt")})
	require.ErrorIs(t, err, ErrWeightsNotFound)
}

func TestPredict_MissingWeightsWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.writeScreenshot(t)

	for _, op := range []func() error{
		func() error { _, err := f.mgr.Predict(context.Background(), Request{Name: "buildings"}); return err },
		func() error { _, err := f.mgr.Train(context.Background(), Request{Name: "buildings"}); return err },
		func() error { _, err := f.mgr.Continue(context.Background(), Request{Name: "buildings"}); return err },
	} {
		require.ErrorIs(t, op(), ErrWeightsNotFound)
	}

	require.NoFileExists(t, f.cfg.OutputPath("buildings"))
	require.NoFileExists(t, f.cfg.OutputPath(""))
	require.Empty(t, f.fw.predicted)
	require.Empty(t, f.fw.trainFrom)
	require.Len(t, f.rec.results, 3)
	for _, r := range f.rec.results {
		require.Equal(t, history.StatusFailed, r.Status)
	}
}

func TestPredict_MissingImage(t *testing.T) {
	f := newFixture(t)
	f.writeWeights(t, "buildings")

	_, err := f.mgr.Predict(context.Background(), Request{Name: "buildings"})
	require.ErrorIs(t, err, ErrImageNotFound)
	require.NoFileExists(t, f.cfg.OutputPath("buildings"))
}

func TestPredict_WritesOutput(t *testing.T) {
	f := newFixture(t)
	weights := f.writeWeights(t, "buildings")
	f.writeScreenshot(t)

	res, err := f.mgr.Predict(context.Background(), Request{Name: "buildings"})
	require.NoError(t, err)
	require.Equal(t, weights, res.Weights)
	require.Equal(t, filepath.Join(f.cfg.Paths.CommunicationDir, "buildings", "data.json"), res.Output)
	require.Len(t, res.Detections, 3)
	require.Len(t, res.Fingerprint, 64)

	written, err := detection.ReadFile(res.Output)
	require.NoError(t, err)
	require.Equal(t, res.Detections, written)
	require.Equal(t, "mauer", written[2].ClassName)

	require.Equal(t, []string{"predict:buildings"}, f.rec.ops)
	require.Equal(t, history.StatusOK, f.rec.results[0].Status)
	require.Equal(t, 3, f.rec.results[0].Detections)
}

func TestPredict_FrameworkErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.writeWeights(t, "buildings")
	f.writeScreenshot(t)
	f.fw.err = &yolo.FrameworkError{Action: "predict", Message: "CUDA out of memory"}

	_, err := f.mgr.Predict(context.Background(), Request{Name: "buildings"})
	var fe *yolo.FrameworkError
	require.True(t, errors.As(err, &fe))
	require.NoFileExists(t, f.cfg.OutputPath("buildings"))
}

func TestDigits(t *testing.T) {
	f := newFixture(t)
	f.writeWeights(t, "zahlen")
	f.writeScreenshot(t)

	res, err := f.mgr.Digits(context.Background(), Request{})
	require.NoError(t, err)
	require.True(t, res.Read)
	require.Equal(t, 12, res.Number)
	require.Equal(t, "zahlen", res.Name)
	require.FileExists(t, f.cfg.OutputPath("zahlen"))
	require.Equal(t, []string{"digits:zahlen"}, f.rec.ops)
}

func TestDigits_IgnoresModelName(t *testing.T) {
	f := newFixture(t)
	f.writeWeights(t, "zahlen")
	f.writeWeights(t, "buildings")
	f.writeScreenshot(t)

	// --predict --zahl_erkennen --model-name buildings shares one request.
	res, err := f.mgr.Digits(context.Background(), Request{Name: "buildings"})
	require.NoError(t, err)
	require.Equal(t, "zahlen", res.Name)
	require.Equal(t, f.mgr.WeightsPath("zahlen"), res.Weights)
	require.Equal(t, f.cfg.OutputPath("zahlen"), res.Output)
	require.NoFileExists(t, f.cfg.OutputPath("buildings"))
	require.Equal(t, []string{"digits:zahlen"}, f.rec.ops)
}

func TestDigits_NoDigits(t *testing.T) {
	f := newFixture(t)
	f.writeWeights(t, "zahlen")
	f.writeScreenshot(t)
	f.fw.names = map[int]string{0: "a", 1: "b", 2: "c"}

	res, err := f.mgr.Digits(context.Background(), Request{})
	require.NoError(t, err)
	require.False(t, res.Read)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Create(context.Background(), Request{Name: "buildings"})
	require.ErrorIs(t, err, ErrBaseRequired)

	res, err := f.mgr.Create(context.Background(), Request{Name: "buildings", Base: "yolov8n.pt", Dataset: "buildings", Epochs: 3})
	require.NoError(t, err)
	require.Equal(t, f.mgr.WeightsPath("buildings"), res.Weights)
	require.Equal(t, filepath.Join("dataset_buildings", "data.yaml"), res.Dataset)

	args := f.fw.trainArgs[0]
	require.Equal(t, 3, args["epochs"])
	require.Equal(t, false, args["exist_ok"])
	require.Equal(t, "buildings", args["name"])
	require.Equal(t, f.cfg.Paths.RunsDir, args["project"])
	require.Equal(t, 640, args["imgsz"], "configuration keys are forwarded")

	_, err = f.mgr.Create(context.Background(), Request{Name: "buildings", Base: "yolov8n.pt"})
	require.ErrorIs(t, err, ErrModelExists)
	require.Len(t, f.fw.trainFrom, 1)
}

func TestCreate_DefaultBaseAndLocalBase(t *testing.T) {
	f := newFixture(t)
	f.mgr.DefaultBase = "yolov8s.pt"

	_, err := f.mgr.Create(context.Background(), Request{Name: "a"})
	require.NoError(t, err)
	require.Equal(t, "yolov8s.pt", f.fw.trainFrom[0])

	_, err = f.mgr.Create(context.Background(), Request{Name: "b", Base: filepath.Join(f.dir, "missing", "base.pt")})
	require.ErrorIs(t, err, ErrWeightsNotFound)
}

func TestTrainAndContinue(t *testing.T) {
	f := newFixture(t)
	weights := f.writeWeights(t, "level")

	res, err := f.mgr.Train(context.Background(), Request{Name: "level"})
	require.NoError(t, err)
	require.Equal(t, weights, res.From)
	require.Equal(t, f.cfg.Train.Epochs, f.fw.trainArgs[0]["epochs"])

	_, err = f.mgr.Train(context.Background(), Request{Name: "level", Base: "yolov8m.pt"})
	require.NoError(t, err)
	require.Equal(t, "yolov8m.pt", f.fw.trainFrom[1])

	_, err = f.mgr.Continue(context.Background(), Request{Name: "level", Epochs: 7})
	require.NoError(t, err)
	require.Equal(t, true, f.fw.trainArgs[2]["exist_ok"])
	require.Equal(t, 7, f.fw.trainArgs[2]["epochs"])
}

func TestTrain_NoWeightsProduced(t *testing.T) {
	f := newFixture(t)
	f.fw.skipWrite = true

	_, err := f.mgr.Create(context.Background(), Request{Name: "x", Base: "yolov8n.pt"})
	require.ErrorIs(t, err, ErrWeightsNotFound)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	f.writeWeights(t, "buildings")

	res, err := f.mgr.Validate(context.Background(), Request{Name: "buildings", Dataset: "buildings"})
	require.NoError(t, err)
	require.InDelta(t, 0.9, res.Metrics["precision"], 1e-9)
	require.Equal(t, "precision=0.9000 mAP50=0.8000", f.rec.results[0].Detail)
}

func TestDeleteAndList(t *testing.T) {
	f := newFixture(t)

	list, err := f.mgr.List()
	require.NoError(t, err)
	require.Empty(t, list)

	f.writeWeights(t, "b")
	require.NoError(t, os.MkdirAll(f.mgr.RunDir("a"), 0755))

	list, err = f.mgr.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].Name)
	require.False(t, list[0].HasWeights)
	require.True(t, list[1].HasWeights)
	require.Equal(t, int64(1), list[1].Size)

	require.NoError(t, f.mgr.Delete(context.Background(), "b"))
	require.NoDirExists(t, f.mgr.RunDir("b"))
	require.ErrorIs(t, f.mgr.Delete(context.Background(), "b"), ErrModelNotFound)
	require.ErrorIs(t, f.mgr.Delete(context.Background(), "../x"), ErrInvalidName)
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.pt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	fp, err := Fingerprint(path)
	require.NoError(t, err)
	// BLAKE2b-256("abc")
	require.Equal(t, "bddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319", fp)
}
