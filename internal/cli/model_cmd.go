// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// model_cmd.go - Model lifecycle commands for yolokit.
//
// Commands: create, train, continue, val, predict, digits, delete, list
//
// Examples:
//   yolokit create --model-name buildings --base yolov8s.pt --dataset-type buildings
//   yolokit train buildings --epochs 50
//   yolokit predict --model-name buildings --image-path shot.png
//   yolokit --delete-model --create-model --predict --model-name level
//
// "delete" asks for confirmation on a terminal unless --yes is given.
//
// The legacy operation flags run in the fixed order delete, create, train,
// continue, testvals, predict, zahl_erkennen. A failed operation is reported
// and the remaining ones still run; the exit code reflects the first failure.
package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/yolokit/internal/detect"
	"github.com/jeranaias/yolokit/internal/detection"
	"github.com/jeranaias/yolokit/internal/model"
)

// requestFromArgs builds a model request from the model flags. A leading
// positional argument is accepted as the model name.
func requestFromArgs(raw []string) (model.Request, error) {
	p := NewArgParser(raw)

	epochs, err := optionalPositiveInt(p, "epochs")
	if err != nil {
		return model.Request{}, err
	}

	req := model.Request{
		Name:        p.FirstFlag("model-name", "name"),
		Base:        p.Flag("base"),
		Dataset:     p.FirstFlag("dataset-type", "dataset"),
		Epochs:      epochs,
		WeightsPath: p.FirstFlag("path", "weights"),
		ImagePath:   p.FirstFlag("image-path", "image"),
	}
	if req.Name == "" {
		req.Name = p.Positional(0)
	}
	return req, nil
}

// HandleModel runs one model operation.
func HandleModel(cmd Command, args Args) error {
	req, err := requestFromArgs(args.Raw)
	if err != nil {
		return err
	}

	if cmd == CmdDelete {
		opts := confirmationFromArgs(args, NewArgParser(args.Raw))
		ok, err := RequireConfirmation("delete model "+req.Name, map[string]string{
			"Model": req.Name,
		}, opts)
		if err != nil {
			return err
		}
		if !ok {
			ShowCancellationMessage()
			return nil
		}
	}

	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	data, err := a.runOperation(ctx, cmd, req)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse(cmd.String(), data).Print()
	}
	return nil
}

// HandleLegacy runs the operations selected by the legacy flags in order.
func HandleLegacy(args Args) error {
	req, err := requestFromArgs(args.Raw)
	if err != nil {
		return err
	}

	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	results := make([]OperationResult, 0, len(args.Ops))
	var firstErr error
	failed := 0
	for _, op := range args.Ops {
		if ctx.Err() != nil {
			break
		}
		data, err := a.runOperation(ctx, op, req)
		res := OperationResult{Operation: op.String(), Success: err == nil, Data: data}
		if err != nil {
			failed++
			res.Error = err.Error()
			res.Data = nil
			if firstErr == nil {
				firstErr = err
			}
			if !args.JSON {
				DisplayCommandError(op.String(), err, false)
			}
		}
		results = append(results, res)
	}

	if args.JSON {
		resp := NewJSONResponse(CmdLegacy.String(), results)
		resp.Success = failed == 0
		if firstErr != nil {
			msg := firstErr.Error()
			resp.Error = &msg
			resp.ErrorType = ErrorType(firstErr)
		}
		resp.Print()
	}

	if firstErr == nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	if len(args.Ops) > 1 && !args.JSON {
		a.printf("%s\n", WarningStyle.Render(fmt.Sprintf("%d of %d operations failed", failed, len(args.Ops))))
	}
	return &reportedError{err: firstErr}
}

// runOperation dispatches one operation and prints its human summary.
func (a *app) runOperation(ctx context.Context, cmd Command, req model.Request) (interface{}, error) {
	switch cmd {
	case CmdCreate:
		if req.Base == "" {
			a.manager.DefaultBase = a.recommendedBase()
		}
		res, err := a.manager.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		a.printTrainResult("Created", res)
		return res, nil

	case CmdTrain:
		res, err := a.manager.Train(ctx, req)
		if err != nil {
			return nil, err
		}
		a.printTrainResult("Trained", res)
		return res, nil

	case CmdContinue:
		res, err := a.manager.Continue(ctx, req)
		if err != nil {
			return nil, err
		}
		a.printTrainResult("Continued", res)
		return res, nil

	case CmdValidate:
		res, err := a.manager.Validate(ctx, req)
		if err != nil {
			return nil, err
		}
		a.println(SectionStyle.Render("Validation: " + res.Weights))
		a.println(RenderKV("Dataset", res.Dataset))
		for _, k := range sortedMetricKeys(res.Metrics) {
			a.println(RenderKV(k, HighlightStyle.Render(fmt.Sprintf("%.4f", res.Metrics[k]))))
		}
		return res, nil

	case CmdPredict:
		res, err := a.manager.Predict(ctx, req)
		if err != nil {
			return nil, err
		}
		a.printDetections(res.Detections)
		a.println(DimStyle.Render(fmt.Sprintf("%d detections written to %s", len(res.Detections), res.Output)))
		return res, nil

	case CmdDigits:
		res, err := a.manager.Digits(ctx, req)
		if err != nil {
			return nil, err
		}
		switch {
		case res.Read:
			a.println(RenderKV("Number", HighlightStyle.Render(strconv.Itoa(res.Number))))
		case res.Digits != "":
			a.println(WarningStyle.Render("Digits too long for a number: " + res.Digits))
		default:
			a.println(WarningStyle.Render("No digits detected"))
		}
		return res, nil

	case CmdDelete:
		if err := a.manager.Delete(ctx, req.Name); err != nil {
			return nil, err
		}
		return map[string]string{"name": req.Name, "deleted": a.manager.RunDir(req.Name)}, nil
	}
	return nil, fmt.Errorf("%s is not a model operation", cmd)
}

// recommendedBase picks base weights for the local GPU.
func (a *app) recommendedBase() string {
	gpu, err := detect.DetectGPUCached()
	if err != nil {
		gpu = nil
	}
	rec := detect.Recommend(gpu)
	a.println(DimStyle.Render(fmt.Sprintf("No --base given, using %s (%s)", rec.BaseWeights, rec.Description)))
	return rec.BaseWeights
}

func (a *app) printTrainResult(verb string, res *model.TrainResult) {
	a.println(SuccessStyle.Render(fmt.Sprintf("%s %s", verb, res.Name)))
	a.println(RenderKV("From", res.From))
	a.println(RenderKV("Dataset", res.Dataset))
	a.println(RenderKV("Epochs", strconv.Itoa(res.Epochs)))
	a.println(RenderKV("Weights", res.Weights))
	if len(res.Metrics) > 0 {
		a.println(RenderKV("Metrics", formatMetrics(res.Metrics)))
	}
}

func (a *app) printDetections(dets []detection.Detection) {
	if len(dets) == 0 {
		a.println(DimStyle.Render("No objects detected"))
		return
	}
	rows := make([][]string, 0, len(dets))
	for i, d := range dets {
		b := d.BoundingBox
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			d.ClassName,
			fmt.Sprintf("%.2f", d.Confidence),
			fmt.Sprintf("%.0f,%.0f %.0f,%.0f", b[0], b[1], b[2], b[3]),
		})
	}
	a.printf("%s", RenderTable([]string{"#", "CLASS", "CONF", "BOX"}, rows))

	counts := detection.CountByClass(dets)
	parts := make([]string, 0, len(counts))
	for name, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", name, n))
	}
	sort.Strings(parts)
	a.println(DimStyle.Render(strings.Join(parts, " ")))
}

// HandleList lists the models in the runs directory.
func HandleList(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	mgr := model.NewManager(cfg, nil, nil, nil)
	infos, err := mgr.List()
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("list", infos).Print()
	}
	if len(infos) == 0 {
		fmt.Println(DimStyle.Render("No models in " + cfg.Paths.RunsDir))
		return nil
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		weights := "missing"
		size := "-"
		if info.HasWeights {
			weights = "best.pt"
			size = formatBytes(info.Size)
		}
		rows = append(rows, []string{info.Name, weights, size, formatAge(info.ModTime)})
	}
	fmt.Print(RenderTable([]string{"MODEL", "WEIGHTS", "SIZE", "MODIFIED"}, rows))
	return nil
}
