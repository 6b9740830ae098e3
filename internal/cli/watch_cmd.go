// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watch_cmd.go - Continuous prediction for yolokit.
//
// Command: watch
//
// Loads the model once in a long-lived framework process, then predicts
// every time the input image changes. Each prediction replaces the output
// JSON file; with --listen it is also pushed to WebSocket clients.
//
// Flags:
//   --model-name, --path, --image-path   As for predict
//   --listen <addr>                      WebSocket address (default watch.listen)
//   --debounce <ms>                      Quiet period after a change
//   --max-per-second <n>                 Prediction rate limit
//   --no-normal, --no-walls, --no-defences  Drop building categories before writing
//
// Example:
//   yolokit watch --model-name buildings --listen 127.0.0.1:8765
package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jeranaias/yolokit/internal/broadcast"
	"github.com/jeranaias/yolokit/internal/buildings"
	"github.com/jeranaias/yolokit/internal/detection"
	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/watch"
	"github.com/jeranaias/yolokit/internal/yolo"
)

// OpWatch is the history operation name of a watch session.
const OpWatch = "watch"

// HandleWatch handles the "watch" command.
func HandleWatch(args Args) error {
	req, err := requestFromArgs(args.Raw)
	if err != nil {
		return err
	}
	p := NewArgParser(args.Raw)

	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := watch.Options{
		Image:        req.ImagePath,
		Debounce:     time.Duration(a.cfg.Watch.DebounceMS) * time.Millisecond,
		MaxPerSecond: a.cfg.Watch.MaxPerSecond,
		Initial:      true,
	}
	if opts.Image == "" {
		opts.Image = a.cfg.ScreenshotPath()
	}
	if p.HasFlag("debounce") {
		ms, err := ParseIntWithValidation(p.Flag("debounce"), "debounce")
		if err != nil {
			return err
		}
		opts.Debounce = time.Duration(ms) * time.Millisecond
	}
	if rate, ok, err := p.FlagFloat("max-per-second"); err != nil {
		return err
	} else if ok {
		opts.MaxPerSecond = rate
	}
	listen := p.FlagOrDefault("listen", a.cfg.Watch.Listen)

	weights, err := a.manager.ResolveWeights(req)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	runID := a.beginWatch(ctx, req.Name)

	a.println(DimStyle.Render("Loading " + weights))
	session, err := a.bridge.StartSession(ctx, weights, a.cfg.PredictOptions())
	if err != nil {
		a.finishWatch(ctx, runID, watch.Stats{}, err)
		return err
	}
	defer session.Close()

	var hub *broadcast.Hub
	serveErr := make(chan error, 1)
	if listen != "" {
		hub = broadcast.NewHub()
		go func() { serveErr <- broadcast.Serve(ctx, listen, hub) }()
		a.println(RenderKV("Broadcasting", "ws://"+listen+"/ws"))
	}

	w := &watchTarget{
		session: session,
		output:  a.cfg.OutputPath(req.Name),
		hub:     hub,
		filter:  filterFromArgs(p),
		printf:  a.printf,
	}
	watcher := watch.New(opts, w.handle)

	a.println(RenderKV("Watching", opts.Image))
	a.println(RenderKV("Output", w.output))
	a.println(DimStyle.Render("Press Ctrl+C to stop"))

	runErr := make(chan error, 1)
	go func() { runErr <- watcher.Run(ctx) }()

	select {
	case err = <-runErr:
	case err = <-serveErr:
		// The server stops only on error before ctx is done.
		stop()
		<-runErr
	}

	stats := watcher.Stats()
	a.finishWatch(ctx, runID, stats, err)
	if err != nil {
		return err
	}

	data := WatchData{
		Model:    req.Name,
		Weights:  weights,
		Image:    opts.Image,
		Output:   w.output,
		Listen:   listen,
		Runs:     stats.Runs,
		Failures: stats.Failures,
	}
	if args.JSON {
		return NewJSONResponse("watch", data).Print()
	}
	a.printf("\nStopped after %d predictions (%d failed)\n", stats.Runs, stats.Failures)
	return nil
}

// watchTarget runs one prediction per image change.
type watchTarget struct {
	session *yolo.Session
	output  string
	hub     *broadcast.Hub
	filter  *buildings.Options
	printf  func(format string, args ...interface{})
}

func (w *watchTarget) handle(ctx context.Context, image string) error {
	start := time.Now()
	pred, err := w.session.Predict(ctx, image, nil)
	if err != nil {
		return err
	}
	dets, err := pred.Detections()
	if err != nil {
		return err
	}
	if w.filter != nil {
		dets = buildings.Filter(dets, *w.filter)
	}

	if err := detection.WriteFile(w.output, dets); err != nil {
		return err
	}
	if w.hub != nil {
		data, err := detection.Marshal(dets)
		if err != nil {
			return err
		}
		w.hub.Broadcast(data)
	}
	w.printf("%s %d detections in %s\n",
		DimStyle.Render(time.Now().Format("15:04:05")), len(dets), formatDurationShort(time.Since(start)))
	return nil
}

// beginWatch records the session start; "" when history is unavailable.
func (a *app) beginWatch(ctx context.Context, name string) string {
	if a.store == nil {
		return ""
	}
	id, err := a.store.Begin(ctx, OpWatch, name)
	if err != nil {
		log.Printf("HISTORY_BEGIN_FAILED | op=%s error=%v", OpWatch, err)
		return ""
	}
	return id
}

func (a *app) finishWatch(ctx context.Context, id string, stats watch.Stats, runErr error) {
	if id == "" {
		return
	}
	res := history.Result{
		Status: history.StatusOK,
		Detail: fmt.Sprintf("runs=%d failures=%d", stats.Runs, stats.Failures),
	}
	if runErr != nil {
		res.Status = history.StatusFailed
		res.Detail = runErr.Error()
	}
	if err := a.store.Finish(context.WithoutCancel(ctx), id, res); err != nil {
		log.Printf("HISTORY_FINISH_FAILED | op=%s error=%v", OpWatch, err)
	}
}
