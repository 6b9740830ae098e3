// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch re-runs a handler whenever an input image changes. Change
// events are debounced and handler runs are rate limited, so a burst of
// screenshot writes produces one prediction.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/jeranaias/yolokit/internal/util"
)

// Handler processes the changed image.
type Handler func(ctx context.Context, image string) error

// Options configures a Watcher.
type Options struct {
	// Image is the file to watch.
	Image string
	// Debounce is the quiet period after the last change before the handler
	// runs.
	Debounce time.Duration
	// MaxPerSecond caps handler runs. Zero or less means unlimited.
	MaxPerSecond float64
	// Initial runs the handler once at start when the image exists.
	Initial bool
}

// Stats counts handler runs.
type Stats struct {
	Runs     int64 `json:"runs"`
	Failures int64 `json:"failures"`
}

// Watcher watches one image file.
type Watcher struct {
	opts    Options
	handle  Handler
	limiter *rate.Limiter

	runs     atomic.Int64
	failures atomic.Int64
}

// New returns a watcher calling handle on changes.
func New(opts Options, handle Handler) *Watcher {
	limit := rate.Inf
	if opts.MaxPerSecond > 0 {
		limit = rate.Limit(opts.MaxPerSecond)
	}
	return &Watcher{
		opts:    opts,
		handle:  handle,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Stats returns the run counters.
func (w *Watcher) Stats() Stats {
	return Stats{Runs: w.runs.Load(), Failures: w.failures.Load()}
}

// Run blocks until ctx is cancelled. Handler errors are logged and counted;
// only watcher setup errors are returned.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.Image == "" {
		return errors.New("no image to watch")
	}
	target, err := filepath.Abs(w.opts.Image)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory: writers that replace the file by rename would
	// otherwise drop a file watch.
	dir := filepath.Dir(target)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Printf("WATCH_START | image=%s debounce=%v max_per_second=%g", target, w.opts.Debounce, w.opts.MaxPerSecond)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	if w.opts.Initial && util.FileExists(target) {
		timer.Reset(0)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("WATCH_STOP | image=%s runs=%d failures=%d", target, w.runs.Load(), w.failures.Load())
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event, target) {
				continue
			}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("WATCH_ERROR | error=%v", err)

		case <-timer.C:
			if err := w.limiter.Wait(ctx); err != nil {
				// ctx cancelled while waiting for a token.
				continue
			}
			if !util.FileExists(target) {
				continue
			}
			w.run(ctx, target)
		}
	}
}

func (w *Watcher) run(ctx context.Context, image string) {
	start := time.Now()
	w.runs.Add(1)
	if err := w.handle(ctx, image); err != nil {
		w.failures.Add(1)
		log.Printf("WATCH_RUN_FAILED | image=%s error=%v", image, err)
		return
	}
	log.Printf("WATCH_RUN | image=%s took=%v", image, time.Since(start).Round(time.Millisecond))
}

func relevant(event fsnotify.Event, target string) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
