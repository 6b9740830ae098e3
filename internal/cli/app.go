// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/model"
	"github.com/jeranaias/yolokit/internal/yolo"
)

// app bundles what the model commands need: configuration, history store,
// framework bridge and the manager built from them.
type app struct {
	args    Args
	cfg     *config.Config
	store   *history.Store
	bridge  *yolo.PythonBridge
	manager *model.Manager

	// out receives human-readable output.
	out io.Writer
}

// loadConfig returns the configuration for this invocation. An explicit
// --config file must load; the searched locations fall back to defaults.
func loadConfig(args Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		config.UsePath(args.ConfigPath)
		cfg, err := config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, err
		}
		config.SetGlobal(cfg)
		return cfg, nil
	}
	return config.Global(), nil
}

// humanOutput is stdout, stderr in JSON mode, or discarded with --quiet.
func humanOutput(args Args) io.Writer {
	switch {
	case args.Quiet:
		return io.Discard
	case args.JSON:
		return os.Stderr
	default:
		return os.Stdout
	}
}

// progressOutput receives framework output and logs.
func progressOutput(args Args) io.Writer {
	if args.Quiet {
		return io.Discard
	}
	return os.Stderr
}

// configureLogging applies --quiet and --verbose to the standard logger.
func configureLogging(args Args) {
	log.SetOutput(progressOutput(args))
	if args.Verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
}

func newApp(args Args) (*app, error) {
	configureLogging(args)

	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	a := &app{
		args:   args,
		cfg:    cfg,
		bridge: yolo.NewPythonBridge(cfg.Python, progressOutput(args)),
		out:    humanOutput(args),
	}

	// Without a history store the operations still run.
	var rec model.Recorder
	if store, err := history.Open(cfg.Paths.HistoryDB); err != nil {
		if args.Verbose {
			log.Printf("HISTORY_UNAVAILABLE | path=%s error=%v", cfg.Paths.HistoryDB, err)
		}
	} else {
		a.store = store
		rec = store
	}

	a.manager = model.NewManager(cfg, a.bridge, rec, a.out)
	return a, nil
}

// Close releases the history store.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) println(s string) {
	fmt.Fprintln(a.out, s)
}
