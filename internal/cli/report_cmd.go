// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// report_cmd.go - Training report for yolokit.
//
// Command: report [model]
//
// Summarizes <runs_dir>/<model>/results.csv: the final epoch and the best
// epoch by mAP50-95. On a terminal the report is rendered as markdown.
//
// Flags:
//   --model-name <name>   Model to report on (or first positional)
//   --results <file>      Explicit results.csv
//   --raw                 Print the markdown source
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/yolokit/internal/model"
	"github.com/jeranaias/yolokit/internal/report"
)

// HandleReport handles the "report" command.
func HandleReport(args Args) error {
	p := NewArgParser(args.Raw)
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	name := p.FirstFlag("model-name", "name")
	if name == "" {
		name = p.Positional(0)
	}
	path := p.Flag("results")
	if path == "" {
		if err := model.CheckName(name); err != nil {
			return err
		}
		path = report.ResultsPath(model.NewManager(cfg, nil, nil, nil).RunDir(name))
	}

	rep, err := report.Load(path)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("report", rep).Print()
	}

	if name == "" {
		name = filepath.Base(filepath.Dir(path))
	}
	md := rep.Markdown(name)
	if p.BoolFlag("raw") || !IsStdoutTTY() {
		fmt.Print(md)
		return nil
	}
	fmt.Print(renderMarkdown(md))
	return nil
}

// renderMarkdown renders md for the terminal, falling back to the source
// when the renderer fails.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
