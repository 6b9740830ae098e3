// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// filter_cmd.go - Building detection filter for yolokit.
//
// Command: filter
//
// Reads a detection file, drops categories and optionally replaces wall
// detections by lines joining nearby walls.
//
// Flags:
//   --input <file>           Detection file (default: the model's output file)
//   --output <file>          Where to write (default: overwrite the input)
//   --model-name <name>      Selects the default input/output file
//   --no-normal              Drop ordinary buildings
//   --no-walls               Drop walls
//   --no-defences            Drop defence buildings
//   --connect-walls <px>     Replace walls by lines between centers within px
//   --lines-output <file>    Where wall lines go (default: walls.json next to output)
//
// Examples:
//   yolokit filter --model-name buildings --no-normal
//   yolokit filter --input data.json --connect-walls 120
package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/jeranaias/yolokit/internal/buildings"
	"github.com/jeranaias/yolokit/internal/detection"
	"github.com/jeranaias/yolokit/internal/util"
)

// FilterData is returned by the filter command.
type FilterData struct {
	Input       string           `json:"input"`
	Output      string           `json:"output"`
	Kept        int              `json:"kept"`
	Dropped     int              `json:"dropped"`
	Categories  map[string]int   `json:"categories"`
	WallLines   []buildings.Line `json:"wall_lines,omitempty"`
	LinesOutput string           `json:"lines_output,omitempty"`
}

// filterFromArgs returns the category filter selected by the --no-* flags,
// or nil when none is given.
func filterFromArgs(p *ArgParser) *buildings.Options {
	if !p.HasFlag("no-normal") && !p.HasFlag("no-walls") && !p.HasFlag("no-defences") {
		return nil
	}
	return &buildings.Options{
		ShowNormal:   !p.BoolFlag("no-normal"),
		ShowWalls:    !p.BoolFlag("no-walls"),
		ShowDefences: !p.BoolFlag("no-defences"),
	}
}

// HandleFilter handles the "filter" command.
func HandleFilter(args Args) error {
	p := NewArgParser(args.Raw)
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	input := p.FlagOrDefault("input", cfg.OutputPath(p.FirstFlag("model-name", "name")))
	output := p.FlagOrDefault("output", input)

	dets, err := detection.ReadFile(input)
	if err != nil {
		return WrapError(err, "failed to read detections")
	}
	before := len(dets)

	if opts := filterFromArgs(p); opts != nil {
		dets = buildings.Filter(dets, *opts)
	}

	data := FilterData{Input: input, Output: output}
	if p.HasFlag("connect-walls") {
		dist, _, err := p.FlagFloat("connect-walls")
		if err != nil {
			return err
		}
		if dist <= 0 {
			return NewValidationErrorWithExample("connect-walls", p.Flag("connect-walls"),
				"must be a positive distance in pixels", "--connect-walls 120")
		}
		dets, data.WallLines = buildings.ConnectWalls(dets, dist)
		data.LinesOutput = p.FlagOrDefault("lines-output", filepath.Join(filepath.Dir(output), "walls.json"))
		if err := writeLines(data.LinesOutput, data.WallLines); err != nil {
			return err
		}
	}

	if err := detection.WriteFile(output, dets); err != nil {
		return err
	}

	data.Kept = len(dets)
	data.Dropped = before - len(dets)
	data.Categories = make(map[string]int)
	for _, d := range dets {
		data.Categories[buildings.Classify(d.ClassName).String()]++
	}

	if args.JSON {
		return NewJSONResponse("filter", data).Print()
	}
	if args.Quiet {
		return nil
	}

	fmt.Println(RenderKV("Kept", fmt.Sprintf("%d of %d", data.Kept, before)))
	cats := make([]string, 0, len(data.Categories))
	for c := range data.Categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Println(RenderKV("  "+c, fmt.Sprintf("%d", data.Categories[c])))
	}
	if data.LinesOutput != "" {
		fmt.Println(RenderKV("Wall lines", fmt.Sprintf("%d -> %s", len(data.WallLines), data.LinesOutput)))
	}
	fmt.Println(DimStyle.Render("Written to " + output))
	return nil
}

// writeLines writes wall lines as an indented JSON array.
func writeLines(path string, lines []buildings.Line) error {
	if lines == nil {
		lines = []buildings.Line{}
	}
	data, err := json.MarshalIndent(lines, "", "    ")
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
