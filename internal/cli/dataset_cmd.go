// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// dataset_cmd.go - Dataset tooling for yolokit.
//
// Command: dataset [subcommand]
//
// Subcommands:
//   info (default)           Images, labels and class instances per split
//   init                     Create data.yaml and the images/labels layout
//   label <image>            Add a labeled image to the dataset
//     --labels <file>        Lines of "class x1 y1 x2 y2" in pixels
//     --detections <file>    Use a detection JSON file as labels
//   split <image>            Cut an image into tiles
//     --parts N              Number of tiles (default 4)
//     --output <dir>         Where tiles go (default: next to the image)
//
// All subcommands take --dataset-type to select the dataset.
//
// Without --labels or --detections, label prompts for boxes interactively
// with tab completion of known class names.
package cli

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/yolokit/internal/dataset"
	"github.com/jeranaias/yolokit/internal/detection"
)

// HandleDataset handles the "dataset" command.
func HandleDataset(args Args) error {
	p := NewArgParser(args.Raw)
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	yamlPath := cfg.DatasetPath(p.FirstFlag("dataset-type", "dataset"))

	switch args.Subcommand {
	case "", "info", "stats":
		ds, err := dataset.Open(yamlPath)
		if err != nil {
			return err
		}
		st, err := ds.Stats()
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("dataset", st).Print()
		}
		printDatasetStats(ds, st)
		return nil

	case "init":
		ds, err := dataset.Init(yamlPath)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("dataset", map[string]interface{}{
				"data_yaml": ds.YAMLPath,
				"classes":   ds.Data.Names.List(),
			}).Print()
		}
		fmt.Println(SuccessStyle.Render("Dataset ready: " + ds.YAMLPath))
		return nil

	case "label":
		return handleDatasetLabel(args, p, yamlPath)

	case "split":
		image := p.Positional(1)
		if image == "" {
			image = p.FirstFlag("image-path", "image")
		}
		if image == "" {
			return ErrMissingArgument("image", "yolokit dataset split shot.png --parts 4")
		}
		parts, err := ParseIntWithValidation(p.FlagOrDefault("parts", "4"), "parts")
		if err != nil {
			return err
		}
		if parts < 1 {
			return NewValidationError("parts", strconv.Itoa(parts), "must be at least 1")
		}
		outDir := p.FlagOrDefault("output", filepath.Dir(image))
		tiles, err := dataset.Split(image, parts, outDir)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("dataset", map[string]interface{}{"tiles": tiles}).Print()
		}
		for _, t := range tiles {
			fmt.Println(t)
		}
		if !args.Quiet {
			fmt.Println(DimStyle.Render(fmt.Sprintf("%d tiles written to %s", len(tiles), outDir)))
		}
		return nil

	default:
		return ErrUnknownSubcommand("dataset", args.Subcommand, []string{"info", "init", "label", "split"})
	}
}

func handleDatasetLabel(args Args, p *ArgParser, yamlPath string) error {
	image := p.Positional(1)
	if image == "" {
		image = p.FirstFlag("image-path", "image")
	}
	if image == "" {
		return ErrMissingArgument("image", "yolokit dataset label shot.png --labels boxes.txt")
	}

	ds, err := dataset.Open(yamlPath)
	if err != nil {
		return err
	}
	if ds.Contains(image) && !args.Quiet {
		fmt.Println(WarningStyle.Render(filepath.Base(image) + " is already in the dataset, it will be replaced"))
	}

	var labels []dataset.Label
	switch {
	case p.HasFlag("labels"):
		if labels, err = dataset.ReadLabelFile(p.Flag("labels")); err != nil {
			return err
		}
	case p.HasFlag("detections"):
		dets, err := detection.ReadFile(p.Flag("detections"))
		if err != nil {
			return err
		}
		labels = dataset.LabelsFromDetections(dets)
	default:
		if err := RequiresTTY("dataset label"); err != nil {
			return err
		}
		if labels, err = promptLabels(ds); err != nil {
			return err
		}
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	res, err := ds.AddLabeled(image, labels, r)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("dataset", res).Print()
	}
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("Added %s to %s", filepath.Base(image), res.Split)))
	fmt.Println(RenderKV("Boxes", strconv.Itoa(res.Boxes)))
	fmt.Println(RenderKV("Labels", res.LabelPath))
	if len(res.NewClasses) > 0 {
		fmt.Println(RenderKV("New classes", strings.Join(res.NewClasses, ", ")))
	}
	return nil
}

// promptLabels reads "class x1 y1 x2 y2" lines until an empty line. Tab
// completes the class name from data.yaml and from classes typed earlier.
func promptLabels(ds *dataset.Dataset) ([]dataset.Label, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	typed := make(map[string]bool)
	line.SetCompleter(func(input string) []string {
		if strings.Contains(input, " ") {
			return nil
		}
		out := ds.Complete(input)
		for name := range typed {
			if strings.HasPrefix(name, input) && !containsString(out, name) {
				out = append(out, name)
			}
		}
		return out
	})

	fmt.Println(DimStyle.Render("Enter boxes as: class x1 y1 x2 y2 (empty line to finish)"))
	var labels []dataset.Label
	for {
		input, err := line.Prompt(fmt.Sprintf("box %d> ", len(labels)+1))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return nil, NewCommandError("dataset", "label", "aborted", err)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			break
		}
		l, err := dataset.ParseLabelLine(input)
		if err != nil {
			fmt.Println(ErrorStyle.Render(err.Error()))
			continue
		}
		line.AppendHistory(input)
		typed[l.Class] = true
		labels = append(labels, l)
	}
	if len(labels) == 0 {
		return nil, dataset.ErrNoLabels
	}
	return labels, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func printDatasetStats(ds *dataset.Dataset, st *dataset.Stats) {
	fmt.Println(TitleStyle.Render("Dataset " + ds.YAMLPath))

	rows := make([][]string, 0, len(dataset.Splits))
	for _, split := range dataset.Splits {
		ss := st.Splits[split]
		rows = append(rows, []string{
			split,
			strconv.Itoa(ss.Images),
			strconv.Itoa(ss.Labels),
			strconv.Itoa(ss.Unlabeled),
		})
	}
	fmt.Print(RenderTable([]string{"SPLIT", "IMAGES", "LABELS", "UNLABELED"}, rows))
	fmt.Println()

	if len(st.Classes) == 0 {
		fmt.Println(DimStyle.Render("No classes defined"))
		return
	}
	rows = rows[:0]
	for _, c := range st.Classes {
		rows = append(rows, []string{strconv.Itoa(c.ID), c.Name, strconv.Itoa(c.Instances)})
	}
	fmt.Print(RenderTable([]string{"ID", "CLASS", "INSTANCES"}, rows))
	if st.Unknown > 0 {
		fmt.Println(WarningStyle.Render(fmt.Sprintf("%d label lines use class ids missing from data.yaml", st.Unknown)))
	}
}
