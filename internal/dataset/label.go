// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	// Decoders for image.DecodeConfig.
	_ "image/jpeg"
	_ "image/png"

	"github.com/jeranaias/yolokit/internal/detection"
	"github.com/jeranaias/yolokit/internal/util"
)

// Split names.
const (
	SplitTrain = "train"
	SplitVal   = "val"
)

// Splits lists the dataset splits.
var Splits = []string{SplitTrain, SplitVal}

// TrainFraction is the share of labeled images placed in the train split.
const TrainFraction = 0.8

// ErrNoLabels is returned when AddLabeled gets no boxes.
var ErrNoLabels = errors.New("no labels given")

// Label is a named box in image pixels.
type Label struct {
	Class string
	Box   detection.Box
}

// LabelsFromDetections converts detections into labels, keeping class names.
func LabelsFromDetections(dets []detection.Detection) []Label {
	out := make([]Label, 0, len(dets))
	for _, d := range dets {
		out = append(out, Label{Class: d.ClassName, Box: d.BoundingBox})
	}
	return out
}

// ParseLabelLine parses "class x1 y1 x2 y2" in pixels. The class name may not
// contain spaces.
func ParseLabelLine(line string) (Label, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Label{}, fmt.Errorf("expected \"class x1 y1 x2 y2\", got %q", line)
	}
	var box detection.Box
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Label{}, fmt.Errorf("invalid coordinate %q: %w", fields[i+1], err)
		}
		box[i] = v
	}
	if box[0] >= box[2] || box[1] >= box[3] {
		return Label{}, fmt.Errorf("%w: %v", detection.ErrInvalidBox, box)
	}
	return Label{Class: fields[0], Box: box}, nil
}

// ReadLabelFile reads one label per line, skipping blanks and # comments.
func ReadLabelFile(path string) ([]Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []Label
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l, err := ParseLabelLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		labels = append(labels, l)
	}
	return labels, sc.Err()
}

// YOLOLine formats a box as a normalized "id cx cy w h" label line.
func YOLOLine(classID int, box detection.Box, width, height int) string {
	w := float64(width)
	h := float64(height)
	c := box.Center()
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f",
		classID, c.X/w, c.Y/h, box.Width()/w, box.Height()/h)
}

// LabelResult describes a labeled image added to a dataset.
type LabelResult struct {
	Split      string   `json:"split"`
	ImagePath  string   `json:"image_path"`
	LabelPath  string   `json:"label_path"`
	Boxes      int      `json:"boxes"`
	NewClasses []string `json:"new_classes,omitempty"`
}

// AddLabeled copies image into the train split with probability TrainFraction
// (else val), writes its label file and appends unknown classes to data.yaml.
// r may be nil to use the package random source.
func (d *Dataset) AddLabeled(imagePath string, labels []Label, r *rand.Rand) (*LabelResult, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}

	width, height, err := imageSize(imagePath)
	if err != nil {
		return nil, err
	}

	roll := rand.Float64
	if r != nil {
		roll = r.Float64
	}
	split := SplitVal
	if roll() < TrainFraction {
		split = SplitTrain
	}

	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	res := &LabelResult{
		Split:     split,
		ImagePath: filepath.Join(d.Root(), "images", split, base),
		LabelPath: filepath.Join(d.Root(), "labels", split, stem+".txt"),
		Boxes:     len(labels),
	}

	var sb strings.Builder
	for _, l := range labels {
		id, added := d.AddClass(l.Class)
		if added {
			res.NewClasses = append(res.NewClasses, strings.TrimSpace(l.Class))
		}
		sb.WriteString(YOLOLine(id, l.Box, width, height))
		sb.WriteByte('\n')
	}

	if err := util.CopyFile(imagePath, res.ImagePath); err != nil {
		return nil, fmt.Errorf("failed to copy image: %w", err)
	}
	if err := util.AtomicWriteFile(res.LabelPath, []byte(sb.String()), 0644); err != nil {
		return nil, fmt.Errorf("failed to write labels: %w", err)
	}
	if len(res.NewClasses) > 0 {
		if err := d.Save(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Contains reports whether an image with this file name is already in any
// split.
func (d *Dataset) Contains(imagePath string) bool {
	base := filepath.Base(imagePath)
	for _, split := range Splits {
		if util.FileExists(filepath.Join(d.Root(), "images", split, base)) {
			return true
		}
	}
	return false
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image size of %s: %w", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, fmt.Errorf("image %s has no pixels", path)
	}
	return cfg.Width, cfg.Height, nil
}
