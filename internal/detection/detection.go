// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detection defines the detection record handed to the consuming
// process and reads and writes the JSON file it is exchanged through.
package detection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/jeranaias/yolokit/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// Box is a bounding box in image pixels: x1, y1, x2, y2.
type Box [4]float64

// Width returns x2 - x1.
func (b Box) Width() float64 { return b[2] - b[0] }

// Height returns y2 - y1.
func (b Box) Height() float64 { return b[3] - b[1] }

// Center returns the box midpoint.
func (b Box) Center() Point {
	return Point{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2}
}

// Point is an image coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Detection is one detected object.
type Detection struct {
	ClassID     int     `json:"class_id"`
	ClassName   string  `json:"class_name"`
	Confidence  float64 `json:"confidence"`
	BoundingBox Box     `json:"bounding_box"`
}

// Center returns the midpoint of the bounding box.
func (d Detection) Center() Point {
	return d.BoundingBox.Center()
}

// RawBox is a box as reported by the framework, before class names are
// attached.
type RawBox struct {
	Class      int       `json:"cls"`
	Confidence float64   `json:"conf"`
	XYXY       []float64 `json:"xyxy"`
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidBox is returned for boxes that are not x1<x2, y1<y2.
	ErrInvalidBox = errors.New("invalid bounding box")
	// ErrInvalidConfidence is returned for confidences outside [0,1].
	ErrInvalidConfidence = errors.New("confidence out of range")
	// ErrNotUTF8 is returned when a file is not valid UTF-8.
	ErrNotUTF8 = errors.New("detection file is not valid UTF-8")
)

// =============================================================================
// CONSTRUCTION
// =============================================================================

// ClassName returns the name for id, or "class_<id>" when names has none.
func ClassName(names map[int]string, id int) string {
	if name, ok := names[id]; ok {
		return name
	}
	return "class_" + strconv.Itoa(id)
}

// FromBoxes flattens framework boxes into detections, one per box, in the
// order the framework reported them.
func FromBoxes(boxes []RawBox, names map[int]string) ([]Detection, error) {
	dets := make([]Detection, 0, len(boxes))
	for i, b := range boxes {
		if len(b.XYXY) != 4 {
			return nil, fmt.Errorf("box %d: %w: want 4 coordinates, got %d", i, ErrInvalidBox, len(b.XYXY))
		}
		d := Detection{
			ClassID:     b.Class,
			ClassName:   ClassName(names, b.Class),
			Confidence:  b.Confidence,
			BoundingBox: Box{b.XYXY[0], b.XYXY[1], b.XYXY[2], b.XYXY[3]},
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		dets = append(dets, d)
	}
	return dets, nil
}

// Validate checks the record invariants.
func (d Detection) Validate() error {
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, d.Confidence)
	}
	b := d.BoundingBox
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidBox, b)
		}
	}
	if !(b[0] < b[2]) || !(b[1] < b[3]) {
		return fmt.Errorf("%w: %v", ErrInvalidBox, b)
	}
	return nil
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// Marshal renders detections as a JSON array with 4-space indentation.
// A nil or empty slice renders as [].
func Marshal(dets []Detection) ([]byte, error) {
	if dets == nil {
		dets = []Detection{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(dets); err != nil {
		return nil, fmt.Errorf("failed to encode detections: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal parses a detection file's contents.
func Unmarshal(data []byte) ([]Detection, error) {
	if !utf8.Valid(data) {
		return nil, ErrNotUTF8
	}
	var dets []Detection
	if err := json.Unmarshal(data, &dets); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	if dets == nil {
		dets = []Detection{}
	}
	return dets, nil
}

// WriteFile writes detections to path, creating parent directories. The file
// is replaced atomically; concurrent writers race and the last one wins.
func WriteFile(path string, dets []Detection) error {
	data, err := Marshal(dets)
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a detection file.
func ReadFile(path string) ([]Detection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// =============================================================================
// QUERIES
// =============================================================================

// CountByClass returns the number of detections per class name.
func CountByClass(dets []Detection) map[string]int {
	counts := make(map[string]int)
	for _, d := range dets {
		counts[d.ClassName]++
	}
	return counts
}

// SortByConfidence sorts detections highest confidence first.
func SortByConfidence(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
}
