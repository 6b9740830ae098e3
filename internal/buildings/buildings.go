// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package buildings post-processes base-layout detections: it sorts detected
// buildings into walls, defences and everything else, filters by category,
// and joins neighbouring wall segments into lines.
package buildings

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/yolokit/internal/detection"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// Category is a building category.
type Category int

const (
	// Normal is any building that is neither a wall nor a defence.
	Normal Category = iota
	// Wall is a wall segment.
	Wall
	// Defence is a defensive building or hero.
	Defence
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case Wall:
		return "wall"
	case Defence:
		return "defence"
	default:
		return "normal"
	}
}

// WallClass is the class name of wall segments.
const WallClass = "mauer"

// defenceClasses lists the class names counted as defences. Names are stored
// NFC normalized.
var defenceClasses = newClassSet(
	"bogenschützenturm",
	"minenwerfer",
	"multibogenschützenturm",
	"magierturm",
	"tesla",
	"luftabwehr",
	"querschlägerkanone",
	"xbogenluft",
	"entwicklungsturmkanone",
	"feuerspeier",
	"bombenturm",
	"warden",
	"queen",
	"king",
	"infernoturmmulti",
	"giftzauberturm",
	"streukatapult",
	"monolyth",
	"wutzauberturm",
	"unsichtbarkeitszauberturm",
	"kanone",
	"adlerartillerie",
	"infernoturmeinzel",
	"xbogenboden",
	"fegerO",
	"fegerOR",
	"fegerR",
	"fegerUR",
	"fegerU",
	"fegerUL",
	"fegerL",
	"fegerOL",
	"entwicklungsturmbogenschützenturm",
)

type classSet map[string]struct{}

func newClassSet(names ...string) classSet {
	s := make(classSet, len(names))
	for _, n := range names {
		s[normalize(n)] = struct{}{}
	}
	return s
}

// normalize composes combining sequences so "ü" typed as u+U+0308 matches the
// precomposed form the dataset uses.
func normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Classify returns the category of a class name.
func Classify(className string) Category {
	name := normalize(className)
	if name == WallClass {
		return Wall
	}
	if _, ok := defenceClasses[name]; ok {
		return Defence
	}
	return Normal
}

// DefenceClasses returns the defence class names.
func DefenceClasses() []string {
	out := make([]string, 0, len(defenceClasses))
	for n := range defenceClasses {
		out = append(out, n)
	}
	return out
}

// =============================================================================
// FILTERING
// =============================================================================

// Options selects which categories Filter keeps.
type Options struct {
	ShowNormal   bool
	ShowWalls    bool
	ShowDefences bool
}

// All keeps every category.
var All = Options{ShowNormal: true, ShowWalls: true, ShowDefences: true}

// Filter returns the detections whose category is enabled, preserving order.
func Filter(dets []detection.Detection, opts Options) []detection.Detection {
	out := make([]detection.Detection, 0, len(dets))
	for _, d := range dets {
		switch Classify(d.ClassName) {
		case Wall:
			if opts.ShowWalls {
				out = append(out, d)
			}
		case Defence:
			if opts.ShowDefences {
				out = append(out, d)
			}
		default:
			if opts.ShowNormal {
				out = append(out, d)
			}
		}
	}
	return out
}

// =============================================================================
// WALL CONNECTION
// =============================================================================

// Line joins two wall centers.
type Line struct {
	From detection.Point `json:"from"`
	To   detection.Point `json:"to"`
}

// ConnectWalls splits dets into non-wall detections and wall lines. A line is
// produced for every pair of walls (each pair once, in detection order) whose
// centers are at most maxDist apart.
func ConnectWalls(dets []detection.Detection, maxDist float64) ([]detection.Detection, []Line) {
	others := make([]detection.Detection, 0, len(dets))
	var walls []detection.Detection
	for _, d := range dets {
		if Classify(d.ClassName) == Wall {
			walls = append(walls, d)
		} else {
			others = append(others, d)
		}
	}

	lines := make([]Line, 0)
	for i := range walls {
		ci := walls[i].Center()
		for j := i + 1; j < len(walls); j++ {
			cj := walls[j].Center()
			if ci.Distance(cj) <= maxDist {
				lines = append(lines, Line{From: ci, To: cj})
			}
		}
	}
	return others, lines
}
