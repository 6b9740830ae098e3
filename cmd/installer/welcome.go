// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"strings"
)

// =============================================================================
// NEXT STEPS
// =============================================================================

// Tip is a short next-step hint shown after installation.
type Tip struct {
	Title       string
	Description string
	Example     string
}

var nextSteps = []Tip{
	{
		Title:       "Check Your Setup",
		Description: "doctor verifies Python, ultralytics, torch and the datasets.",
		Example:     "yolokit doctor",
	},
	{
		Title:       "Create a Model",
		Description: "Train a named model from base weights on a dataset.",
		Example:     "yolokit create --model-name level --base yolov8n.pt --dataset-type level",
	},
	{
		Title:       "Predict",
		Description: "Detections go to the communication directory as JSON.",
		Example:     "yolokit predict --model-name level --image-path shot.png",
	},
	{
		Title:       "Watch Screenshots",
		Description: "Predict every time the screenshot changes.",
		Example:     "yolokit watch --model-name level",
	},
}

// renderTip renders tip n of total.
func renderTip(tip Tip, n, total int) string {
	var s strings.Builder
	s.WriteString(highlightStyle.Render(fmt.Sprintf("  [%d/%d] %s", n+1, total, tip.Title)))
	s.WriteString("\n")
	s.WriteString("  " + tip.Description)
	s.WriteString("\n\n")
	s.WriteString(selectedStyle.Render("    $ " + tip.Example))
	return s.String()
}
