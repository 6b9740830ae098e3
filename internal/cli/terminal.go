// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - What yolokit may assume about the terminal it runs in.
//
// Scripts and the game bot call yolokit with pipes, so anything styled or
// interactive is gated here:
//   - colors need a stdout terminal and no NO_COLOR
//   - glamour reports and TOML highlighting need a stdout terminal
//   - labeling prompts and confirmations need a stdin terminal

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// reportWidth bounds the wrap width of rendered reports.
const (
	reportWidthDefault = 80
	reportWidthMin     = 40
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// IsTTY reports whether stdin is a terminal, i.e. a person can answer prompts.
func IsTTY() bool { return isTerminal(os.Stdin) }

// IsStdoutTTY reports whether output is read by a person.
func IsStdoutTTY() bool { return isTerminal(os.Stdout) }

// GetTerminalWidth returns the stdout width clamped to at least
// reportWidthMin, or reportWidthDefault for pipes.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || width <= 0:
		return reportWidthDefault
	case width < reportWidthMin:
		return reportWidthMin
	}
	return width
}

// colorState caches the color decision for the process.
var colorState struct {
	once    sync.Once
	enabled bool
}

// ColorsEnabled follows https://no-color.org/: NO_COLOR wins over
// FORCE_COLOR, which wins over terminal detection.
func ColorsEnabled() bool {
	colorState.once.Do(func() {
		_, noColor := os.LookupEnv("NO_COLOR")
		switch {
		case noColor && os.Getenv("NO_COLOR") != "":
			colorState.enabled = false
		case os.Getenv("FORCE_COLOR") != "":
			colorState.enabled = true
		default:
			colorState.enabled = IsStdoutTTY()
		}
	})
	return colorState.enabled
}

// ForceColorsEnabled pins the color decision. Tests only.
func ForceColorsEnabled(enabled bool) {
	colorState.once = sync.Once{}
	colorState.once.Do(func() { colorState.enabled = enabled })
}

// GetColorProfile is the termenv profile styles render with.
func GetColorProfile() termenv.Profile {
	if ColorsEnabled() {
		return termenv.ColorProfile()
	}
	return termenv.Ascii
}

// TTYRequiredError reports an interactive operation run without a terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation == "" {
		return "stdin is not a terminal; interactive input not available"
	}
	return "stdin is not a terminal; cannot " + e.Operation + " interactively"
}

// RequiresTTY returns a *TTYRequiredError when stdin is not a terminal.
func RequiresTTY(operation string) error {
	if IsTTY() {
		return nil
	}
	return &TTYRequiredError{Operation: operation}
}
