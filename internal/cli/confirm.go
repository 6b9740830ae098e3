// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation for destructive commands.
//
// Only the subcommand interface on an interactive terminal prompts. The
// legacy operation flags, --json runs and scripts without a terminal proceed
// as before, so existing callers keep working unattended.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ConfirmationOptions controls whether a prompt is shown.
type ConfirmationOptions struct {
	// ConfirmFlag is set by --yes or --confirm.
	ConfirmFlag bool
	// JSONMode is set by --json; JSON runs never prompt.
	JSONMode bool
}

// confirmationFromArgs reads --yes/--confirm and --json.
func confirmationFromArgs(args Args, p *ArgParser) ConfirmationOptions {
	return ConfirmationOptions{
		ConfirmFlag: p.BoolFlag("yes") || p.BoolFlag("confirm"),
		JSONMode:    args.JSON,
	}
}

// RequireConfirmation shows details and asks before a destructive action.
// It returns true without asking when opts or the terminal rule out a prompt.
func RequireConfirmation(action string, details map[string]string, opts ConfirmationOptions) (bool, error) {
	if opts.ConfirmFlag || opts.JSONMode || !IsTTY() {
		return true, nil
	}
	return promptConfirmation(os.Stdin, os.Stdout, action, details)
}

// promptConfirmation prints details to out and reads a y/N answer from in.
func promptConfirmation(in io.Reader, out io.Writer, action string, details map[string]string) (bool, error) {
	if len(details) > 0 {
		fmt.Fprintln(out)
		labels := make([]string, 0, len(details))
		for label := range details {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(out, "  %s%s\n", RenderLabel(label+":", 20), details[label])
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, ErrorStyle.Render("This action cannot be undone."))
	}
	fmt.Fprintf(out, "Are you sure you want to %s? [y/N]: ", action)

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}

// ShowCancellationMessage displays a standard cancellation message.
func ShowCancellationMessage() {
	fmt.Println(DimStyle.Render("Cancelled."))
}
