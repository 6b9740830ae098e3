// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all yolokit commands.
//
// Handlers return errors; main displays them once and maps them to an exit
// code. Package sentinel errors (missing weights, unknown history runs) are
// classified with errors.Is so wrapping never changes the exit code.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/dataset"
	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/model"
)

// Exit codes. 7 is "not found" so callers can tell missing weights apart
// from framework failures (1).
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	ExitInterrupted   = 130 // Ctrl+C
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed step of a command, e.g. dataset label.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := e.Command + " " + e.Action + " failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ValidationError is bad user input. Example, when set, is printed on its
// own line as a corrected invocation.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid " + e.Field + ": " + e.Reason)
	if e.Value != "" {
		sb.WriteString(" (got: " + e.Value + ")")
	}
	if e.Example != "" {
		sb.WriteString("\nExample: " + e.Example)
	}
	return sb.String()
}

// NotFoundError names a missing resource such as a run's results.csv.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

// reportedError marks an error whose diagnostic has already been printed;
// only its exit code is still needed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ErrMissingArgument reports a required argument with its usage line.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// ErrUnknownSubcommand lists the valid subcommands of command.
func ErrUnknownSubcommand(command, sub string, valid []string) error {
	return NewValidationErrorWithExample(command+" subcommand", sub, "unknown subcommand",
		fmt.Sprintf("yolokit %s [%s]", command, strings.Join(valid, "|")))
}

// DisplayCommandError prints err once: as the JSON envelope on stdout with
// --json, else styled on stderr with a hint for the next step.
func DisplayCommandError(command string, err error, jsonMode bool) {
	if err == nil {
		return
	}

	if jsonMode {
		NewJSONErrorResponse(command, err).Print()
		return
	}

	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(os.Stderr, "%s\n", DimStyle.Render("  "+hint))
	}
}

// ErrorType classifies an error for the JSON envelope.
func ErrorType(err error) string {
	var cmdErr *CommandError
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var cfgErrs config.ValidateErrors
	switch {
	case errors.As(err, &validationErr):
		return "validation_error"
	case errors.As(err, &notFoundErr), isNotFound(err):
		return "not_found_error"
	case errors.As(err, &cfgErrs):
		return "config_error"
	case errors.As(err, &cmdErr):
		return "command_error"
	default:
		return "generic_error"
	}
}

// errorHint suggests the next step for common failures.
func errorHint(err error) string {
	var execErr *exec.Error
	switch {
	case errors.Is(err, model.ErrWeightsNotFound):
		return "Train the model first, or pass --path to an existing weights file."
	case errors.Is(err, model.ErrImageNotFound):
		return "Pass --image-path, or write the screenshot to the communication directory."
	case errors.Is(err, model.ErrNameRequired):
		return "Pass --model-name <name>."
	case errors.Is(err, dataset.ErrNoDataYAML):
		return "Create it with: yolokit dataset init --dataset-type <key>"
	case errors.As(err, &execErr):
		return "Set the interpreter with: yolokit config set python <path>"
	}
	return ""
}

// HandleErrorAndExit displays err unless already reported and exits with
// its code.
func HandleErrorAndExit(args Args, err error) {
	if err == nil {
		return
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		DisplayCommandError(args.Name, err, args.JSON)
	}
	os.Exit(GetExitCode(err))
}

// isNotFound reports whether err wraps one of the domain "not found"
// sentinels.
func isNotFound(err error) bool {
	for _, target := range []error{
		model.ErrModelNotFound,
		model.ErrWeightsNotFound,
		model.ErrImageNotFound,
		dataset.ErrNoDataYAML,
		history.ErrRunNotFound,
		os.ErrNotExist,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// GetExitCode maps err to an exit code: typed errors and package sentinels
// first, message text last.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}

	var validationErr *ValidationError
	var ttyErr *TTYRequiredError
	if errors.As(err, &validationErr) || errors.As(err, &ttyErr) {
		return ExitUsageError
	}
	for _, target := range []error{
		model.ErrNameRequired,
		model.ErrInvalidName,
		model.ErrBaseRequired,
		history.ErrAmbiguousID,
	} {
		if errors.Is(err, target) {
			return ExitUsageError
		}
	}

	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) || isNotFound(err) {
		return ExitNotFoundError
	}

	var cfgErrs config.ValidateErrors
	if errors.As(err, &cfgErrs) {
		return ExitConfigError
	}

	switch msg := strings.ToLower(err.Error()); {
	case strings.Contains(msg, "config"):
		return ExitConfigError
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return ExitTimeoutError
	}
	return ExitGeneralError
}

// WrapError prefixes err with message; nil stays nil.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
