// json_output.go - JSON output support for yolokit commands.
//
// With --json every command prints exactly one response envelope on stdout;
// human-readable progress goes to stderr so the envelope can be piped.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// JSONResponse is the envelope every --json run prints exactly once.
//
//	{"success": true, "data": {...}, "error": null, "timestamp": "...", "command": "predict"}
//
// Error stays null on success so consumers can test it without checking
// Success first.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	ErrorType string      `json:"error_type,omitempty"` // see ErrorType
	Timestamp string      `json:"timestamp"`             // RFC 3339, UTC
	Command   string      `json:"command,omitempty"`
}

func responseTime() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewJSONResponse wraps the result of a successful command.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{Success: true, Data: data, Timestamp: responseTime(), Command: command}
}

// NewJSONErrorResponse wraps a failed command, classified by ErrorType.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Error:     &msg,
		ErrorType: ErrorType(err),
		Timestamp: responseTime(),
		Command:   command,
	}
}

// Print writes the envelope to stdout.
func (r *JSONResponse) Print() error { return r.Fprint(os.Stdout) }

// Fprint writes the envelope to w, two-space indented. Class names such as
// "bogenschützenturm" and paths stay unescaped.
func (r *JSONResponse) Fprint(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode %s response: %w", r.Command, err)
	}
	return nil
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// OperationResult is one entry of a legacy multi-operation run.
type OperationResult struct {
	Operation string      `json:"operation"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// DoctorData represents the data returned by the doctor command.
type DoctorData struct {
	Checks  []DoctorCheck `json:"checks"`
	Summary DoctorSummary `json:"summary"`
}

// DoctorCheck represents a single health check result.
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// DoctorSummary contains the summary of health checks.
type DoctorSummary struct {
	Passed  int  `json:"passed"`
	Warned  int  `json:"warned"`
	Failed  int  `json:"failed"`
	Healthy bool `json:"healthy"`
}

// WatchData is returned when watch mode stops.
type WatchData struct {
	Model    string `json:"model"`
	Weights  string `json:"weights"`
	Image    string `json:"image"`
	Output   string `json:"output"`
	Listen   string `json:"listen,omitempty"`
	Runs     int64  `json:"runs"`
	Failures int64  `json:"failures"`
}
