// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package torch plans and runs the PyTorch installation that matches the
// CUDA version reported by the GPU driver.
//
// With a CUDA version the packages are installed from the matching wheel
// index (https://download.pytorch.org/whl/cu<tag>); without one the plain
// package list is installed, which resolves to CPU-only wheels.
package torch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/jeranaias/yolokit/internal/detect"
	"github.com/jeranaias/yolokit/internal/util"
)

// DefaultIndexBase is the PyTorch wheel index root.
const DefaultIndexBase = "https://download.pytorch.org/whl"

// DefaultPackages are installed when no package list is configured.
var DefaultPackages = []string{"torch", "torchvision", "torchaudio"}

// Plan describes one pip invocation.
type Plan struct {
	// CUDAVersion is the detected version ("12.8"); empty for CPU.
	CUDAVersion string `json:"cuda_version,omitempty"`
	// Tag is the wheel index tag ("cu128"); empty for CPU.
	Tag string `json:"tag,omitempty"`
	// IndexURL is the --index-url value; empty for CPU.
	IndexURL string   `json:"index_url,omitempty"`
	Packages []string `json:"packages"`
	// Reason explains a CPU fallback.
	Reason string `json:"reason,omitempty"`
}

// CPU reports whether the plan installs CPU-only wheels.
func (p Plan) CPU() bool {
	return p.IndexURL == ""
}

// Args returns the arguments passed to the interpreter.
func (p Plan) Args() []string {
	args := []string{"-m", "pip", "install"}
	args = append(args, p.Packages...)
	if p.IndexURL != "" {
		args = append(args, "--index-url", p.IndexURL)
	}
	return args
}

// Command returns the full command line for python.
func (p Plan) Command(python string) []string {
	return append([]string{python}, p.Args()...)
}

// String renders the command line for display.
func (p Plan) String() string {
	return strings.Join(p.Command("python"), " ")
}

// Options tune a plan.
type Options struct {
	IndexBase string
	Packages  []string
}

func (o Options) withDefaults() Options {
	if o.IndexBase == "" {
		o.IndexBase = DefaultIndexBase
	}
	if len(o.Packages) == 0 {
		o.Packages = DefaultPackages
	}
	return o
}

// PlanFor builds the plan for a CUDA version. An empty version yields the
// CPU plan.
func PlanFor(cudaVersion string, opts Options) Plan {
	opts = opts.withDefaults()
	pkgs := append([]string(nil), opts.Packages...)

	tag := detect.IndexTag(cudaVersion)
	if tag == "" {
		return Plan{Packages: pkgs, Reason: "no CUDA version detected"}
	}
	return Plan{
		CUDAVersion: cudaVersion,
		Tag:         tag,
		IndexURL:    strings.TrimRight(opts.IndexBase, "/") + "/" + tag,
		Packages:    pkgs,
	}
}

// PlanFromOutput builds the plan from raw nvidia-smi output.
func PlanFromOutput(nvidiaSmiOutput string, opts Options) Plan {
	return PlanFor(detect.ParseCUDAVersion(nvidiaSmiOutput), opts)
}

// Detect runs nvidia-smi and builds the plan. Detection failure is not an
// error: the CPU plan is returned with the failure recorded in Reason.
func Detect(ctx context.Context, opts Options) Plan {
	version, err := detect.DetectCUDAVersion(ctx)
	if err != nil {
		plan := PlanFor("", opts)
		plan.Reason = fmt.Sprintf("nvidia-smi unavailable: %v", err)
		return plan
	}
	plan := PlanFor(version, opts)
	if plan.CPU() {
		plan.Reason = "nvidia-smi reported no CUDA version"
	}
	return plan
}

// ErrPipFailed is returned when pip exits non-zero.
var ErrPipFailed = errors.New("pip install failed")

// Install runs the plan with python, streaming pip's output to out.
func Install(ctx context.Context, python string, plan Plan, out io.Writer) error {
	if python == "" {
		return errors.New("no python interpreter configured")
	}
	if len(plan.Packages) == 0 {
		return errors.New("plan has no packages")
	}

	cmd := exec.CommandContext(ctx, python, plan.Args()...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("install cancelled: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: exit status %d", ErrPipFailed, exitErr.ExitCode())
		}
		return fmt.Errorf("failed to run %s: %w", python, err)
	}
	return nil
}

// Verify asks python whether torch imports and sees a CUDA device. It returns
// the torch version and CUDA availability.
func Verify(ctx context.Context, python string) (version string, cuda bool, err error) {
	out, err := exec.CommandContext(ctx, python, "-c",
		"import torch; print(torch.__version__); print(torch.cuda.is_available())").Output()
	if err != nil {
		return "", false, fmt.Errorf("torch import failed: %w", err)
	}
	return parseVerifyOutput(string(out))
}

func parseVerifyOutput(out string) (string, bool, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return "", false, fmt.Errorf("unexpected torch output: %q", out)
	}
	return strings.TrimSpace(lines[0]), strings.TrimSpace(lines[len(lines)-1]) == "True", nil
}

// ErrLowDiskSpace is returned by CheckDiskSpace when the wheels would not fit.
var ErrLowDiskSpace = errors.New("not enough free disk space")

// CheckDiskSpace returns the free space at path in GB and ErrLowDiskSpace
// when it is below minGB. A minGB of zero or less disables the check.
func CheckDiskSpace(path string, minGB int) (float64, error) {
	free, err := util.FreeDiskSpace(path)
	if err != nil {
		return 0, fmt.Errorf("failed to check free space on %s: %w", path, err)
	}
	freeGB := float64(free) / (1 << 30)
	if minGB > 0 && freeGB < float64(minGB) {
		return freeGB, fmt.Errorf("%w: %.1f GB free on %s, need %d GB", ErrLowDiskSpace, freeGB, path, minGB)
	}
	return freeGB, nil
}
