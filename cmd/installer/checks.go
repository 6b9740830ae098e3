// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/detect"
	"github.com/jeranaias/yolokit/internal/torch"
)

// checkTimeout bounds each system check.
const checkTimeout = 30 * time.Second

// CheckResult represents a system check result
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warn", "checking"
	Message string
	Fix     string
}

// env is what the checks learn about the machine.
type env struct {
	cfg      *config.Config
	python   string
	forceCPU bool

	gpu  *detect.GpuInfo
	plan torch.Plan
}

func newEnv(cfg *config.Config, python string, forceCPU bool) *env {
	if python == "" {
		python = cfg.Python
	}
	return &env{cfg: cfg, python: python, forceCPU: forceCPU}
}

func (e *env) options() torch.Options {
	return torch.Options{IndexBase: e.cfg.Installer.IndexBase, Packages: e.cfg.Installer.Packages}
}

// checkNames are the checks in run order.
var checkNames = []string{"Operating System", "Python", "GPU", "Disk Space"}

// runCheck runs check index against e.
func (e *env) runCheck(ctx context.Context, index int) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	switch index {
	case 0:
		return e.checkOS()
	case 1:
		return e.checkPython(ctx)
	case 2:
		return e.checkGPU(ctx)
	case 3:
		return e.checkDisk()
	}
	return CheckResult{Name: "unknown", Status: "fail"}
}

func (e *env) checkOS() CheckResult {
	return CheckResult{
		Name:    checkNames[0],
		Status:  "pass",
		Message: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (e *env) checkPython(ctx context.Context) CheckResult {
	res := CheckResult{Name: checkNames[1]}
	path, err := exec.LookPath(e.python)
	if err != nil {
		res.Status = "fail"
		res.Message = fmt.Sprintf("%q not found", e.python)
		res.Fix = "Install Python 3 or pass --python <path>"
		return res
	}
	out, err := exec.CommandContext(ctx, path, "-c", "import sys; print(sys.version.split()[0])").Output()
	if err != nil {
		res.Status = "fail"
		res.Message = fmt.Sprintf("%s does not run: %v", path, err)
		return res
	}
	res.Status = "pass"
	res.Message = fmt.Sprintf("Python %s", strings.TrimSpace(string(out)))
	return res
}

// checkGPU detects the GPU and decides the install plan.
func (e *env) checkGPU(ctx context.Context) CheckResult {
	res := CheckResult{Name: checkNames[2]}

	gpu, err := detect.DetectGPUWithContext(ctx)
	if err != nil {
		res.Status = "warn"
		res.Message = "detection failed: " + err.Error()
		e.plan = torch.PlanFor("", e.options())
		return res
	}
	e.gpu = gpu

	if e.forceCPU {
		e.plan = torch.PlanFor("", e.options())
		e.plan.Reason = "--cpu given"
	} else {
		e.plan = torch.Detect(ctx, e.options())
	}

	res.Message = gpu.String()
	switch {
	case gpu.Type == detect.GpuTypeNvidia && e.plan.CPU():
		res.Status = "warn"
		res.Fix = e.plan.Reason
	case gpu.Type == detect.GpuTypeCPU:
		res.Status = "warn"
		res.Message = "no GPU, CPU wheels will be installed"
	default:
		res.Status = "pass"
	}
	return res
}

func (e *env) checkDisk() CheckResult {
	res := CheckResult{Name: checkNames[3]}
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	free, err := torch.CheckDiskSpace(dir, e.cfg.Installer.MinFreeGB)
	switch {
	case errors.Is(err, torch.ErrLowDiskSpace):
		res.Status = "fail"
		res.Message = fmt.Sprintf("%.1f GB free in %s", free, dir)
		res.Fix = fmt.Sprintf("PyTorch wheels need about %d GB", e.cfg.Installer.MinFreeGB)
	case err != nil:
		res.Status = "warn"
		res.Message = "could not check: " + err.Error()
	default:
		res.Status = "pass"
		res.Message = fmt.Sprintf("%.1f GB free", free)
	}
	return res
}

// installResult is the outcome of pip plus the import check.
type installResult struct {
	Version string
	CUDA    bool
	Err     error
}

// install runs pip for plan and verifies the import.
func (e *env) install(ctx context.Context, plan torch.Plan, out io.Writer) installResult {
	if err := torch.Install(ctx, e.python, plan, out); err != nil {
		return installResult{Err: err}
	}
	version, cuda, err := torch.Verify(ctx, e.python)
	if err != nil {
		return installResult{Err: fmt.Errorf("torch does not import after install: %w", err)}
	}
	return installResult{Version: version, CUDA: cuda}
}
