// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for yolokit.
//
// Command: doctor [subcommand]
// Short:   Check that the framework, GPU and paths are usable
//
// Subcommands:
//   (default)           Run all health checks
//   fix                 Run checks and apply the fixes that are safe to automate
//
// Health Checks Performed:
//   1. Config Valid       - Configuration loads and validates
//   2. Python             - Interpreter is on PATH and runs
//   3. Ultralytics        - Detection framework imports
//   4. PyTorch            - torch imports; CUDA is available when a GPU is
//   5. GPU Detected       - nvidia-smi or Apple Silicon
//   6. Dataset <key>      - Each configured data.yaml exists
//   7. Communication Dir  - Input/output directory is writable
//   8. Disk Space         - Room for the PyTorch wheels
//   9. History            - Run history database opens
//
// Exit Codes:
//   0   No check failed
//   1   One or more checks failed
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/dataset"
	"github.com/jeranaias/yolokit/internal/detect"
	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/torch"
)

// doctorCheckTimeout bounds each interpreter check; importing torch is slow
// on a cold cache.
const doctorCheckTimeout = 60 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the styled marker for the check status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return SuccessStyle.Render("[OK]")
	case CheckWarn:
		return WarningStyle.Render("[!!]")
	case CheckFail:
		return ErrorStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // Suggested fix command or instruction

	// autoFix applies Fix; nil when the fix needs a human.
	autoFix func(ctx context.Context) error
}

// Render returns a formatted string representation of the health check.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("     -> "+c.Fix)
	}
	return result
}

// TryFix applies the automatic fix if the check has one.
func (c *HealthCheck) TryFix(ctx context.Context) error {
	if c.Status == CheckPass {
		return nil
	}
	if c.autoFix == nil {
		return fmt.Errorf("manual fix required: %s", c.Fix)
	}
	return c.autoFix(ctx)
}

// summarizeChecks counts check results.
func summarizeChecks(checks []*HealthCheck) DoctorSummary {
	var s DoctorSummary
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			s.Passed++
		case CheckWarn:
			s.Warned++
		case CheckFail:
			s.Failed++
		}
	}
	s.Healthy = s.Failed == 0
	return s
}

// =============================================================================
// HANDLE DOCTOR
// =============================================================================

// HandleDoctor handles the "doctor" command.
func HandleDoctor(args Args) error {
	if args.Subcommand != "" && args.Subcommand != "fix" {
		return ErrUnknownSubcommand("doctor", args.Subcommand, []string{"fix"})
	}

	ctx, stop := signalContext()
	defer stop()

	cfg, cfgErr := loadConfig(args)
	checks := runAllChecks(ctx, cfg, cfgErr)
	summary := summarizeChecks(checks)

	if args.JSON {
		return handleDoctorJSON(checks, summary)
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render("yolokit Doctor"))
	fmt.Println(RenderSeparator(41))
	fmt.Println()
	for _, check := range checks {
		fmt.Println(check.Render())
	}
	fmt.Println()
	fmt.Println(RenderSeparator(41))

	parts := []string{fmt.Sprintf("%d passed", summary.Passed)}
	if summary.Warned > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d warning", summary.Warned)))
	}
	if summary.Failed > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", summary.Failed)))
	}
	fmt.Println(DimStyle.Render(strings.Join(parts, ", ")))
	fmt.Println()

	if args.Subcommand == "fix" && (summary.Warned > 0 || summary.Failed > 0) {
		fmt.Println(TitleStyle.Render("Attempting Auto-Fix..."))
		for _, check := range checks {
			if check.Status == CheckPass || check.Fix == "" {
				continue
			}
			if err := check.TryFix(ctx); err != nil {
				fmt.Printf("  %s Could not fix %s: %s\n", WarningStyle.Render("[!!]"), check.Name, err)
			} else {
				fmt.Printf("  %s Fixed %s\n", SuccessStyle.Render("[OK]"), check.Name)
			}
		}
		fmt.Println()
	}

	if summary.Failed > 0 {
		return &reportedError{err: fmt.Errorf("%d health check(s) failed", summary.Failed)}
	}
	return nil
}

// handleDoctorJSON outputs doctor results in JSON format.
func handleDoctorJSON(checks []*HealthCheck, summary DoctorSummary) error {
	jsonChecks := make([]DoctorCheck, 0, len(checks))
	for _, check := range checks {
		jsonChecks = append(jsonChecks, DoctorCheck{
			Name:    check.Name,
			Status:  check.Status.String(),
			Message: check.Message,
			Fix:     check.Fix,
		})
	}

	resp := NewJSONResponse("doctor", DoctorData{Checks: jsonChecks, Summary: summary})
	if summary.Failed > 0 {
		errMsg := fmt.Sprintf("%d health check(s) failed", summary.Failed)
		resp.Success = false
		resp.Error = &errMsg
		resp.Print()
		return &reportedError{err: errors.New(errMsg)}
	}
	return resp.Print()
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

// runAllChecks runs all health checks. An invalid config is reported and the
// remaining checks run against the defaults.
func runAllChecks(ctx context.Context, cfg *config.Config, cfgErr error) []*HealthCheck {
	checks := []*HealthCheck{checkConfigValid(cfgErr)}
	if cfg == nil {
		cfg = config.Default()
	}

	python := checkPython(ctx, cfg.Python)
	checks = append(checks, python)
	if python.Status == CheckFail {
		checks = append(checks,
			&HealthCheck{Name: "Ultralytics", Status: CheckFail, Message: "Ultralytics not checked (no Python)"},
			&HealthCheck{Name: "PyTorch", Status: CheckFail, Message: "PyTorch not checked (no Python)"})
	} else {
		checks = append(checks, checkUltralytics(ctx, cfg.Python))
		gpu, _ := detect.DetectGPUCached()
		checks = append(checks, checkTorch(ctx, cfg, gpu))
	}

	checks = append(checks, checkGPUDetected())
	checks = append(checks, checkDatasets(cfg)...)
	checks = append(checks, checkCommDir(cfg.Paths.CommunicationDir))
	checks = append(checks, checkDiskSpace(cfg.Installer.MinFreeGB))
	checks = append(checks, checkHistory(cfg.Paths.HistoryDB))
	return checks
}

func checkConfigValid(cfgErr error) *HealthCheck {
	check := &HealthCheck{Name: "Config Valid"}
	if cfgErr != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Config invalid: %s", cfgErr)
		check.Fix = "Run: yolokit config init --force"
		return check
	}
	check.Status = CheckPass
	if path := config.ActivePath(); path != "" {
		check.Message = "Config valid (" + path + ")"
	} else {
		check.Message = "Config valid (using defaults)"
	}
	return check
}

// pythonOutput runs python -c code and returns trimmed stdout.
func pythonOutput(ctx context.Context, python, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, doctorCheckTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, python, "-c", code).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			lines := strings.Split(strings.TrimSpace(string(exitErr.Stderr)), "\n")
			return "", errors.New(lines[len(lines)-1])
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func checkPython(ctx context.Context, python string) *HealthCheck {
	check := &HealthCheck{Name: "Python"}
	path, err := exec.LookPath(python)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Python interpreter %q not found", python)
		check.Fix = "Install Python 3, or run: yolokit config set python <path>"
		return check
	}
	version, err := pythonOutput(ctx, path, "import sys; print(sys.version.split()[0])")
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Python at %s does not run: %s", path, err)
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Python %s (%s)", version, path)
	return check
}

func checkUltralytics(ctx context.Context, python string) *HealthCheck {
	check := &HealthCheck{Name: "Ultralytics"}
	version, err := pythonOutput(ctx, python, "import ultralytics; print(ultralytics.__version__)")
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Ultralytics does not import: %s", err)
		check.Fix = "Run: " + python + " -m pip install ultralytics"
		check.autoFix = func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, python, "-m", "pip", "install", "ultralytics")
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd.Run()
		}
		return check
	}
	check.Status = CheckPass
	check.Message = "Ultralytics " + version
	return check
}

func checkTorch(ctx context.Context, cfg *config.Config, gpu *detect.GpuInfo) *HealthCheck {
	check := &HealthCheck{Name: "PyTorch", Fix: "Run: yolokit install-torch"}
	python := cfg.Python
	installFix := func(ctx context.Context) error {
		plan := torch.Detect(ctx, installerOptions(cfg.Installer.IndexBase, cfg.Installer.Packages))
		return torch.Install(ctx, python, plan, os.Stdout)
	}

	vctx, cancel := context.WithTimeout(ctx, doctorCheckTimeout)
	defer cancel()
	version, cuda, err := torch.Verify(vctx, python)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("PyTorch does not import: %s", err)
		check.autoFix = installFix
		return check
	}

	check.Status = CheckPass
	check.Message = "PyTorch " + version
	switch {
	case cuda:
		check.Message += " with CUDA"
	case gpu != nil && gpu.Type == detect.GpuTypeNvidia:
		check.Status = CheckWarn
		check.Message += " without CUDA, but an NVIDIA GPU is present"
		check.autoFix = installFix
	default:
		check.Message += " (CPU)"
	}
	return check
}

func checkGPUDetected() *HealthCheck {
	check := &HealthCheck{Name: "GPU Detected"}

	gpu, err := detect.DetectGPUCached()
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("GPU detection failed: %s", err)
		check.Fix = "Check GPU drivers are installed"
		return check
	}
	if gpu == nil || gpu.Type == detect.GpuTypeCPU {
		check.Status = CheckWarn
		check.Message = "No GPU detected - training will run on the CPU"
		if reasons := detect.DiagnoseCPUFallback(gpu); len(reasons) > 0 {
			check.Fix = reasons[0]
		}
		return check
	}
	check.Status = CheckPass
	check.Message = "GPU detected: " + gpu.String()
	return check
}

// checkDatasets reports one check per configured dataset, sorted by key.
func checkDatasets(cfg *config.Config) []*HealthCheck {
	keys := make([]string, 0, len(cfg.Datasets))
	for k := range cfg.Datasets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	checks := make([]*HealthCheck, 0, len(keys))
	for _, key := range keys {
		path := cfg.Datasets[key]
		check := &HealthCheck{Name: "Dataset " + key}
		ds, err := dataset.Open(path)
		switch {
		case errors.Is(err, dataset.ErrNoDataYAML):
			check.Status = CheckWarn
			check.Message = fmt.Sprintf("Dataset %s: %s missing", key, path)
			check.Fix = "Run: yolokit dataset init --dataset-type " + key
			check.autoFix = func(context.Context) error {
				_, err := dataset.Init(path)
				return err
			}
		case err != nil:
			check.Status = CheckFail
			check.Message = fmt.Sprintf("Dataset %s: %s", key, err)
		case len(ds.Data.Names) == 0:
			check.Status = CheckWarn
			check.Message = fmt.Sprintf("Dataset %s has no classes yet", key)
			check.Fix = "Add labeled images with: yolokit dataset label <image> --dataset-type " + key
		default:
			check.Status = CheckPass
			check.Message = fmt.Sprintf("Dataset %s: %d classes", key, len(ds.Data.Names))
		}
		checks = append(checks, check)
	}
	return checks
}

// checkCommDir checks that the communication directory is writable.
func checkCommDir(dir string) *HealthCheck {
	check := &HealthCheck{Name: "Communication Dir"}
	mkdir := func(context.Context) error { return os.MkdirAll(dir, 0755) }

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Communication directory %s does not exist", dir)
		check.Fix = "Create it: mkdir -p " + dir
		check.autoFix = mkdir
		return check
	}
	if err != nil || !info.IsDir() {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Communication directory %s is not a directory", dir)
		return check
	}

	testFile := filepath.Join(dir, ".yolokit_write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Communication directory not writable: %s", err)
		check.Fix = "Check permissions: chmod 755 " + dir
		return check
	}
	os.Remove(testFile)

	check.Status = CheckPass
	check.Message = "Communication directory writable (" + dir + ")"
	return check
}

func checkDiskSpace(minGB int) *HealthCheck {
	check := &HealthCheck{Name: "Disk Space"}
	free, err := checkInstallSpace(minGB)
	switch {
	case errors.Is(err, torch.ErrLowDiskSpace):
		check.Status = CheckWarn
		check.Message = err.Error()
		check.Fix = "Free disk space before installing PyTorch"
	case err != nil:
		check.Status = CheckWarn
		check.Message = err.Error()
	default:
		check.Status = CheckPass
		check.Message = fmt.Sprintf("%.1f GB free", free)
	}
	return check
}

func checkHistory(path string) *HealthCheck {
	check := &HealthCheck{Name: "History"}
	store, err := history.Open(path)
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Run history unavailable: %s", err)
		check.Fix = "Run: yolokit config set paths.history_db <path>"
		return check
	}
	defer store.Close()
	check.Status = CheckPass
	check.Message = "Run history at " + path
	return check
}
