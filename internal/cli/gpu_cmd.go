// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// gpu_cmd.go - GPU diagnostics and PyTorch installation for yolokit.
//
// Commands:
//   gpu                      Detected GPU, CUDA version and training advice
//   install-torch            Install the PyTorch build matching the driver
//     --dry-run              Print the pip command without running it
//     --cuda <version>       Use this CUDA version instead of nvidia-smi
//     --cpu                  Install CPU-only wheels
//     --python <path>        Interpreter to install into (default: config python)
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jeranaias/yolokit/internal/detect"
	"github.com/jeranaias/yolokit/internal/torch"
)

// GPUData is returned by the gpu command.
type GPUData struct {
	GPU            *detect.GpuInfo            `json:"gpu,omitempty"`
	Type           string                     `json:"type"`
	Recommendation detect.TrainRecommendation `json:"recommendation"`
	Plan           torch.Plan                 `json:"torch_plan"`
	Warnings       []string                   `json:"warnings,omitempty"`
}

// InstallTorchData is returned by the install-torch command.
type InstallTorchData struct {
	Python       string     `json:"python"`
	Plan         torch.Plan `json:"plan"`
	Command      []string   `json:"command"`
	DryRun       bool       `json:"dry_run"`
	FreeGB       float64    `json:"free_gb,omitempty"`
	TorchVersion string     `json:"torch_version,omitempty"`
	CUDA         bool       `json:"cuda"`
}

// HandleGPU handles the "gpu" command.
func HandleGPU(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	gpu, err := detect.DetectGPUWithContext(ctx)
	if err != nil {
		return WrapError(err, "GPU detection failed")
	}

	data := GPUData{
		GPU:            gpu,
		Type:           gpu.Type.String(),
		Recommendation: detect.Recommend(gpu),
		Plan:           torch.Detect(ctx, installerOptions(cfg.Installer.IndexBase, cfg.Installer.Packages)),
		Warnings:       detect.DiagnoseCPUFallback(gpu),
	}

	if args.JSON {
		return NewJSONResponse("gpu", data).Print()
	}

	fmt.Println(TitleStyle.Render("GPU"))
	fmt.Println(RenderKV("Device", gpu.String()))
	fmt.Println(RenderKV("Type", data.Type))
	if gpu.CUDAVersion != "" {
		fmt.Println(RenderKV("CUDA", gpu.CUDAVersion+" ("+detect.IndexTag(gpu.CUDAVersion)+")"))
	}
	fmt.Println()

	rec := data.Recommendation
	fmt.Println(SectionStyle.Render("Training"))
	fmt.Println(RenderKV("Base weights", rec.BaseWeights))
	fmt.Println(RenderKV("Batch", strconv.Itoa(rec.Batch)))
	fmt.Println(RenderKV("Device", rec.Device))
	fmt.Println(DimStyle.Render("  " + rec.Description))
	fmt.Println()

	fmt.Println(SectionStyle.Render("PyTorch"))
	fmt.Println(RenderKV("Install", data.Plan.String()))
	if data.Plan.Reason != "" {
		fmt.Println(DimStyle.Render("  " + data.Plan.Reason))
	}

	for _, w := range data.Warnings {
		fmt.Println(WarningStyle.Render("[!] " + w))
	}
	return nil
}

// installerOptions builds torch options from the installer config.
func installerOptions(indexBase string, packages []string) torch.Options {
	return torch.Options{IndexBase: indexBase, Packages: packages}
}

// HandleInstallTorch handles the "install-torch" command.
func HandleInstallTorch(args Args) error {
	p := NewArgParser(args.Raw)
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	opts := installerOptions(cfg.Installer.IndexBase, cfg.Installer.Packages)
	python := p.FlagOrDefault("python", cfg.Python)

	var plan torch.Plan
	switch {
	case p.BoolFlag("cpu"):
		plan = torch.PlanFor("", opts)
		plan.Reason = "CPU wheels requested"
	case p.HasFlag("cuda"):
		plan = torch.PlanFor(p.Flag("cuda"), opts)
		if plan.CPU() {
			return NewValidationErrorWithExample("cuda", p.Flag("cuda"), "not a CUDA version", "--cuda 12.8")
		}
	default:
		plan = torch.Detect(ctx, opts)
	}

	data := InstallTorchData{
		Python:  python,
		Plan:    plan,
		Command: plan.Command(python),
		DryRun:  p.BoolFlag("dry-run"),
	}

	out := progressOutput(args)
	if !args.JSON {
		fmt.Fprintln(out, RenderKV("Command", plan.String()))
		if plan.Reason != "" {
			fmt.Fprintln(out, DimStyle.Render("  "+plan.Reason))
		}
	}
	if data.DryRun {
		if args.JSON {
			return NewJSONResponse("install-torch", data).Print()
		}
		return nil
	}

	if data.FreeGB, err = checkInstallSpace(cfg.Installer.MinFreeGB); err != nil {
		return err
	}
	if err := torch.Install(ctx, python, plan, out); err != nil {
		return err
	}

	data.TorchVersion, data.CUDA, err = verifyTorch(ctx, python)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("install-torch", data).Print()
	}

	fmt.Println(SuccessStyle.Render("Installed torch " + data.TorchVersion))
	if data.CUDA {
		fmt.Println(RenderKV("CUDA", SuccessStyle.Render("available")))
	} else if !plan.CPU() {
		fmt.Println(WarningStyle.Render("torch installed but CUDA is not available; check the driver with: yolokit gpu"))
	}
	return nil
}

// checkInstallSpace checks the disk holding the home directory, where pip
// keeps its cache.
func checkInstallSpace(minGB int) (float64, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return torch.CheckDiskSpace(dir, minGB)
}

func verifyTorch(ctx context.Context, python string) (string, bool, error) {
	version, cuda, err := torch.Verify(ctx, python)
	if err != nil {
		return "", false, NewCommandError("install-torch", "verify", "torch does not import after install", err)
	}
	return version, cuda, nil
}
