// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main provides the yolokit installer: GPU checks and a guided
// PyTorch installation.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/detect"
)

const version = "0.1.0"

// options are the installer flags.
type options struct {
	text   bool
	yes    bool
	cpu    bool
	python string
}

func main() {
	var opts options
	args := os.Args[1:]
	for idx := 0; idx < len(args); idx++ {
		switch arg := args[idx]; arg {
		case "--text", "-t", "--simple":
			opts.text = true
		case "--yes", "-y":
			opts.yes = true
		case "--cpu":
			opts.cpu = true
		case "--python":
			if idx+1 < len(args) {
				idx++
				opts.python = args[idx]
			}
		case "--help", "-h":
			printHelp()
			return
		case "--version", "-v":
			fmt.Printf("yolokit installer v%s\n", version)
			return
		default:
			if strings.HasPrefix(arg, "--python=") {
				opts.python = strings.TrimPrefix(arg, "--python=")
				continue
			}
			fmt.Fprintf(os.Stderr, "unknown option %q, see --help\n", arg)
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
		cfg = config.Default()
	}
	e := newEnv(cfg, opts.python, opts.cpu)

	if opts.text || opts.yes || !isTerminal() {
		os.Exit(runTextInstaller(e, opts.yes))
	}

	p := tea.NewProgram(NewInstaller(e), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		fmt.Printf("Error running installer: %v\n", err)
		os.Exit(1)
	}
	if inst, ok := final.(*Installer); ok && inst.result.Err != nil {
		fmt.Fprintf(os.Stderr, "Installation failed: %v\n", inst.result.Err)
		os.Exit(1)
	}
}

// printHelp shows usage information
func printHelp() {
	fmt.Println(`yolokit installer v` + version + `

Usage: yolokit-installer [OPTIONS]

Options:
  --text, -t       Run in text mode (copy/paste friendly)
  --yes, -y        Install the recommended wheels without asking (implies --text)
  --cpu            Install CPU wheels even when a CUDA driver is present
  --python <path>  Interpreter to install into (default: config "python")
  --help, -h       Show this help
  --version, -v    Show version

Without a terminal the installer runs in text mode.`)
}

// isTerminal checks if we're running in an interactive terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TEXT MODE INSTALLER (Copy/Paste Friendly)
// =============================================================================

// runTextInstaller runs every step with plain output and returns the exit
// code.
func runTextInstaller(e *env, yes bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println()
	fmt.Println("================================================================================")
	fmt.Println("                              YOLOKIT INSTALLER")
	fmt.Println("                        " + tagline)
	fmt.Println("================================================================================")
	fmt.Println()

	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Println("                                 SYSTEM CHECK")
	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Println()

	var checks []CheckResult
	for idx := range checkNames {
		res := e.runCheck(ctx, idx)
		checks = append(checks, res)
		fmt.Printf("  [%s] %-18s %s\n", strings.ToUpper(res.Status), res.Name, res.Message)
		if res.Fix != "" {
			fmt.Printf("         -> %s\n", res.Fix)
		}
	}
	fmt.Println()

	if failed(checks) {
		fmt.Println("Some checks failed. Fix them and run the installer again.")
		return 1
	}

	rec := detect.Recommend(e.gpu)
	plan := e.plan
	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Println("                                    PLAN")
	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Println()
	fmt.Printf("  Wheels:        %s\n", planLabel(plan))
	if plan.Reason != "" {
		fmt.Printf("  Note:          %s\n", plan.Reason)
	}
	fmt.Printf("  Command:       %s\n", strings.Join(plan.Command(e.python), " "))
	fmt.Printf("  Base weights:  %s (%s)\n", rec.BaseWeights, rec.Description)
	fmt.Println()

	if !yes {
		fmt.Print("Install now? [Y/n]: ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(input)); answer == "n" || answer == "no" {
			fmt.Println("Installation cancelled. Run later with: yolokit install-torch")
			return 0
		}
	}

	fmt.Println()
	res := e.install(ctx, plan, os.Stdout)
	fmt.Println()
	if res.Err != nil {
		fmt.Printf("Installation failed: %v\n", res.Err)
		if ctx.Err() != nil {
			return 130
		}
		return 1
	}

	accel := "CPU"
	if res.CUDA {
		accel = "CUDA"
	}
	fmt.Printf("torch %s installed (%s)\n", res.Version, accel)
	fmt.Println()
	fmt.Println("Next steps:")
	for _, tip := range nextSteps {
		fmt.Printf("  %-18s %s\n", tip.Title, tip.Example)
	}
	return 0
}
