// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package installer provides the yolokit PyTorch installer.

# Overview

Training YOLO models needs a PyTorch build that matches the local CUDA
driver. The installer checks the machine, chooses the wheel index from the
driver's CUDA version and runs pip. It has an interactive TUI mode built with
Bubble Tea and a text mode for scripts and CI.

# Features

  - System checks: operating system, Python interpreter, GPU, free disk space
  - Wheel selection from nvidia-smi's CUDA version (cu118 ... cu128), or CPU
  - pip progress with cancellation (Q or Ctrl+C)
  - Import check of the installed torch, reporting CUDA availability

The interpreter, wheel index base, packages and free space threshold come
from the [installer] section of the yolokit configuration.

# Building

	go build -o yolokit-installer ./cmd/installer

# Command Line Options

	--text, -t       Run in text mode (copy/paste friendly, no TUI)
	--yes, -y        Install the recommended wheels without asking
	--cpu            Force CPU wheels
	--python <path>  Interpreter to install into
	--help, -h       Show help information
	--version, -v    Show version number

# Architecture

  - main.go: Entry point, flag parsing, text mode
  - checks.go: System checks and the install step shared by both modes
  - installer.go: TUI model with phases (welcome, checks, plan, install, complete)
  - welcome.go: Next-step tips shown after installation

# Dependencies

  - github.com/charmbracelet/bubbletea - TUI framework
  - github.com/charmbracelet/bubbles - TUI components (spinner, progress)
  - github.com/charmbracelet/lipgloss - Terminal styling
  - golang.org/x/term - Terminal detection
*/
package main
