// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface parsing and execution for yolokit.
//
// Two interfaces share the same handlers. The legacy interface takes only
// operation flags and runs them in a fixed order:
//
//	yolokit --delete-model --create-model --model-name level --base yolov8n.pt
//
// The subcommand interface names one command:
//
//	yolokit predict --model-name buildings --image-path shot.png
//
// # Key Types
//
//   - Command: Enumeration of all available CLI commands
//   - Args: Parsed global flags, the operation list and the raw command flags
//   - ArgParser: Flag parsing where "--image_path" and "--image-path" match
//   - JSONResponse: The --json envelope written to stdout
//
// # Usage
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdLegacy:
//	    err = cli.HandleLegacy(args)
//	case cli.CmdPredict:
//	    err = cli.HandleModel(cmd, args)
//	// ... other commands
//	}
//	cli.HandleErrorAndExit(args, err)
//
// # Commands Overview
//
// Model Commands:
//   - create, train, continue, val, predict, digits, delete, list
//   - watch: predict on every change of the input image
//   - report: summarize a training run
//
// Tooling:
//   - dataset: info, init, label, split
//   - filter: building category filter and wall lines
//   - history: recorded operations
//   - gpu, install-torch: GPU diagnostics and PyTorch installation
//   - doctor: environment health checks
//   - config: show, get, set, keys, init, path
//
// All commands support --json.
package cli
