// yolokit - train, validate and run YOLO detection models from the command line.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"github.com/jeranaias/yolokit/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	// Parse CLI arguments
	cmd, args := cli.Parse()

	var err error

	// Route to appropriate handler
	switch cmd {
	case cli.CmdLegacy:
		err = cli.HandleLegacy(args)
	case cli.CmdCreate, cli.CmdTrain, cli.CmdContinue, cli.CmdValidate,
		cli.CmdPredict, cli.CmdDigits, cli.CmdDelete:
		err = cli.HandleModel(cmd, args)
	case cli.CmdList:
		err = cli.HandleList(args)
	case cli.CmdWatch:
		err = cli.HandleWatch(args)
	case cli.CmdReport:
		err = cli.HandleReport(args)
	case cli.CmdHistory:
		err = cli.HandleHistory(args)
	case cli.CmdDataset:
		err = cli.HandleDataset(args)
	case cli.CmdFilter:
		err = cli.HandleFilter(args)
	case cli.CmdGPU:
		err = cli.HandleGPU(args)
	case cli.CmdInstallTorch:
		err = cli.HandleInstallTorch(args)
	case cli.CmdDoctor:
		err = cli.HandleDoctor(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.HandleVersionWithJSON(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	default:
		err = cli.HandleUnknown(args)
	}

	cli.HandleErrorAndExit(args, err)
}
