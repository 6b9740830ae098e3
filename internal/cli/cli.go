// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for yolokit.
//
// Two interfaces share one set of handlers:
//   - subcommands: yolokit predict --model-name buildings
//   - legacy operation flags: yolokit --predict --model-name buildings
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdLegacy
	CmdCreate
	CmdTrain
	CmdContinue
	CmdValidate
	CmdPredict
	CmdDigits
	CmdDelete
	CmdList
	CmdWatch
	CmdReport
	CmdHistory
	CmdDataset
	CmdFilter
	CmdGPU
	CmdInstallTorch
	CmdDoctor
	CmdConfig
	CmdVersion
	CmdUnknown
)

// commandNames maps commands to the name used in JSON responses and history.
var commandNames = map[Command]string{
	CmdHelp:         "help",
	CmdLegacy:       "run",
	CmdCreate:       "create",
	CmdTrain:        "train",
	CmdContinue:     "continue",
	CmdValidate:     "val",
	CmdPredict:      "predict",
	CmdDigits:       "digits",
	CmdDelete:       "delete",
	CmdList:         "list",
	CmdWatch:        "watch",
	CmdReport:       "report",
	CmdHistory:      "history",
	CmdDataset:      "dataset",
	CmdFilter:       "filter",
	CmdGPU:          "gpu",
	CmdInstallTorch: "install-torch",
	CmdDoctor:       "doctor",
	CmdConfig:       "config",
	CmdVersion:      "version",
}

// String returns the command name.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// legacyOps lists the operation flags of the old scripts in the order they
// run when several are given.
var legacyOps = []struct {
	flag string
	cmd  Command
}{
	{"delete-model", CmdDelete},
	{"create-model", CmdCreate},
	{"train", CmdTrain},
	{"continue-train", CmdContinue},
	{"testvals", CmdValidate},
	{"predict", CmdPredict},
	{"zahl-erkennen", CmdDigits},
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool // Output in JSON format
	ConfigPath string

	// Subcommand is the first positional argument after the command
	// (e.g. "show" in "history show <id>").
	Subcommand string

	// Ops are the legacy operations to run, in run order.
	Ops []Command

	// Name is the command word as typed, for error messages.
	Name string

	// Raw args (remaining after global flag parsing)
	Raw []string
}

const usageText = `yolokit - train, validate and run YOLO detection models

Usage:
  yolokit <command> [flags]
  yolokit --<operation> [--<operation>...] [flags]

Model commands:
  create                     Start a new training run from base weights
  train                      Train a model (from --base, else its own weights)
  continue                   Fine-tune a model from its best weights
  val, testvals              Validate a model on its dataset
  predict                    Detect objects in the input image, write JSON
  digits                     Run the digit model (predict.digits_model) and read the number
  delete                     Remove a model's run directory
  list                       List models and their weights

Model flags:
  --model-name <name>        Model (run directory) name
  --base <weights>           Base weights, e.g. yolov8n.pt or a path
  --epochs <n>               Epoch count (default from config)
  --dataset-type <key>       Dataset selector: buildings, level, or a data.yaml path
  --path <file>              Explicit weights file, overrides the naming convention
  --image-path <file>        Input image (default Communication/screenshot.png)

Legacy operation flags (run in this order when combined):
  --delete-model --create-model --train --continue-train
  --testvals --predict --zahl_erkennen

Other commands:
  watch                      Predict whenever the input image changes
    --listen <addr>          Also broadcast detections over WebSocket
  report <model>             Summarize a training run's results.csv
  history [show|prune]       Operation history
  dataset [info|label|split] Dataset tooling
  filter                     Filter building detections
  gpu                        Show GPU and training recommendation
  install-torch [--dry-run]  Install PyTorch for the detected CUDA version
  doctor                     Check the Python and GPU environment
  config [show|get|set|init|path]
  version                    Show version information
  help                       Show this help

Global flags:
  --json                     Machine readable output on stdout
  -q, --quiet                Only print results
  -v, --verbose              Show framework output and logs
  --config <file>            Use this config file

Flags accept - and _ spellings: --image-path and --image_path are the same.

Examples:
  yolokit create --model-name buildings --base yolov8s.pt --dataset-type buildings
  yolokit --predict --model-name buildings
  yolokit --train --testvals --model-name level --dataset_type level --epochs 50
  yolokit watch --model-name buildings --listen :8765

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("yolokit version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given arguments (without the program name).
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)
	parsedArgs.Raw = remaining

	if len(remaining) == 0 {
		return CmdHelp, parsedArgs
	}

	// Legacy interface: no command word, only operation flags.
	if strings.HasPrefix(remaining[0], "-") {
		switch remaining[0] {
		case "-h", "--help":
			return CmdHelp, parsedArgs
		case "--version":
			return CmdVersion, parsedArgs
		}
		parsedArgs.Ops = parseLegacyOps(NewArgParser(remaining))
		if len(parsedArgs.Ops) == 0 {
			parsedArgs.Name = remaining[0]
			return CmdUnknown, parsedArgs
		}
		parsedArgs.Name = CmdLegacy.String()
		return CmdLegacy, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining
	parsedArgs.Name = cmd
	parsedArgs.Subcommand = NewArgParser(remaining).Subcommand()

	switch cmd {
	case "create":
		return CmdCreate, parsedArgs
	case "train":
		return CmdTrain, parsedArgs
	case "continue", "continue-train":
		return CmdContinue, parsedArgs
	case "val", "validate", "testvals":
		return CmdValidate, parsedArgs
	case "predict":
		return CmdPredict, parsedArgs
	case "digits", "zahl-erkennen", "zahl_erkennen":
		return CmdDigits, parsedArgs
	case "delete", "delete-model":
		return CmdDelete, parsedArgs
	case "list", "ls", "models":
		return CmdList, parsedArgs
	case "watch":
		return CmdWatch, parsedArgs
	case "report":
		return CmdReport, parsedArgs
	case "history":
		return CmdHistory, parsedArgs
	case "dataset", "ds":
		return CmdDataset, parsedArgs
	case "filter":
		return CmdFilter, parsedArgs
	case "gpu":
		return CmdGPU, parsedArgs
	case "install-torch", "install_torch":
		return CmdInstallTorch, parsedArgs
	case "doctor":
		return CmdDoctor, parsedArgs
	case "config":
		return CmdConfig, parsedArgs
	case "version":
		return CmdVersion, parsedArgs
	case "help":
		return CmdHelp, parsedArgs
	default:
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--config":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		default:
			if strings.HasPrefix(arg, "--config=") {
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			} else {
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// parseLegacyOps returns the operation flags that are set, in run order.
// --predict=false disables the operation.
func parseLegacyOps(p *ArgParser) []Command {
	var ops []Command
	for _, op := range legacyOps {
		if p.BoolFlag(op.flag) || p.Flag(op.flag) != "" {
			ops = append(ops, op.cmd)
		}
	}
	return ops
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleVersionWithJSON handles the "version" command with JSON output support.
func HandleVersionWithJSON(args Args) {
	if args.JSON {
		data := VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}
		NewJSONResponse("version", data).Print()
		return
	}
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}

// HandleUnknown reports an unknown command or flag, suggesting the closest
// valid one.
func HandleUnknown(args Args) error {
	if strings.HasPrefix(args.Name, "-") {
		if flag := SuggestFlag(args.Name); flag != "" {
			return NewValidationErrorWithExample("flag", args.Name,
				"no operation given, did you mean "+flag+"?", "yolokit "+flag+" --model-name buildings")
		}
		return NewValidationErrorWithExample("flag", args.Name,
			"no operation given", "yolokit --predict --model-name buildings")
	}
	if cmd := SuggestCommand(args.Name); cmd != "" {
		return NewValidationErrorWithExample("command", args.Name,
			"unknown command, did you mean "+cmd+"?", "yolokit "+cmd)
	}
	return NewValidationErrorWithExample("command", args.Name,
		"unknown command", "yolokit help")
}
