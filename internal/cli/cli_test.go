// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yolokit/internal/buildings"
	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/dataset"
	"github.com/jeranaias/yolokit/internal/detection"
	"github.com/jeranaias/yolokit/internal/history"
	"github.com/jeranaias/yolokit/internal/model"
)

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"show"},
			wantSub: "show",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"list", "--limit", "50"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("limit") != "50" {
					t.Errorf("Flag(limit) = %q, want %q", p.Flag("limit"), "50")
				}
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"list", "--model-name=level"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("model-name") != "level" {
					t.Errorf("Flag(model-name) = %q, want %q", p.Flag("model-name"), "level")
				}
			},
		},
		{
			name:    "boolean flag",
			args:    []string{"install", "--dry-run"},
			wantSub: "install",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("dry-run") {
					t.Error("BoolFlag(dry-run) should be true")
				}
			},
		},
		{
			name:    "multiple positional args",
			args:    []string{"set", "paths.screenshot", "shot", "2.png"},
			wantSub: "set",
			validate: func(t *testing.T, p *ArgParser) {
				if p.PositionalCount() != 4 {
					t.Errorf("PositionalCount() = %d, want 4", p.PositionalCount())
				}
				joined := strings.Join(p.PositionalFrom(2), " ")
				if joined != "shot 2.png" {
					t.Errorf("PositionalFrom(2) joined = %q, want %q", joined, "shot 2.png")
				}
			},
		},
		{
			name:    "negative number is a value",
			args:    []string{"set", "--offset", "-3"},
			wantSub: "set",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("offset") != "-3" {
					t.Errorf("Flag(offset) = %q, want %q", p.Flag("offset"), "-3")
				}
			},
		},
		{
			name:    "lone dash is a value",
			args:    []string{"label", "--labels", "-"},
			wantSub: "label",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("labels") != "-" {
					t.Errorf("Flag(labels) = %q, want %q", p.Flag("labels"), "-")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args)
			if parser.Subcommand() != tt.wantSub {
				t.Errorf("Subcommand() = %q, want %q", parser.Subcommand(), tt.wantSub)
			}
			if tt.validate != nil {
				tt.validate(t, parser)
			}
		})
	}
}

// The old scripts used --image_path and --dataset_type; both spellings must
// reach the same flag.
func TestArgParser_UnderscoreAndDash(t *testing.T) {
	tests := []struct {
		args []string
		name string
	}{
		{[]string{"--image_path", "a.png"}, "image-path"},
		{[]string{"--image-path", "a.png"}, "image_path"},
		{[]string{"--image_path=a.png"}, "image-path"},
		{[]string{"--dataset_type", "a.png"}, "dataset-type"},
	}

	for _, tt := range tests {
		p := NewArgParser(tt.args)
		if got := p.Flag(tt.name); got != "a.png" {
			t.Errorf("NewArgParser(%v).Flag(%q) = %q, want %q", tt.args, tt.name, got, "a.png")
		}
		if !p.HasFlag(tt.name) {
			t.Errorf("NewArgParser(%v).HasFlag(%q) = false", tt.args, tt.name)
		}
	}
}

func TestArgParser_FirstFlag(t *testing.T) {
	p := NewArgParser([]string{"--name", "b", "--weights", "w.pt"})
	if got := p.FirstFlag("model-name", "name"); got != "b" {
		t.Errorf("FirstFlag(model-name, name) = %q, want %q", got, "b")
	}
	if got := p.FirstFlag("path", "weights"); got != "w.pt" {
		t.Errorf("FirstFlag(path, weights) = %q, want %q", got, "w.pt")
	}
	if got := p.FirstFlag("missing"); got != "" {
		t.Errorf("FirstFlag(missing) = %q, want empty", got)
	}
}

func TestArgParser_FlagFloat(t *testing.T) {
	p := NewArgParser([]string{"--connect-walls", "120.5", "--rate", "fast"})

	v, ok, err := p.FlagFloat("connect-walls")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 120.5, v, 1e-9)

	_, ok, err = p.FlagFloat("missing")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = p.FlagFloat("rate")
	require.True(t, ok)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestArgParser_FlagIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		flagName   string
		defaultVal int
		want       int
	}{
		{
			name:       "flag present",
			args:       []string{"list", "--limit", "10"},
			flagName:   "limit",
			defaultVal: 5,
			want:       10,
		},
		{
			name:       "flag missing uses default",
			args:       []string{"list"},
			flagName:   "limit",
			defaultVal: 5,
			want:       5,
		},
		{
			name:       "invalid int uses default",
			args:       []string{"list", "--limit", "abc"},
			flagName:   "limit",
			defaultVal: 5,
			want:       5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args)
			got := parser.FlagIntOrDefault(tt.flagName, tt.defaultVal)
			if got != tt.want {
				t.Errorf("FlagIntOrDefault(%q, %d) = %d, want %d", tt.flagName, tt.defaultVal, got, tt.want)
			}
		})
	}
}

func TestParseIntWithValidation(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"50", 50, false},
		{"1", 1, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseIntWithValidation(tt.input, "epochs")
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIntWithValidation(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIntWithValidation(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestArgParser_EmptyArgs(t *testing.T) {
	parser := NewArgParser([]string{})
	if parser.Subcommand() != "" {
		t.Errorf("Subcommand() = %q, want empty", parser.Subcommand())
	}
	if parser.PositionalCount() != 0 {
		t.Errorf("PositionalCount() = %d, want 0", parser.PositionalCount())
	}
}

func TestArgParser_FlagOrDefault(t *testing.T) {
	parser := NewArgParser([]string{"cmd", "--present", "value"})

	if parser.FlagOrDefault("present", "default") != "value" {
		t.Error("FlagOrDefault should return actual value when present")
	}
	if parser.FlagOrDefault("missing", "default") != "default" {
		t.Error("FlagOrDefault should return default when missing")
	}
}

// =============================================================================
// COMMAND PARSING TESTS (cli.go)
// =============================================================================

func TestParseArgs_Legacy(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantCmd Command
		wantOps []Command
	}{
		{
			name:    "single operation",
			args:    []string{"--predict", "--model-name", "buildings"},
			wantCmd: CmdLegacy,
			wantOps: []Command{CmdPredict},
		},
		{
			name:    "fixed order regardless of flag order",
			args:    []string{"--zahl_erkennen", "--predict", "--testvals", "--train", "--delete-model", "--model-name", "x"},
			wantCmd: CmdLegacy,
			wantOps: []Command{CmdDelete, CmdTrain, CmdValidate, CmdPredict, CmdDigits},
		},
		{
			name:    "all operations",
			args:    []string{"--continue-train", "--create-model", "--delete-model", "--train", "--testvals", "--predict", "--zahl-erkennen"},
			wantCmd: CmdLegacy,
			wantOps: []Command{CmdDelete, CmdCreate, CmdTrain, CmdContinue, CmdValidate, CmdPredict, CmdDigits},
		},
		{
			name:    "operation flag with a value before it",
			args:    []string{"--model-name", "level", "--create-model", "--base", "yolov8n.pt"},
			wantCmd: CmdLegacy,
			wantOps: []Command{CmdCreate},
		},
		{
			name:    "explicitly disabled operation",
			args:    []string{"--predict=false", "--testvals", "--model-name", "m"},
			wantCmd: CmdLegacy,
			wantOps: []Command{CmdValidate},
		},
		{
			name:    "only disabled operations",
			args:    []string{"--predict=false", "--model-name", "m"},
			wantCmd: CmdUnknown,
		},
		{
			name:    "no operation",
			args:    []string{"--model-name", "level"},
			wantCmd: CmdUnknown,
		},
		{
			name:    "help flag",
			args:    []string{"--help"},
			wantCmd: CmdHelp,
		},
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantCmd: CmdVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.args)
			if cmd != tt.wantCmd {
				t.Fatalf("Command = %v, want %v", cmd, tt.wantCmd)
			}
			if !reflect.DeepEqual(args.Ops, tt.wantOps) {
				t.Errorf("Ops = %v, want %v", args.Ops, tt.wantOps)
			}
		})
	}
}

func TestParseArgs_Subcommands(t *testing.T) {
	tests := []struct {
		args    []string
		wantCmd Command
		wantSub string
	}{
		{[]string{"create", "--model-name", "a"}, CmdCreate, ""},
		{[]string{"train", "buildings"}, CmdTrain, "buildings"},
		{[]string{"continue-train"}, CmdContinue, ""},
		{[]string{"testvals"}, CmdValidate, ""},
		{[]string{"val"}, CmdValidate, ""},
		{[]string{"zahl_erkennen"}, CmdDigits, ""},
		{[]string{"digits"}, CmdDigits, ""},
		{[]string{"delete"}, CmdDelete, ""},
		{[]string{"ls"}, CmdList, ""},
		{[]string{"watch", "--listen", ":8765"}, CmdWatch, ""},
		{[]string{"report", "level"}, CmdReport, "level"},
		{[]string{"history", "show", "3f2a"}, CmdHistory, "show"},
		{[]string{"dataset", "label", "a.png"}, CmdDataset, "label"},
		{[]string{"filter"}, CmdFilter, ""},
		{[]string{"gpu"}, CmdGPU, ""},
		{[]string{"install_torch", "--dry-run"}, CmdInstallTorch, ""},
		{[]string{"doctor", "fix"}, CmdDoctor, "fix"},
		{[]string{"config", "set", "predict.conf", "0.4"}, CmdConfig, "set"},
		{[]string{"CONFIG"}, CmdConfig, ""},
		{[]string{"version"}, CmdVersion, ""},
		{[]string{"help"}, CmdHelp, ""},
		{[]string{}, CmdHelp, ""},
		{[]string{"frobnicate"}, CmdUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd, args := ParseArgs(tt.args)
			if cmd != tt.wantCmd {
				t.Errorf("Command = %v, want %v", cmd, tt.wantCmd)
			}
			if args.Subcommand != tt.wantSub {
				t.Errorf("Subcommand = %q, want %q", args.Subcommand, tt.wantSub)
			}
		})
	}
}

func TestParseArgs_GlobalFlags(t *testing.T) {
	cmd, args := ParseArgs([]string{"predict", "--json", "--model-name", "a", "-q", "--config=custom.toml", "-v"})
	require.Equal(t, CmdPredict, cmd)
	require.True(t, args.JSON)
	require.True(t, args.Quiet)
	require.True(t, args.Verbose)
	require.Equal(t, "custom.toml", args.ConfigPath)
	require.Equal(t, []string{"--model-name", "a"}, args.Raw)

	// Global flags before a legacy operation do not hide it.
	cmd, args = ParseArgs([]string{"--json", "--config", "c.toml", "--predict"})
	require.Equal(t, CmdLegacy, cmd)
	require.Equal(t, "c.toml", args.ConfigPath)
	require.Equal(t, []Command{CmdPredict}, args.Ops)
}

// TestParse_Integration tests the actual Parse() function by temporarily
// modifying os.Args.
func TestParse_Integration(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	os.Args = []string{"yolokit", "--train", "--testvals", "--model-name", "level", "--dataset_type", "level", "--epochs", "50"}
	cmd, args := Parse()
	if cmd != CmdLegacy {
		t.Fatalf("Command = %v, want %v", cmd, CmdLegacy)
	}

	req, err := requestFromArgs(args.Raw)
	require.NoError(t, err)
	require.Equal(t, model.Request{Name: "level", Dataset: "level", Epochs: 50}, req)
}

func TestCommand_String(t *testing.T) {
	if CmdValidate.String() != "val" {
		t.Errorf("CmdValidate.String() = %q, want val", CmdValidate.String())
	}
	if CmdLegacy.String() != "run" {
		t.Errorf("CmdLegacy.String() = %q, want run", CmdLegacy.String())
	}
	for _, op := range legacyOps {
		if op.cmd.String() == "" || op.cmd.String() == "unknown" {
			t.Errorf("legacy command %v has no name", op.cmd)
		}
	}
}

// =============================================================================
// REQUEST TESTS (model_cmd.go)
// =============================================================================

func TestRequestFromArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    model.Request
		wantErr bool
	}{
		{
			name: "legacy spellings",
			args: []string{"--model-name", "buildings", "--base", "yolov8s.pt", "--dataset_type", "buildings",
				"--epochs", "30", "--path", "w.pt", "--image_path", "shot.png"},
			want: model.Request{Name: "buildings", Base: "yolov8s.pt", Dataset: "buildings",
				Epochs: 30, WeightsPath: "w.pt", ImagePath: "shot.png"},
		},
		{
			name: "short spellings",
			args: []string{"--name", "level", "--dataset", "d.yaml", "--weights", "x.pt", "--image", "a.png"},
			want: model.Request{Name: "level", Dataset: "d.yaml", WeightsPath: "x.pt", ImagePath: "a.png"},
		},
		{
			name: "positional name",
			args: []string{"level", "--epochs", "5"},
			want: model.Request{Name: "level", Epochs: 5},
		},
		{
			name: "flag wins over positional",
			args: []string{"other", "--model-name", "level"},
			want: model.Request{Name: "level"},
		},
		{
			name:    "zero epochs",
			args:    []string{"--epochs", "0"},
			wantErr: true,
		},
		{
			name:    "non-numeric epochs",
			args:    []string{"--epochs", "many"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestFromArgs(tt.args)
			if tt.wantErr {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// ERROR TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", NewValidationError("epochs", "0", "must be positive"), ExitUsageError},
		{"tty", &TTYRequiredError{Operation: "label"}, ExitUsageError},
		{"name required", model.ErrNameRequired, ExitUsageError},
		{"invalid name", fmt.Errorf("%w: %q", model.ErrInvalidName, ".."), ExitUsageError},
		{"ambiguous run id", history.ErrAmbiguousID, ExitUsageError},
		{"missing weights", fmt.Errorf("predict: %w", model.ErrWeightsNotFound), ExitNotFoundError},
		{"missing image", model.ErrImageNotFound, ExitNotFoundError},
		{"missing model", model.ErrModelNotFound, ExitNotFoundError},
		{"missing data.yaml", fmt.Errorf("%w: d.yaml", dataset.ErrNoDataYAML), ExitNotFoundError},
		{"missing run", history.ErrRunNotFound, ExitNotFoundError},
		{"missing file", &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, ExitNotFoundError},
		{"not found type", NewNotFoundError("model", "x"), ExitNotFoundError},
		{"config errors", config.ValidateErrors{{Field: "predict.conf", Message: "out of range"}}, ExitConfigError},
		{"interrupted", fmt.Errorf("train: %w", context.Canceled), ExitInterrupted},
		{"timeout", context.DeadlineExceeded, ExitTimeoutError},
		{"reported keeps code", &reportedError{err: model.ErrWeightsNotFound}, ExitNotFoundError},
		{"general", errors.New("framework exited with status 1"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewValidationError("f", "v", "r"), "validation_error"},
		{model.ErrWeightsNotFound, "not_found_error"},
		{NewNotFoundError("run", "x"), "not_found_error"},
		{config.ValidateErrors{{Field: "f", Message: "m"}}, "config_error"},
		{NewCommandError("dataset", "label", "aborted", nil), "command_error"},
		{errors.New("boom"), "generic_error"},
	}

	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestJSONResponse_Envelope(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, NewJSONResponse("predict", map[string]int{"count": 2}).Fprint(&sb))

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(sb.String()), &env))
	require.Equal(t, true, env["success"])
	require.Equal(t, "predict", env["command"])
	require.NotEmpty(t, env["timestamp"])

	resp := NewJSONErrorResponse("predict", model.ErrWeightsNotFound)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Contains(t, *resp.Error, "weights")
}

// =============================================================================
// OUTPUT TESTS (styles.go)
// =============================================================================

func TestColorProfile(t *testing.T) {
	ForceColorsEnabled(false)
	require.False(t, ColorsEnabled())
	require.Equal(t, termenv.Ascii, GetColorProfile())

	ForceColorsEnabled(true)
	require.True(t, ColorsEnabled())
}

func TestHighlightTOML(t *testing.T) {
	src := "[predict]\nconf = 0.25\n"
	out := highlightTOML(src)
	require.Contains(t, out, "predict")
	require.Contains(t, out, "0.25")
	require.Contains(t, out, "\x1b[")
}

func TestFormatConfigValue(t *testing.T) {
	require.Equal(t, "0.25", formatConfigValue(0.25))
	require.Equal(t, "a\nb", formatConfigValue([]string{"a", "b"}))
	require.Equal(t, "default = d.yaml\nlevel = l.yaml",
		formatConfigValue(map[string]string{"level": "l.yaml", "default": "d.yaml"}))
	require.Equal(t, "predict.conf", configKey("  predict.conf "))
}

func TestRenderTable_WideRunes(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	out := RenderTable(
		[]string{"CLASS", "N"},
		[][]string{
			{"bogenschützenturm", "3"},
			{"mauer", "12"},
		},
	)
	want := "CLASS" + strings.Repeat(" ", 14) + "N\n" +
		"bogenschützenturm  3\n" +
		"mauer" + strings.Repeat(" ", 14) + "12\n"
	require.Equal(t, want, out)
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := formatDurationShort(tt.d); got != tt.want {
			t.Errorf("formatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

// isolateConfig makes loadConfig return defaults rooted in a temp directory.
func isolateConfig(t *testing.T) *config.Config {
	t.Helper()
	config.ResetGlobalForTesting()
	t.Cleanup(config.ResetGlobalForTesting)

	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.CommunicationDir = filepath.Join(dir, "Communication")
	cfg.Paths.RunsDir = filepath.Join(dir, "runs")
	cfg.Paths.HistoryDB = filepath.Join(dir, "history.db")
	config.SetGlobal(cfg)
	return cfg
}

func TestHandleFilter(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "data.json")
	output := filepath.Join(dir, "filtered.json")

	dets := []detection.Detection{
		{ClassID: 0, ClassName: "rathaus", Confidence: 0.9, BoundingBox: detection.Box{0, 0, 10, 10}},
		{ClassID: 1, ClassName: buildings.WallClass, Confidence: 0.8, BoundingBox: detection.Box{100, 100, 110, 110}},
		{ClassID: 1, ClassName: buildings.WallClass, Confidence: 0.8, BoundingBox: detection.Box{120, 100, 130, 110}},
		{ClassID: 2, ClassName: "tesla", Confidence: 0.7, BoundingBox: detection.Box{50, 50, 60, 60}},
	}
	require.NoError(t, detection.WriteFile(input, dets))

	args := Args{Quiet: true, Raw: []string{"--input", input, "--output", output, "--no-normal", "--connect-walls", "50"}}
	require.NoError(t, HandleFilter(args))

	got, err := detection.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "tesla", got[0].ClassName)

	raw, err := os.ReadFile(filepath.Join(dir, "walls.json"))
	require.NoError(t, err)
	var lines []buildings.Line
	require.NoError(t, json.Unmarshal(raw, &lines))
	require.Len(t, lines, 1)

	// The input is untouched when a separate output is given.
	orig, err := detection.ReadFile(input)
	require.NoError(t, err)
	require.Len(t, orig, 4)
}

func TestHandleFilter_Validation(t *testing.T) {
	isolateConfig(t)
	input := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, detection.WriteFile(input, nil))

	err := HandleFilter(Args{Quiet: true, Raw: []string{"--input", input, "--connect-walls", "-5"}})
	require.Equal(t, ExitUsageError, GetExitCode(err))

	err = HandleFilter(Args{Quiet: true, Raw: []string{"--input", input + ".missing"}})
	require.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestFilterFromArgs(t *testing.T) {
	if filterFromArgs(NewArgParser(nil)) != nil {
		t.Error("filterFromArgs without --no-* flags should be nil")
	}
	opts := filterFromArgs(NewArgParser([]string{"--no-walls"}))
	require.NotNil(t, opts)
	require.Equal(t, buildings.Options{ShowNormal: true, ShowWalls: false, ShowDefences: true}, *opts)
}

func TestHandleHistory(t *testing.T) {
	cfg := isolateConfig(t)

	store, err := history.Open(cfg.Paths.HistoryDB)
	require.NoError(t, err)
	ctx := context.Background()
	id, err := store.Begin(ctx, "predict", "buildings")
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, id, history.Result{Status: history.StatusOK, Detections: 3}))
	require.NoError(t, store.Close())

	require.NoError(t, HandleHistory(Args{Quiet: true}))
	require.NoError(t, HandleHistory(Args{Quiet: true, Subcommand: "show", Raw: []string{"show", id[:6]}}))

	err = HandleHistory(Args{Subcommand: "show", Raw: []string{"show"}})
	require.Equal(t, ExitUsageError, GetExitCode(err))

	err = HandleHistory(Args{Subcommand: "show", Raw: []string{"show", "ffffffff-none"}})
	require.Equal(t, ExitNotFoundError, GetExitCode(err))

	err = HandleHistory(Args{Subcommand: "bogus", Raw: []string{"bogus"}})
	require.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleModel_MissingWeights(t *testing.T) {
	cfg := isolateConfig(t)

	err := HandleModel(CmdPredict, Args{Quiet: true, Raw: []string{"--model-name", "nothere"}})
	require.ErrorIs(t, err, model.ErrWeightsNotFound)
	require.Equal(t, ExitNotFoundError, GetExitCode(err))

	// No detection file is written for a failed prediction.
	_, statErr := os.Stat(cfg.OutputPath("nothere"))
	require.True(t, os.IsNotExist(statErr))
}

func TestHandleLegacy_ContinuesAfterFailure(t *testing.T) {
	cfg := isolateConfig(t)

	// Delete of a missing model fails, predict still runs and fails on
	// weights; the first failure decides the exit code.
	_, args := ParseArgs([]string{"-q", "--predict", "--delete-model", "--model-name", "nothere"})
	err := HandleLegacy(args)
	require.Error(t, err)

	var reported *reportedError
	require.ErrorAs(t, err, &reported)
	require.ErrorIs(t, err, model.ErrModelNotFound)
	require.Equal(t, ExitNotFoundError, GetExitCode(err))

	store, err := history.Open(cfg.Paths.HistoryDB)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), history.ListOptions{Model: "nothere"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestHandleDataset(t *testing.T) {
	cfg := isolateConfig(t)
	yamlPath := filepath.Join(t.TempDir(), "level", "data.yaml")
	cfg.Datasets["level"] = yamlPath

	raw := []string{"--dataset-type", "level"}
	err := HandleDataset(Args{Quiet: true, Subcommand: "info", Raw: append([]string{"info"}, raw...)})
	require.ErrorIs(t, err, dataset.ErrNoDataYAML)

	require.NoError(t, HandleDataset(Args{Quiet: true, Subcommand: "init", Raw: append([]string{"init"}, raw...)}))
	require.FileExists(t, yamlPath)
	require.DirExists(t, filepath.Join(filepath.Dir(yamlPath), "images", "train"))

	require.NoError(t, HandleDataset(Args{Quiet: true, Subcommand: "info", Raw: append([]string{"info"}, raw...)}))

	err = HandleDataset(Args{Subcommand: "split", Raw: []string{"split"}})
	require.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHealthChecks(t *testing.T) {
	dir := t.TempDir()

	check := checkCommDir(filepath.Join(dir, "missing"))
	require.Equal(t, CheckWarn, check.Status)
	require.NoError(t, check.TryFix(context.Background()))
	require.DirExists(t, filepath.Join(dir, "missing"))
	require.Equal(t, CheckPass, checkCommDir(filepath.Join(dir, "missing")).Status)

	cfg := config.Default()
	cfg.Datasets = map[string]string{
		"b": filepath.Join(dir, "b", "data.yaml"),
		"a": filepath.Join(dir, "a", "data.yaml"),
	}
	checks := checkDatasets(cfg)
	require.Len(t, checks, 2)
	require.Equal(t, "Dataset a", checks[0].Name)
	require.Equal(t, CheckWarn, checks[0].Status)
	require.NoError(t, checks[0].TryFix(context.Background()))
	// An initialized dataset has no classes yet.
	require.Equal(t, CheckWarn, checkDatasets(cfg)[0].Status)
	require.Contains(t, checkDatasets(cfg)[0].Message, "no classes")

	require.Equal(t, CheckFail, checkPython(context.Background(), filepath.Join(dir, "no-python")).Status)
	require.Equal(t, CheckFail, checkConfigValid(errors.New("bad")).Status)

	summary := summarizeChecks([]*HealthCheck{
		{Status: CheckPass}, {Status: CheckWarn}, {Status: CheckFail}, {Status: CheckPass},
	})
	require.Equal(t, DoctorSummary{Passed: 2, Warned: 1, Failed: 1, Healthy: false}, summary)
}

// =============================================================================
// SUGGESTION AND CONFIRMATION TESTS
// =============================================================================

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"trian", "train"},
		{"predcit", "predict"},
		{"doctr", "doctor"},
		{"Histroy", "history"},
		{"train", ""},
		{"x", ""},
		{"completelyunrelated", ""},
	}
	for _, tt := range tests {
		if got := SuggestCommand(tt.input); got != tt.want {
			t.Errorf("SuggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"--predcit", "--predict"},
		{"--zahl_erkenen", "--zahl-erkennen"},
		{"--delete_modle", "--delete-model"},
		{"--model-name", ""},
	}
	for _, tt := range tests {
		if got := SuggestFlag(tt.input); got != tt.want {
			t.Errorf("SuggestFlag(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestHandleUnknown_Suggests(t *testing.T) {
	err := HandleUnknown(Args{Name: "trian"})
	require.Contains(t, err.Error(), "did you mean train?")
	require.Equal(t, ExitUsageError, GetExitCode(err))

	err = HandleUnknown(Args{Name: "--predcit"})
	require.Contains(t, err.Error(), "--predict")
}

func TestPromptConfirmation(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out strings.Builder
		got, err := promptConfirmation(strings.NewReader(tt.input), &out, "delete model level",
			map[string]string{"Model": "level"})
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("promptConfirmation(%q) = %v, want %v", tt.input, got, tt.want)
		}
		require.Contains(t, out.String(), "delete model level? [y/N]")
		require.Contains(t, out.String(), "level")
	}

	ok, err := RequireConfirmation("delete", nil, ConfirmationOptions{ConfirmFlag: true})
	require.NoError(t, err)
	require.True(t, ok)
}

// =============================================================================
// BENCHMARKS
// =============================================================================

func BenchmarkParseArgs_Legacy(b *testing.B) {
	args := []string{"--train", "--testvals", "--predict", "--model-name", "level", "--dataset_type", "level", "--epochs", "50"}
	for i := 0; i < b.N; i++ {
		ParseArgs(args)
	}
}

func BenchmarkArgParser_ManyFlags(b *testing.B) {
	args := []string{
		"predict",
		"--model-name", "buildings",
		"--base", "yolov8s.pt",
		"--dataset_type", "buildings",
		"--epochs", "50",
		"--image_path", "shot.png",
		"--no-walls",
		"--no-normal",
	}
	for i := 0; i < b.N; i++ {
		NewArgParser(args)
	}
}
