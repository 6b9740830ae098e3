// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for yolokit.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Print the effective configuration as TOML
//   get <key>           Print one value
//   set <key> <value>   Set a value in the config file
//   keys                List every settable key
//   init                Write a default yolokit.toml in the working directory
//     --force           Overwrite an existing file
//   path                Show which config file is used
//
// Examples:
//   yolokit config
//   yolokit config get predict.conf
//   yolokit config set predict.conf 0.4
//   yolokit config set datasets.level datasets/level/data.yaml
//   yolokit config set train.extra.patience 20
//   yolokit config init
//
// Keys use dot notation over the TOML section and key names; "_" and "-"
// spellings are interchangeable.
package cli

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/yolokit/internal/config"
	"github.com/jeranaias/yolokit/internal/util"
)

// ConfigPathData is returned by "config path".
type ConfigPathData struct {
	Active   string `json:"active"`
	Local    string `json:"local"`
	UserTOML string `json:"user_toml"`
	UserJSON string `json:"user_json"`
	Defaults bool   `json:"defaults_only"`
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	p := NewArgParser(args.Raw)

	switch args.Subcommand {
	case "", "show":
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config show", cfg).Print()
		}
		data, err := cfg.TOML()
		if err != nil {
			return err
		}
		if IsStdoutTTY() && ColorsEnabled() {
			fmt.Print(highlightTOML(string(data)))
		} else {
			fmt.Print(string(data))
		}
		return nil

	case "get":
		key := configKey(p.Positional(1))
		if key == "" {
			return ErrMissingArgument("key", "yolokit config get predict.conf")
		}
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		val, err := cfg.Get(key)
		if err != nil {
			return NewValidationError("key", key, err.Error())
		}
		if args.JSON {
			return NewJSONResponse("config get", map[string]interface{}{"key": key, "value": val}).Print()
		}
		fmt.Println(formatConfigValue(val))
		return nil

	case "set":
		return handleConfigSet(args, configKey(p.Positional(1)), strings.Join(p.PositionalFrom(2), " "))

	case "keys":
		keys := config.GetAllKeys()
		if args.JSON {
			return NewJSONResponse("config keys", keys).Print()
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil

	case "init":
		return handleConfigInit(args, p.BoolFlag("force"))

	case "path":
		return handleConfigPath(args)

	default:
		return ErrUnknownSubcommand("config", args.Subcommand, []string{"show", "get", "set", "keys", "init", "path"})
	}
}

func configKey(key string) string {
	return strings.TrimSpace(key)
}

// configTarget returns the file "config set" writes: --config, then the file
// in use, then the user config.
func configTarget(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	if active := config.ActivePath(); active != "" {
		return active, nil
	}
	return config.ConfigPathTOML()
}

// handleConfigSet edits the file itself, not the effective configuration, so
// environment overrides are never written back.
func handleConfigSet(args Args, key, value string) error {
	if key == "" {
		return ErrMissingArgument("key", "yolokit config set predict.conf 0.4")
	}
	if value == "" {
		return ErrMissingArgument("value", fmt.Sprintf("yolokit config set %s <value>", key))
	}

	path, err := configTarget(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if util.FileExists(path) {
		if strings.HasSuffix(strings.ToLower(path), ".json") {
			if err := config.LoadJSON(cfg, path); err != nil {
				return fmt.Errorf("failed to read config %s: %w", path, err)
			}
			// JSON configs are migrated to TOML on first write.
			if path, err = config.ConfigPathTOML(); err != nil {
				return err
			}
		} else if err := config.LoadTOML(cfg, path); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error())
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config set", map[string]string{"key": key, "value": value, "path": path}).Print()
	}
	fmt.Printf("%s %s = %s\n", SuccessStyle.Render("[OK]"), key, value)
	fmt.Println(DimStyle.Render("Saved to " + path))
	return nil
}

func handleConfigInit(args Args, force bool) error {
	path := config.LocalConfigName
	if args.ConfigPath != "" {
		path = args.ConfigPath
	}
	if util.FileExists(path) && !force {
		return NewValidationErrorWithExample("config", path, "file exists", "yolokit config init --force")
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config init", map[string]string{"path": path}).Print()
	}
	fmt.Printf("%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func handleConfigPath(args Args) error {
	data := ConfigPathData{
		Active: args.ConfigPath,
		Local:  config.LocalConfigName,
	}
	if data.Active == "" {
		data.Active = config.ActivePath()
	}
	data.UserTOML, _ = config.ConfigPathTOML()
	data.UserJSON, _ = config.ConfigPathJSON()
	data.Defaults = data.Active == ""

	if args.JSON {
		return NewJSONResponse("config path", data).Print()
	}
	if data.Defaults {
		fmt.Println(DimStyle.Render("No config file found, using defaults"))
		fmt.Println(RenderKV("Searched", data.Local))
		fmt.Println(RenderKV("", data.UserTOML))
		fmt.Println(RenderKV("", data.UserJSON))
		return nil
	}
	fmt.Println(data.Active)
	if _, err := os.Stat(data.Active); os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Note: file does not exist"))
	}
	return nil
}

// formatConfigValue prints sections and maps as TOML-ish key lines and
// scalars as-is.
func formatConfigValue(v interface{}) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, "\n")
	case map[string]string:
		var lines []string
		for _, k := range sortedKeys(val) {
			lines = append(lines, k+" = "+val[k])
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// highlightTOML applies terminal syntax highlighting using the chroma library.
// The input is returned unchanged when highlighting fails.
func highlightTOML(code string) string {
	lexer := lexers.Get("toml")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
