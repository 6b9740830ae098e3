// args.go - Unified argument parsing for all yolokit commands.
//
// Flag names are normalized so the underscore spellings of the old scripts
// (--dataset_type, --image_path, --zahl_erkennen) and the dashed spellings
// (--dataset-type) are the same flag.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser is the flag and positional view of one command's arguments.
// Accepted forms are --flag value, --flag=value, -f value and bare boolean
// --flag. A flag followed by a non-flag always takes it as its value, so
// booleans go last or use --flag=true.
type ArgParser struct {
	subcommand string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw.
//
//	p := NewArgParser([]string{"show", "--limit", "20", "--model_name=level"})
//	p.Subcommand()       // "show"
//	p.Flag("limit")      // "20"
//	p.Flag("model-name") // "level"
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{
		flags:      map[string]string{},
		boolFlags:  map[string]bool{},
		positional: []string{},
		raw:        raw,
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if !isFlag(arg) {
			p.positional = append(p.positional, arg)
			continue
		}

		if name, value, found := strings.Cut(arg, "="); found {
			p.set(normalizeFlag(name), value)
			continue
		}

		name := normalizeFlag(arg)
		if i+1 < len(raw) && !isFlag(raw[i+1]) {
			i++
			p.flags[name] = raw[i]
		} else {
			p.boolFlags[name] = true
		}
	}

	if len(p.positional) > 0 {
		p.subcommand = p.positional[0]
	}
	return p
}

// set records --name=value; "true" and "false" make it a boolean.
func (p *ArgParser) set(name, value string) {
	switch value {
	case "true", "false":
		p.boolFlags[name] = value == "true"
	default:
		p.flags[name] = value
	}
}

// isFlag reports whether arg starts a flag. "-" and negative numbers are
// values.
func isFlag(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	if _, err := strconv.ParseFloat(arg, 64); err == nil {
		return false
	}
	return true
}

// normalizeFlag strips leading dashes and folds underscores into dashes.
func normalizeFlag(name string) string {
	return strings.ReplaceAll(strings.TrimLeft(name, "-"), "_", "-")
}

// Subcommand is the first positional argument, or "".
func (p *ArgParser) Subcommand() string {
	return p.subcommand
}

// Flag returns the value of a string flag, or "" if not set.
func (p *ArgParser) Flag(name string) string {
	return p.flags[normalizeFlag(name)]
}

// FirstFlag returns the value of the first of names that is set.
func (p *ArgParser) FirstFlag(names ...string) string {
	for _, name := range names {
		if val := p.Flag(name); val != "" {
			return val
		}
	}
	return ""
}

// FlagOrDefault returns the flag value or a default if not found.
func (p *ArgParser) FlagOrDefault(name, defaultValue string) string {
	if val := p.Flag(name); val != "" {
		return val
	}
	return defaultValue
}

// FlagInt returns the flag value as an integer.
// Returns 0 and error if flag is not a valid integer.
func (p *ArgParser) FlagInt(name string) (int, error) {
	val := p.Flag(name)
	if val == "" {
		return 0, fmt.Errorf("flag %s not found", name)
	}
	return strconv.Atoi(val)
}

// FlagIntOrDefault returns the flag value as an integer or a default.
// Returns default if flag not found or not a valid integer.
func (p *ArgParser) FlagIntOrDefault(name string, defaultValue int) int {
	val, err := p.FlagInt(name)
	if err != nil {
		return defaultValue
	}
	return val
}

// FlagFloat returns the flag value as a float, ok is false when the flag is
// absent.
func (p *ArgParser) FlagFloat(name string) (value float64, ok bool, err error) {
	val := p.Flag(name)
	if val == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, true, NewValidationError(name, val, "must be a number")
	}
	return value, true, nil
}

// BoolFlag returns the value of a boolean flag, false if not set.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[normalizeFlag(name)]
}

// Positional returns positional argument index (0 is the subcommand), or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns all positional arguments starting from index.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return []string{}
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// HasFlag reports whether name was given at all, with or without a value.
func (p *ArgParser) HasFlag(name string) bool {
	name = normalizeFlag(name)
	if _, ok := p.flags[name]; ok {
		return true
	}
	_, ok := p.boolFlags[name]
	return ok
}

// Raw returns the original raw arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// ParseIntWithValidation parses a positive integer such as --epochs.
func ParseIntWithValidation(s string, fieldName string) (int, error) {
	val, err := strconv.Atoi(s)
	switch {
	case s == "":
		return 0, NewValidationError(fieldName, s, "value is required")
	case err != nil:
		return 0, NewValidationError(fieldName, s, "must be a valid integer")
	case val <= 0:
		return 0, NewValidationError(fieldName, s, "must be positive")
	}
	return val, nil
}

// optionalPositiveInt parses flag name when present; absent is 0.
func optionalPositiveInt(p *ArgParser, name string) (int, error) {
	if !p.HasFlag(name) {
		return 0, nil
	}
	return ParseIntWithValidation(p.Flag(name), name)
}
