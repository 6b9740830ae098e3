// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - Command suggestion for typo correction.
package cli

import (
	"strings"
)

// validCommands are the names SuggestCommand may propose.
var validCommands = []string{
	"create",
	"train",
	"continue",
	"val",
	"predict",
	"digits",
	"delete",
	"list",
	"watch",
	"report",
	"history",
	"dataset",
	"filter",
	"gpu",
	"install-torch",
	"doctor",
	"config",
	"version",
	"help",
	// aliases
	"continue-train",
	"validate",
	"testvals",
	"zahl-erkennen",
	"delete-model",
	"models",
}

// SuggestCommand returns the command input was probably meant to be, or "".
func SuggestCommand(input string) string {
	return suggest(strings.ToLower(input), validCommands)
}

// SuggestFlag returns the legacy operation flag closest to input, with its
// dashes, or "" when none is close. "_" and "-" spellings are equal.
func SuggestFlag(input string) string {
	name := normalizeFlag(strings.ToLower(input))
	flags := make([]string, 0, len(legacyOps))
	for _, op := range legacyOps {
		flags = append(flags, op.flag)
	}
	if match := suggest(name, flags); match != "" {
		return "--" + match
	}
	return ""
}

// maxEdits is how far a typo may be from a candidate: one edit up to three
// runes, two up to eight ("trian" -> "train"), three beyond
// ("zahl-erkenen" -> "zahl-erkennen").
func maxEdits(n int) int {
	switch {
	case n <= 3:
		return 1
	case n <= 8:
		return 2
	}
	return 3
}

// suggest returns the closest candidate within maxEdits, "" for exact
// matches and inputs shorter than two runes.
func suggest(input string, candidates []string) string {
	n := len([]rune(input))
	if n < 2 {
		return ""
	}
	best, bestDist := "", maxEdits(n)+1
	for _, c := range candidates {
		d := levenshteinDistance(input, c)
		if d == 0 {
			return ""
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// levenshteinDistance is the rune edit distance between a and b.
func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			next := min3(row[j]+1, row[j-1]+1, diag+cost)
			diag, row[j] = row[j], next
		}
	}
	return row[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
