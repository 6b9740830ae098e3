// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package report summarizes the per-epoch results.csv the detection
// framework writes into a run directory.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ResultsFile is the name of the per-epoch metrics file in a run directory.
const ResultsFile = "results.csv"

// Metric columns written by the framework for box detection.
const (
	MetricMAP5095   = "metrics/mAP50-95(B)"
	MetricMAP50     = "metrics/mAP50(B)"
	MetricPrecision = "metrics/precision(B)"
	MetricRecall    = "metrics/recall(B)"
)

// ErrNoEpochs is returned for a results file without data rows.
var ErrNoEpochs = errors.New("results file has no epochs")

// Epoch is one row of results.csv.
type Epoch struct {
	Epoch  int                `json:"epoch"`
	Values map[string]float64 `json:"values"`
}

// Report is a parsed results file.
type Report struct {
	Path    string   `json:"path"`
	Columns []string `json:"columns"`
	Epochs  []Epoch  `json:"-"`
	Final   Epoch    `json:"final"`
	Best    Epoch    `json:"best"`
	// BestBy is the column that selected Best.
	BestBy string `json:"best_by"`
}

// Load parses the results file at path.
func Load(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.Path = path
	return r, nil
}

// ResultsPath returns the results file of a run directory.
func ResultsPath(runDir string) string {
	return filepath.Join(runDir, ResultsFile)
}

// Parse reads results.csv. Header names are trimmed, since older framework
// versions pad them to a fixed width. Unparsable cells are skipped.
func Parse(r io.Reader) (*Report, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoEpochs
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
	}

	rep := &Report{Columns: cols}
	row := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row+1, err)
		}
		row++

		ep := Epoch{Epoch: row, Values: make(map[string]float64, len(cols))}
		for i, cell := range rec {
			if i >= len(cols) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				continue
			}
			if cols[i] == "epoch" {
				ep.Epoch = int(v)
				continue
			}
			ep.Values[cols[i]] = v
		}
		rep.Epochs = append(rep.Epochs, ep)
	}
	if len(rep.Epochs) == 0 {
		return nil, ErrNoEpochs
	}

	rep.Final = rep.Epochs[len(rep.Epochs)-1]
	rep.BestBy = rep.bestColumn()
	rep.Best = rep.Final
	if rep.BestBy != "" {
		for _, ep := range rep.Epochs {
			if v, ok := ep.Values[rep.BestBy]; ok && v > rep.Best.Values[rep.BestBy] {
				rep.Best = ep
			}
		}
	}
	return rep, nil
}

// bestColumn picks mAP50-95, then mAP50; "" when neither is present.
func (r *Report) bestColumn() string {
	for _, c := range []string{MetricMAP5095, MetricMAP50} {
		for _, col := range r.Columns {
			if col == c {
				return c
			}
		}
	}
	return ""
}

// ShortName drops the "metrics/" prefix and the "(B)" box suffix.
func ShortName(column string) string {
	return strings.TrimSuffix(strings.TrimPrefix(column, "metrics/"), "(B)")
}

// keys returns the value columns of an epoch: metrics first, then losses,
// then everything else, each group sorted.
func keys(ep Epoch) []string {
	out := make([]string, 0, len(ep.Values))
	for k := range ep.Values {
		out = append(out, k)
	}
	rank := func(k string) int {
		switch {
		case strings.HasPrefix(k, "metrics/"):
			return 0
		case strings.Contains(k, "loss"):
			return 1
		default:
			return 2
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// Markdown renders the report for a terminal markdown renderer.
func (r *Report) Markdown(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Training report: %s\n\n", name)
	fmt.Fprintf(&b, "%d epochs, results from `%s`\n\n", len(r.Epochs), r.Path)

	fmt.Fprintf(&b, "## Final epoch (%d)\n\n", r.Final.Epoch)
	writeTable(&b, r.Final, false)

	if r.BestBy != "" {
		fmt.Fprintf(&b, "\n## Best epoch (%d) by %s\n\n", r.Best.Epoch, ShortName(r.BestBy))
		writeTable(&b, r.Best, true)
		if r.Best.Epoch != r.Final.Epoch {
			fmt.Fprintf(&b, "\nThe final epoch is %.4f below the best %s.\n",
				r.Best.Values[r.BestBy]-r.Final.Values[r.BestBy], ShortName(r.BestBy))
		}
	}
	return b.String()
}

func writeTable(b *strings.Builder, ep Epoch, metricsOnly bool) {
	b.WriteString("| value | |\n|---|---:|\n")
	for _, k := range keys(ep) {
		if metricsOnly && !strings.HasPrefix(k, "metrics/") {
			continue
		}
		fmt.Fprintf(b, "| %s | %.4f |\n", ShortName(k), ep.Values[k])
	}
}
