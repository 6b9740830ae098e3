// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/jeranaias/yolokit/internal/util"
)

// CheckName rejects names that would escape the runs directory.
func CheckName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// RunDir returns the run directory of a model.
func (m *Manager) RunDir(name string) string {
	return filepath.Join(m.cfg.Paths.RunsDir, name)
}

// WeightsPath returns the conventional best weights path of a model.
func (m *Manager) WeightsPath(name string) string {
	return filepath.Join(m.RunDir(name), "weights", "best.pt")
}

// ResolveWeights picks the weights for a request: an explicit path first,
// then the named model, then the legacy single-run location when no name is
// given. The result always exists.
func (m *Manager) ResolveWeights(req Request) (string, error) {
	if req.WeightsPath != "" {
		if !util.FileExists(req.WeightsPath) {
			return "", fmt.Errorf("%w: %s", ErrWeightsNotFound, req.WeightsPath)
		}
		return req.WeightsPath, nil
	}

	if req.Name == "" {
		legacy := m.cfg.Paths.LegacyWeights
		if legacy != "" && util.FileExists(legacy) {
			return legacy, nil
		}
		return "", ErrNameRequired
	}

	if err := CheckName(req.Name); err != nil {
		return "", err
	}
	path := m.WeightsPath(req.Name)
	if !util.FileExists(path) {
		return "", fmt.Errorf("%w: %s", ErrWeightsNotFound, path)
	}
	return path, nil
}

// checkBase verifies that base weights given as a path exist. Bare names like
// "yolov8n.pt" are resolved by the framework.
func checkBase(base string) error {
	if filepath.Base(base) == base {
		return nil
	}
	if !util.FileExists(base) {
		return fmt.Errorf("%w: base %s", ErrWeightsNotFound, base)
	}
	return nil
}

// Fingerprint returns the hex BLAKE2b-256 digest of a weights file.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Info describes a model in the runs directory.
type Info struct {
	Name       string    `json:"name"`
	Weights    string    `json:"weights"`
	HasWeights bool      `json:"has_weights"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
}

// List returns the models in the runs directory sorted by name. A missing
// runs directory is an empty list.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.cfg.Paths.RunsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info := Info{Name: e.Name(), Weights: m.WeightsPath(e.Name())}
		if st, err := os.Stat(info.Weights); err == nil && st.Mode().IsRegular() {
			info.HasWeights = true
			info.Size = st.Size()
			info.ModTime = st.ModTime()
		} else if st, err := e.Info(); err == nil {
			info.ModTime = st.ModTime()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
