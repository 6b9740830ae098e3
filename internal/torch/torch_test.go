// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package torch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanFromOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		wantTag  string
		wantURL  string
		wantArgs []string
	}{
		{
			name:     "cuda 12.8",
			output:   "| NVIDIA-SMI 570.86.10   Driver Version: 570.86.10   CUDA Version: 12.8 |",
			wantTag:  "cu128",
			wantURL:  "https://download.pytorch.org/whl/cu128",
			wantArgs: []string{"-m", "pip", "install", "torch", "torchvision", "torchaudio", "--index-url", "https://download.pytorch.org/whl/cu128"},
		},
		{
			name:     "cuda 11.8",
			output:   "CUDA Version: 11.8",
			wantTag:  "cu118",
			wantURL:  "https://download.pytorch.org/whl/cu118",
			wantArgs: []string{"-m", "pip", "install", "torch", "torchvision", "torchaudio", "--index-url", "https://download.pytorch.org/whl/cu118"},
		},
		{
			name:     "no match",
			output:   "command not found",
			wantArgs: []string{"-m", "pip", "install", "torch", "torchvision", "torchaudio"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanFromOutput(tt.output, Options{})
			require.Equal(t, tt.wantTag, plan.Tag)
			require.Equal(t, tt.wantURL, plan.IndexURL)
			require.Equal(t, tt.wantArgs, plan.Args())
			require.Equal(t, tt.wantTag == "", plan.CPU())
		})
	}
}

func TestPlanFor_Options(t *testing.T) {
	plan := PlanFor("12.1", Options{IndexBase: "https://mirror.example/whl/", Packages: []string{"torch"}})
	require.Equal(t, "https://mirror.example/whl/cu121", plan.IndexURL)
	require.Equal(t, []string{"py", "-m", "pip", "install", "torch", "--index-url", "https://mirror.example/whl/cu121"}, plan.Command("py"))

	cpu := PlanFor("", Options{})
	require.True(t, cpu.CPU())
	require.NotEmpty(t, cpu.Reason)
	require.Equal(t, "python -m pip install torch torchvision torchaudio", cpu.String())
}

func TestPlanFor_DoesNotAliasPackages(t *testing.T) {
	pkgs := []string{"torch"}
	plan := PlanFor("12.8", Options{Packages: pkgs})
	plan.Packages[0] = "jax"
	require.Equal(t, "torch", pkgs[0])
}

// fakePython writes a shell script standing in for the interpreter.
func fakePython(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script interpreter stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestInstall(t *testing.T) {
	python := fakePython(t, `echo "args: $@"`+"\n")
	var out bytes.Buffer

	err := Install(context.Background(), python, PlanFor("12.8", Options{}), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "args: -m pip install torch torchvision torchaudio --index-url https://download.pytorch.org/whl/cu128")
}

func TestInstall_Failure(t *testing.T) {
	python := fakePython(t, "echo 'ERROR: No matching distribution' >&2\nexit 1\n")
	var out bytes.Buffer

	err := Install(context.Background(), python, PlanFor("", Options{}), &out)
	require.True(t, errors.Is(err, ErrPipFailed), "got %v", err)
	require.Contains(t, out.String(), "No matching distribution")
}

func TestInstall_Validation(t *testing.T) {
	require.Error(t, Install(context.Background(), "", PlanFor("", Options{}), nil))
	require.Error(t, Install(context.Background(), "python", Plan{}, nil))
}

func TestParseVerifyOutput(t *testing.T) {
	v, cuda, err := parseVerifyOutput("2.7.0+cu128\nTrue\n")
	require.NoError(t, err)
	require.Equal(t, "2.7.0+cu128", v)
	require.True(t, cuda)

	_, cuda, err = parseVerifyOutput("2.7.0+cpu\nFalse")
	require.NoError(t, err)
	require.False(t, cuda)

	_, _, err = parseVerifyOutput("")
	require.Error(t, err)
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	free, err := CheckDiskSpace(dir, 0)
	require.NoError(t, err)
	require.Greater(t, free, 0.0)

	_, err = CheckDiskSpace(dir, 1<<30)
	require.ErrorIs(t, err, ErrLowDiskSpace)

	_, err = CheckDiskSpace(filepath.Join(dir, "missing"), 1)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrLowDiskSpace))
}
