// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
)

// =============================================================================
// GPU TYPE TESTS
// =============================================================================

func TestGpuType_String(t *testing.T) {
	tests := []struct {
		gpuType GpuType
		want    string
		device  string
	}{
		{GpuTypeCPU, "CPU", "cpu"},
		{GpuTypeNvidia, "NVIDIA", "0"},
		{GpuTypeAppleSilicon, "Apple Silicon", "mps"},
		{GpuType(99), "Unknown", "cpu"},
	}

	for _, tc := range tests {
		if got := tc.gpuType.String(); got != tc.want {
			t.Errorf("GpuType(%d).String() = %q, want %q", tc.gpuType, got, tc.want)
		}
		if got := tc.gpuType.Device(); got != tc.device {
			t.Errorf("GpuType(%d).Device() = %q, want %q", tc.gpuType, got, tc.device)
		}
	}
}

func TestGpuInfo_String(t *testing.T) {
	tests := []struct {
		info *GpuInfo
		want string
	}{
		{
			&GpuInfo{Name: "NVIDIA GeForce RTX 4070", VramGB: 12, Type: GpuTypeNvidia},
			"NVIDIA GeForce RTX 4070 (12GB VRAM)",
		},
		{
			&GpuInfo{Name: "NVIDIA GeForce RTX 4070", VramGB: 12, Driver: "570.86.10", CUDAVersion: "12.8", Type: GpuTypeNvidia},
			"NVIDIA GeForce RTX 4070 (12GB VRAM) [Driver: 570.86.10] [CUDA: 12.8]",
		},
	}

	for _, tc := range tests {
		if got := tc.info.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

// =============================================================================
// NVIDIA-SMI PARSING TESTS
// =============================================================================

const smiBanner = `Mon Oct 19 10:12:01 2026
+-----------------------------------------------------------------------------------------+
| NVIDIA-SMI 570.86.10              Driver Version: 570.86.10      CUDA Version: 12.8     |
|-----------------------------------------+------------------------+----------------------+
`

func TestParseCUDAVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"banner", smiBanner, "12.8"},
		{"inline", "CUDA Version: 11.7", "11.7"},
		{"no version", "NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver.", ""},
		{"empty", "", ""},
		{"major only", "CUDA Version: 12", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseCUDAVersion(tc.output); got != tc.want {
				t.Errorf("ParseCUDAVersion() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIndexTag(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"12.8", "cu128"},
		{"11.8", "cu118"},
		{"12.1", "cu121"},
		{"", ""},
	}

	for _, tc := range tests {
		if got := IndexTag(tc.version); got != tc.want {
			t.Errorf("IndexTag(%q) = %q, want %q", tc.version, got, tc.want)
		}
	}
}

func TestParseNvidiaQuery(t *testing.T) {
	info, err := ParseNvidiaQuery("NVIDIA GeForce RTX 4070, 12282, 570.86.10\nNVIDIA GeForce GTX 1080, 8192, 570.86.10\n")
	if err != nil {
		t.Fatalf("ParseNvidiaQuery failed: %v", err)
	}
	if info.Name != "NVIDIA GeForce RTX 4070" {
		t.Errorf("Name = %q", info.Name)
	}
	if info.VramGB != 12 {
		t.Errorf("VramGB = %d, want 12", info.VramGB)
	}
	if info.Driver != "570.86.10" {
		t.Errorf("Driver = %q", info.Driver)
	}

	info, err = ParseNvidiaQuery("Tesla T4, 15360, 535.104.05")
	if err != nil {
		t.Fatalf("ParseNvidiaQuery failed: %v", err)
	}
	if info.Name != "NVIDIA Tesla T4" || info.VramGB != 15 {
		t.Errorf("Unexpected info: %+v", info)
	}

	for _, bad := range []string{"", "garbage", "RTX, lots, 1"} {
		if _, err := ParseNvidiaQuery(bad); err == nil {
			t.Errorf("ParseNvidiaQuery(%q) should fail", bad)
		}
	}
}

// fakeRunner returns canned output per argument shape.
func fakeRunner(query, banner string, err error) commandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if err != nil {
			return nil, err
		}
		if !strings.Contains(name, "nvidia-smi") {
			return nil, errors.New("not found")
		}
		if len(args) == 0 {
			return []byte(banner), nil
		}
		return []byte(query), nil
	}
}

func withRunner(t *testing.T, r commandRunner) {
	t.Helper()
	orig := runCommand
	runCommand = r
	ClearGPUCache()
	t.Cleanup(func() {
		runCommand = orig
		ClearGPUCache()
	})
}

func TestDetectGPU_Nvidia(t *testing.T) {
	withRunner(t, fakeRunner("NVIDIA GeForce RTX 3060, 12288, 550.54.14", smiBanner, nil))

	info, err := DetectGPU()
	if err != nil {
		t.Fatalf("DetectGPU failed: %v", err)
	}
	if info.Type != GpuTypeNvidia {
		t.Fatalf("Type = %v, want NVIDIA", info.Type)
	}
	if info.CUDAVersion != "12.8" {
		t.Errorf("CUDAVersion = %q, want 12.8", info.CUDAVersion)
	}
}

func TestDetectGPU_CPUFallback(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("system_profiler may report Apple Silicon")
	}
	withRunner(t, fakeRunner("", "", errors.New("exec: \"nvidia-smi\": executable file not found")))

	info, err := DetectGPU()
	if err != nil {
		t.Fatalf("DetectGPU failed: %v", err)
	}
	if info.Type != GpuTypeCPU {
		t.Errorf("Type = %v, want CPU", info.Type)
	}
}

func TestDetectCUDAVersion(t *testing.T) {
	withRunner(t, fakeRunner("", smiBanner, nil))
	v, err := DetectCUDAVersion(context.Background())
	if err != nil || v != "12.8" {
		t.Fatalf("DetectCUDAVersion = %q, %v", v, err)
	}

	withRunner(t, fakeRunner("", "", errors.New("not found")))
	if _, err := DetectCUDAVersion(context.Background()); err == nil {
		t.Fatal("Expected error when nvidia-smi is missing")
	}

	withRunner(t, fakeRunner("", "No devices were found", nil))
	v, err = DetectCUDAVersion(context.Background())
	if err != nil || v != "" {
		t.Fatalf("Expected empty version without error, got %q, %v", v, err)
	}
}

func TestDetectGPUCached(t *testing.T) {
	calls := 0
	withRunner(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls++
		if len(args) == 0 {
			return []byte(smiBanner), nil
		}
		return []byte("NVIDIA A100, 40960, 535.0"), nil
	})

	first, err := DetectGPUCached()
	if err != nil {
		t.Fatal(err)
	}
	before := calls
	second, err := DetectGPUCached()
	if err != nil {
		t.Fatal(err)
	}
	if first != second || calls != before {
		t.Error("Second call should be served from cache")
	}
}

// =============================================================================
// RECOMMENDATION TESTS
// =============================================================================

func TestRecommend(t *testing.T) {
	tests := []struct {
		name    string
		gpu     *GpuInfo
		weights string
		device  string
	}{
		{"nil", nil, "yolov8n.pt", "cpu"},
		{"cpu", &GpuInfo{Type: GpuTypeCPU}, "yolov8n.pt", "cpu"},
		{"apple", &GpuInfo{Type: GpuTypeAppleSilicon, VramGB: 16}, "yolov8s.pt", "mps"},
		{"2GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 2}, "yolov8n.pt", "0"},
		{"6GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 6}, "yolov8s.pt", "0"},
		{"12GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 12}, "yolov8l.pt", "0"},
		{"24GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 24}, "yolov8x.pt", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := Recommend(tc.gpu)
			if rec.BaseWeights != tc.weights {
				t.Errorf("BaseWeights = %q, want %q", rec.BaseWeights, tc.weights)
			}
			if rec.Device != tc.device {
				t.Errorf("Device = %q, want %q", rec.Device, tc.device)
			}
			if rec.Batch < 2 || rec.Batch > 64 {
				t.Errorf("Batch %d out of range", rec.Batch)
			}
		})
	}
}

func TestBatchFor(t *testing.T) {
	tests := []struct {
		weights string
		vram    int
		want    int
	}{
		{"yolov8m.pt", 10, 16},
		{"yolov8n.pt", 24, 64},
		{"yolov8x.pt", 8, 8},
		{"yolov8x.pt", 1, 2},
		{"custom.pt", 7, 16},
	}

	for _, tc := range tests {
		if got := BatchFor(tc.weights, tc.vram); got != tc.want {
			t.Errorf("BatchFor(%q, %d) = %d, want %d", tc.weights, tc.vram, got, tc.want)
		}
	}
}

func TestWeightsScale(t *testing.T) {
	tests := map[string]string{
		"yolov8n.pt":                 "n",
		"yolo11m.pt":                 "m",
		"yolov5x6.pt":                "x",
		"/models/base/YOLOv8s.pt":    "s",
		"runs/detect/a/weights/b.pt": "",
		"best.pt":                    "",
	}
	for in, want := range tests {
		if got := WeightsScale(in); got != want {
			t.Errorf("WeightsScale(%q) = %q, want %q", in, got, want)
		}
	}
}
