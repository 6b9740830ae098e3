// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detect provides GPU detection utilities for yolokit.
//
// Detection shells out to the vendor diagnostic tools and parses their text
// output; nothing here talks to a driver directly.
//
// NVIDIA GPUs are found with nvidia-smi, which also reports the CUDA version
// the PyTorch wheels must match. Apple Silicon is found with system_profiler
// and trains on the "mps" device.
package detect

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// detectTimeout bounds a detection when the caller's context has no deadline.
const detectTimeout = 10 * time.Second

// withDefaultTimeout applies detectTimeout to deadline-free contexts.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, detectTimeout)
}

// GpuType is the accelerator family training can use.
type GpuType int

const (
	GpuTypeCPU GpuType = iota
	GpuTypeNvidia
	GpuTypeAppleSilicon
)

var gpuTypeNames = [...]string{
	GpuTypeCPU:          "CPU",
	GpuTypeNvidia:       "NVIDIA",
	GpuTypeAppleSilicon: "Apple Silicon",
}

func (t GpuType) String() string {
	if t < 0 || int(t) >= len(gpuTypeNames) {
		return "Unknown"
	}
	return gpuTypeNames[t]
}

// Device returns the framework device string for this GPU type.
func (t GpuType) Device() string {
	switch t {
	case GpuTypeNvidia:
		return "0"
	case GpuTypeAppleSilicon:
		return "mps"
	default:
		return "cpu"
	}
}

// GpuInfo describes the accelerator found on this machine.
// VramGB is unified memory on Apple Silicon. CUDAVersion is the highest CUDA
// runtime the driver supports ("12.8").
type GpuInfo struct {
	Name        string  `json:"name"`
	VramGB      uint32  `json:"vram_gb"`
	Driver      string  `json:"driver,omitempty"`
	CUDAVersion string  `json:"cuda_version,omitempty"`
	Type        GpuType `json:"-"`
}

// String formats g as "name (12GB VRAM) [Driver: x] [CUDA: y]".
func (g *GpuInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%dGB VRAM)", g.Name, g.VramGB)
	for _, kv := range [][2]string{{"Driver", g.Driver}, {"CUDA", g.CUDAVersion}} {
		if kv[1] != "" {
			fmt.Fprintf(&sb, " [%s: %s]", kv[0], kv[1])
		}
	}
	return sb.String()
}

// commandRunner runs an external command and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// runCommand is replaced in tests.
var runCommand commandRunner = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// cache holds the last detection; doctor, gpu and create all ask for it.
var cache struct {
	sync.Mutex
	info *GpuInfo
	at   time.Time
	ttl  time.Duration
}

func init() { cache.ttl = 5 * time.Minute }

// DetectGPU checks NVIDIA first, then Apple Silicon, and reports a CPU-only
// GpuInfo when neither is present.
func DetectGPU() (*GpuInfo, error) {
	return DetectGPUWithContext(context.Background())
}

// DetectGPUWithContext is DetectGPU bounded by ctx, or by detectTimeout
// when ctx has no deadline.
func DetectGPUWithContext(ctx context.Context) (*GpuInfo, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	for _, probe := range []func(context.Context) *GpuInfo{detectNvidiaWithContext, DetectAppleSiliconWithContext} {
		if info := probe(ctx); info != nil {
			return info, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gpu detection: %w", err)
	}
	return &GpuInfo{Name: "CPU Only", Type: GpuTypeCPU}, nil
}

// DetectGPUCached returns a detection at most cache.ttl old.
func DetectGPUCached() (*GpuInfo, error) {
	cache.Lock()
	defer cache.Unlock()

	if cache.info != nil && time.Since(cache.at) < cache.ttl {
		return cache.info, nil
	}
	info, err := DetectGPU()
	if err != nil {
		return nil, err
	}
	cache.info, cache.at = info, time.Now()
	return info, nil
}

// ClearGPUCache forgets the cached detection.
func ClearGPUCache() {
	cache.Lock()
	cache.info, cache.at = nil, time.Time{}
	cache.Unlock()
}

// cudaVersionRegex matches the banner line of plain `nvidia-smi` output, e.g.
// "| NVIDIA-SMI 570.86.10   Driver Version: 570.86.10   CUDA Version: 12.8 |".
var cudaVersionRegex = regexp.MustCompile(`CUDA Version: (\d+\.\d+)`)

// ParseCUDAVersion extracts the CUDA version from nvidia-smi output.
// Returns "" when the text carries no version.
func ParseCUDAVersion(output string) string {
	m := cudaVersionRegex.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}

// IndexTag converts a CUDA version to the PyTorch wheel index tag:
// "12.8" becomes "cu128". Returns "" for an empty version.
func IndexTag(cudaVersion string) string {
	if cudaVersion == "" {
		return ""
	}
	return "cu" + strings.ReplaceAll(cudaVersion, ".", "")
}

// ParseNvidiaQuery parses the first line of
// `nvidia-smi --query-gpu=name,memory.total,driver_version --format=csv,noheader,nounits`.
func ParseNvidiaQuery(output string) (*GpuInfo, error) {
	line := strings.TrimSpace(strings.Split(strings.TrimSpace(output), "\n")[0])
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return nil, fmt.Errorf("unexpected nvidia-smi output: %q", line)
	}

	name := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(name, "NVIDIA") {
		name = "NVIDIA " + name
	}

	// Memory is in MiB.
	vramMB, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("unexpected memory value %q: %w", parts[1], err)
	}

	return &GpuInfo{
		Name:   name,
		VramGB: uint32(vramMB/1024.0 + 0.5),
		Driver: strings.TrimSpace(parts[2]),
		Type:   GpuTypeNvidia,
	}, nil
}

// detectNvidiaWithContext returns nil when no nvidia-smi answers the query.
func detectNvidiaWithContext(ctx context.Context) *GpuInfo {
	var info *GpuInfo
	var smi string
	for _, path := range getNvidiaSmiPaths() {
		out, err := runCommand(ctx, path,
			"--query-gpu=name,memory.total,driver_version",
			"--format=csv,noheader,nounits")
		if err == nil && len(out) > 0 {
			info, smi = parseQueryOrNil(string(out)), path
			break
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	if info == nil {
		return nil
	}

	// The query interface has no CUDA field; the banner does.
	if banner, err := runCommand(ctx, smi); err == nil {
		info.CUDAVersion = ParseCUDAVersion(string(banner))
	}

	return info
}

func parseQueryOrNil(out string) *GpuInfo {
	info, err := ParseNvidiaQuery(out)
	if err != nil {
		return nil
	}
	return info
}

// DetectCUDAVersion runs plain nvidia-smi and returns the CUDA version it
// reports. An error means nvidia-smi could not be run; an empty version with a
// nil error means it ran but reported no CUDA version.
func DetectCUDAVersion(ctx context.Context) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	var lastErr error
	for _, path := range getNvidiaSmiPaths() {
		output, err := runCommand(ctx, path)
		if err == nil {
			return ParseCUDAVersion(string(output)), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("nvidia-smi: %w", lastErr)
}

// getNvidiaSmiPaths lists where nvidia-smi may live. Windows drivers do not
// always put it on PATH.
func getNvidiaSmiPaths() []string {
	paths := []string{"nvidia-smi"}
	if runtime.GOOS == "windows" {
		paths = append(paths,
			`C:\Windows\System32\nvidia-smi.exe`,
			`C:\Program Files\NVIDIA Corporation\NVSMI\nvidia-smi.exe`)
	}
	return paths
}

// GetNvidiaSmiPath returns the first nvidia-smi that exists, or "".
func GetNvidiaSmiPath() string {
	for _, path := range getNvidiaSmiPaths() {
		if filepath.IsAbs(path) {
			if _, err := os.Stat(path); err == nil {
				return path
			}
			continue
		}
		if found, err := exec.LookPath(path); err == nil {
			return found
		}
	}
	return ""
}

// appleChipRegex finds the chip in system_profiler output, e.g. "Apple M3 Max".
var appleChipRegex = regexp.MustCompile(`Apple (M\d+(?: Pro| Max| Ultra)?)`)

// DetectAppleSiliconWithContext detects Apple Silicon on macOS.
// Returns nil elsewhere or when no Apple chip is reported.
func DetectAppleSiliconWithContext(ctx context.Context) *GpuInfo {
	if runtime.GOOS != "darwin" {
		return nil
	}

	output, err := runCommand(ctx, "system_profiler", "SPDisplaysDataType", "-json")
	if err != nil || !strings.Contains(string(output), "Apple") {
		return nil
	}

	name := "Apple Silicon"
	if m := appleChipRegex.FindStringSubmatch(string(output)); m != nil {
		name = "Apple " + m[1]
	}

	// Unified memory is shared with the GPU; report all of it.
	vramGB := uint32(8)
	if out, err := runCommand(ctx, "sysctl", "-n", "hw.memsize"); err == nil {
		if bytes, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64); err == nil {
			vramGB = uint32(bytes >> 30)
		}
	}
	return &GpuInfo{Name: name, VramGB: vramGB, Type: GpuTypeAppleSilicon}
}

// DiagnoseCPUFallback returns reasons why no GPU was detected.
func DiagnoseCPUFallback(gpu *GpuInfo) []string {
	warnings := []string{}
	if gpu != nil && gpu.Type != GpuTypeCPU {
		return warnings
	}

	switch {
	case GetNvidiaSmiPath() != "":
		warnings = append(warnings, "NVIDIA: nvidia-smi is installed but reported no usable GPU")
	case runtime.GOOS == "windows":
		warnings = append(warnings, "NVIDIA: nvidia-smi not found - NVIDIA drivers may not be installed")
	default:
		warnings = append(warnings, "NVIDIA: nvidia-smi not in PATH - NVIDIA drivers may not be installed")
	}
	if runtime.GOOS == "darwin" && runtime.GOARCH != "arm64" {
		warnings = append(warnings, "Apple: Intel Macs have no MPS device - training will run on the CPU")
	}
	return warnings
}
