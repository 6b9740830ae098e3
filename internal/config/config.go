// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for yolokit.
//
// Configuration file locations (in order of precedence):
//   - the path given with --config
//   - ./yolokit.toml
//   - ~/.yolokit/config.toml
//   - ~/.yolokit/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/yolokit/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete yolokit configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Python is the interpreter that has the detection framework installed.
	Python string `toml:"python" json:"python"`

	Paths     PathsConfig       `toml:"paths" json:"paths"`
	Datasets  map[string]string `toml:"datasets" json:"datasets"`
	Train     TrainConfig       `toml:"train" json:"train"`
	Predict   PredictConfig     `toml:"predict" json:"predict"`
	Watch     WatchConfig       `toml:"watch" json:"watch"`
	Installer InstallerConfig   `toml:"installer" json:"installer"`
}

// PathsConfig holds the on-disk conventions shared with the consuming process.
type PathsConfig struct {
	// RunsDir is the framework project directory; weights live in
	// <runs_dir>/<model>/weights/best.pt.
	RunsDir string `toml:"runs_dir" json:"runs_dir"`

	// LegacyWeights is the unnamed-run fallback weights path.
	LegacyWeights string `toml:"legacy_weights" json:"legacy_weights"`

	CommunicationDir string `toml:"communication_dir" json:"communication_dir"`
	Screenshot       string `toml:"screenshot" json:"screenshot"`
	OutputFile       string `toml:"output_file" json:"output_file"`

	// PerModelOutput writes <communication_dir>/<model>/<output_file>
	// instead of one shared file.
	PerModelOutput bool `toml:"per_model_output" json:"per_model_output"`

	HistoryDB string `toml:"history_db" json:"history_db"`
}

// TrainConfig holds the hyperparameters forwarded to the framework's train call.
type TrainConfig struct {
	Epochs       int     `toml:"epochs" json:"epochs"`
	ImgSize      int     `toml:"imgsz" json:"imgsz"`
	Batch        int     `toml:"batch" json:"batch"`
	Optimizer    string  `toml:"optimizer" json:"optimizer"`
	LR0          float64 `toml:"lr0" json:"lr0"`
	LRF          float64 `toml:"lrf" json:"lrf"`
	Momentum     float64 `toml:"momentum" json:"momentum"`
	WeightDecay  float64 `toml:"weight_decay" json:"weight_decay"`
	WarmupEpochs float64 `toml:"warmup_epochs" json:"warmup_epochs"`
	CosLR        bool    `toml:"cos_lr" json:"cos_lr"`
	Patience     int     `toml:"patience" json:"patience"`
	Workers      int     `toml:"workers" json:"workers"`
	Device       string  `toml:"device" json:"device"`

	Augment AugmentConfig `toml:"augment" json:"augment"`

	// Extra is passed through verbatim for framework options not modelled here.
	Extra map[string]interface{} `toml:"extra" json:"extra,omitempty"`
}

// AugmentConfig holds augmentation toggles.
type AugmentConfig struct {
	HSVH      float64 `toml:"hsv_h" json:"hsv_h"`
	HSVS      float64 `toml:"hsv_s" json:"hsv_s"`
	HSVV      float64 `toml:"hsv_v" json:"hsv_v"`
	Degrees   float64 `toml:"degrees" json:"degrees"`
	Translate float64 `toml:"translate" json:"translate"`
	Scale     float64 `toml:"scale" json:"scale"`
	FlipUD    float64 `toml:"flipud" json:"flipud"`
	FlipLR    float64 `toml:"fliplr" json:"fliplr"`
	Mosaic    float64 `toml:"mosaic" json:"mosaic"`
	Mixup     float64 `toml:"mixup" json:"mixup"`
}

// PredictConfig holds inference settings.
type PredictConfig struct {
	Conf    float64 `toml:"conf" json:"conf"`
	IoU     float64 `toml:"iou" json:"iou"`
	ImgSize int     `toml:"imgsz" json:"imgsz"`
	MaxDet  int     `toml:"max_det" json:"max_det"`
	Device  string  `toml:"device" json:"device"`

	// DigitsModel is the model used by the number reading operation.
	DigitsModel string `toml:"digits_model" json:"digits_model"`

	Extra map[string]interface{} `toml:"extra" json:"extra,omitempty"`
}

// WatchConfig controls continuous prediction.
type WatchConfig struct {
	DebounceMS   int     `toml:"debounce_ms" json:"debounce_ms"`
	MaxPerSecond float64 `toml:"max_per_second" json:"max_per_second"`

	// Listen is the websocket address detections are broadcast on; empty
	// disables broadcasting.
	Listen string `toml:"listen" json:"listen"`
}

// InstallerConfig controls the PyTorch installer.
type InstallerConfig struct {
	Packages  []string `toml:"packages" json:"packages"`
	IndexBase string   `toml:"index_base" json:"index_base"`
	MinFreeGB int      `toml:"min_free_gb" json:"min_free_gb"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// DefaultDatasetKey is the dataset used when --dataset_type is empty.
const DefaultDatasetKey = "default"

// Default returns the default configuration.
func Default() *Config {
	python := "python3"
	if runtime.GOOS == "windows" {
		python = "python"
	}

	return &Config{
		Version: "1",
		Python:  python,
		Paths: PathsConfig{
			RunsDir:          filepath.Join("runs", "detect"),
			LegacyWeights:    filepath.Join("runs", "train", "exp", "weights", "best.pt"),
			CommunicationDir: "Communication",
			Screenshot:       "screenshot.png",
			OutputFile:       "data.json",
			PerModelOutput:   true,
			HistoryDB:        filepath.Join("runs", "yolokit.db"),
		},
		Datasets: map[string]string{
			DefaultDatasetKey: filepath.Join("dataset", "data.yaml"),
			"buildings":       filepath.Join("dataset_buildings", "data.yaml"),
			"level":           filepath.Join("dataset_level", "data.yaml"),
		},
		Train: TrainConfig{
			Epochs:       100,
			ImgSize:      640,
			Batch:        16,
			Optimizer:    "auto",
			LR0:          0.01,
			LRF:          0.01,
			Momentum:     0.937,
			WeightDecay:  0.0005,
			WarmupEpochs: 3,
			Patience:     50,
			Workers:      8,
			Augment: AugmentConfig{
				HSVH:      0.015,
				HSVS:      0.7,
				HSVV:      0.4,
				Translate: 0.1,
				Scale:     0.5,
				FlipLR:    0.5,
				Mosaic:    1.0,
			},
		},
		Predict: PredictConfig{
			Conf:        0.25,
			IoU:         0.7,
			ImgSize:     640,
			MaxDet:      300,
			DigitsModel: "zahlen",
		},
		Watch: WatchConfig{
			DebounceMS:   200,
			MaxPerSecond: 2,
		},
		Installer: InstallerConfig{
			Packages:  []string{"torch", "torchvision", "torchaudio"},
			IndexBase: "https://download.pytorch.org/whl",
			MinFreeGB: 6,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// LocalConfigName is the project-local config file looked up in the working
// directory before the user config.
const LocalConfigName = "yolokit.toml"

// ConfigDir returns the yolokit configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".yolokit"), nil
}

// ConfigPathTOML returns the path to the user TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the user JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// candidatePaths returns the config files to try, most specific first.
func candidatePaths() []string {
	paths := []string{LocalConfigName}
	if p, err := ConfigPathTOML(); err == nil {
		paths = append(paths, p)
	}
	if p, err := ConfigPathJSON(); err == nil {
		paths = append(paths, p)
	}
	return paths
}

// ActivePath returns the config file Load would read, or "" when only
// defaults apply.
func ActivePath() string {
	for _, p := range candidatePaths() {
		if util.FileExists(p) {
			return p
		}
	}
	return ""
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the first config file found, falling back to
// defaults. A .env file in the working directory is loaded into the process
// environment first, then YOLOKIT_* overrides are applied.
func Load() (*Config, error) {
	if path := ActivePath(); path != "" {
		return LoadFromPath(path)
	}

	loadDotEnv()
	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	loadDotEnv()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep the
// values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// loadDotEnv loads ./.env without overriding variables already set.
func loadDotEnv() {
	if util.FileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the user TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file atomically.
func SaveTOML(cfg *Config, path string) error {
	data, err := cfg.TOML()
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// TOML renders the configuration as a commented TOML document.
func (c *Config) TOML() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# yolokit configuration file")
	fmt.Fprintln(&buf, "# Keys under [train.extra] and [predict.extra] are passed to the framework unchanged.")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if strings.TrimSpace(c.Python) == "" {
		errs = append(errs, ValidationError{Field: "python", Message: "must not be empty"})
	}
	if c.Paths.RunsDir == "" {
		errs = append(errs, ValidationError{Field: "paths.runs_dir", Message: "must not be empty"})
	}
	if c.Paths.CommunicationDir == "" {
		errs = append(errs, ValidationError{Field: "paths.communication_dir", Message: "must not be empty"})
	}
	if c.Paths.OutputFile == "" || filepath.Base(c.Paths.OutputFile) != c.Paths.OutputFile {
		errs = append(errs, ValidationError{
			Field:   "paths.output_file",
			Message: fmt.Sprintf("must be a bare file name, got %q", c.Paths.OutputFile),
		})
	}

	if c.Train.Epochs < 1 {
		errs = append(errs, ValidationError{
			Field:   "train.epochs",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Train.Epochs),
		})
	}
	if c.Train.ImgSize < 32 || c.Train.ImgSize%32 != 0 {
		errs = append(errs, ValidationError{
			Field:   "train.imgsz",
			Message: fmt.Sprintf("must be a positive multiple of 32, got %d", c.Train.ImgSize),
		})
	}
	// -1 asks the framework to pick a batch size from free memory.
	if c.Train.Batch == 0 || c.Train.Batch < -1 {
		errs = append(errs, ValidationError{
			Field:   "train.batch",
			Message: fmt.Sprintf("must be positive or -1 for auto, got %d", c.Train.Batch),
		})
	}
	validOptimizers := map[string]bool{
		"auto": true, "sgd": true, "adam": true, "adamw": true,
		"nadam": true, "radam": true, "rmsprop": true, "adamax": true,
	}
	if !validOptimizers[strings.ToLower(c.Train.Optimizer)] {
		errs = append(errs, ValidationError{
			Field:   "train.optimizer",
			Message: fmt.Sprintf("unknown optimizer '%s'", c.Train.Optimizer),
		})
	}
	if c.Train.LR0 <= 0 {
		errs = append(errs, ValidationError{Field: "train.lr0", Message: "must be positive"})
	}

	if c.Predict.Conf < 0 || c.Predict.Conf > 1 {
		errs = append(errs, ValidationError{Field: "predict.conf", Message: "must be between 0.0 and 1.0"})
	}
	if c.Predict.IoU < 0 || c.Predict.IoU > 1 {
		errs = append(errs, ValidationError{Field: "predict.iou", Message: "must be between 0.0 and 1.0"})
	}
	if c.Predict.ImgSize < 32 || c.Predict.ImgSize%32 != 0 {
		errs = append(errs, ValidationError{
			Field:   "predict.imgsz",
			Message: fmt.Sprintf("must be a positive multiple of 32, got %d", c.Predict.ImgSize),
		})
	}

	if c.Watch.DebounceMS < 0 {
		errs = append(errs, ValidationError{Field: "watch.debounce_ms", Message: "must be non-negative"})
	}
	if c.Watch.MaxPerSecond <= 0 {
		errs = append(errs, ValidationError{Field: "watch.max_per_second", Message: "must be positive"})
	}

	if len(c.Installer.Packages) == 0 {
		errs = append(errs, ValidationError{Field: "installer.packages", Message: "must list at least one package"})
	}
	if !strings.HasPrefix(c.Installer.IndexBase, "http://") && !strings.HasPrefix(c.Installer.IndexBase, "https://") {
		errs = append(errs, ValidationError{
			Field:   "installer.index_base",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", c.Installer.IndexBase),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero-valued fields that have no meaningful zero value.
// Numeric hyperparameters where zero is valid (degrees, mixup) are left alone.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Python == "" {
		c.Python = defaults.Python
	}

	if c.Paths.RunsDir == "" {
		c.Paths.RunsDir = defaults.Paths.RunsDir
	}
	if c.Paths.LegacyWeights == "" {
		c.Paths.LegacyWeights = defaults.Paths.LegacyWeights
	}
	if c.Paths.CommunicationDir == "" {
		c.Paths.CommunicationDir = defaults.Paths.CommunicationDir
	}
	if c.Paths.Screenshot == "" {
		c.Paths.Screenshot = defaults.Paths.Screenshot
	}
	if c.Paths.OutputFile == "" {
		c.Paths.OutputFile = defaults.Paths.OutputFile
	}
	if c.Paths.HistoryDB == "" {
		c.Paths.HistoryDB = defaults.Paths.HistoryDB
	}

	if c.Datasets == nil {
		c.Datasets = make(map[string]string)
	}
	if c.Datasets[DefaultDatasetKey] == "" {
		c.Datasets[DefaultDatasetKey] = defaults.Datasets[DefaultDatasetKey]
	}

	if c.Train.Epochs == 0 {
		c.Train.Epochs = defaults.Train.Epochs
	}
	if c.Train.ImgSize == 0 {
		c.Train.ImgSize = defaults.Train.ImgSize
	}
	if c.Train.Batch == 0 {
		c.Train.Batch = defaults.Train.Batch
	}
	if c.Train.Optimizer == "" {
		c.Train.Optimizer = defaults.Train.Optimizer
	}
	if c.Train.LR0 == 0 {
		c.Train.LR0 = defaults.Train.LR0
	}

	if c.Predict.ImgSize == 0 {
		c.Predict.ImgSize = defaults.Predict.ImgSize
	}
	if c.Predict.MaxDet == 0 {
		c.Predict.MaxDet = defaults.Predict.MaxDet
	}
	if c.Predict.DigitsModel == "" {
		c.Predict.DigitsModel = defaults.Predict.DigitsModel
	}

	if c.Watch.MaxPerSecond == 0 {
		c.Watch.MaxPerSecond = defaults.Watch.MaxPerSecond
	}

	if len(c.Installer.Packages) == 0 {
		c.Installer.Packages = defaults.Installer.Packages
	}
	if c.Installer.IndexBase == "" {
		c.Installer.IndexBase = defaults.Installer.IndexBase
	}
	if c.Installer.MinFreeGB == 0 {
		c.Installer.MinFreeGB = defaults.Installer.MinFreeGB
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - YOLOKIT_PYTHON: overrides python
//   - YOLOKIT_RUNS_DIR: overrides paths.runs_dir
//   - YOLOKIT_COMM_DIR: overrides paths.communication_dir
//   - YOLOKIT_DEVICE: overrides train.device and predict.device
//   - YOLOKIT_DEFAULT_DATASET: overrides datasets.default
//   - YOLOKIT_WATCH_LISTEN: overrides watch.listen
func (c *Config) ApplyEnvOverrides() {
	if python := os.Getenv("YOLOKIT_PYTHON"); python != "" {
		c.Python = python
	}
	if dir := os.Getenv("YOLOKIT_RUNS_DIR"); dir != "" {
		c.Paths.RunsDir = dir
	}
	if dir := os.Getenv("YOLOKIT_COMM_DIR"); dir != "" {
		c.Paths.CommunicationDir = dir
	}
	if device := os.Getenv("YOLOKIT_DEVICE"); device != "" {
		c.Train.Device = device
		c.Predict.Device = device
	}
	if ds := os.Getenv("YOLOKIT_DEFAULT_DATASET"); ds != "" {
		if c.Datasets == nil {
			c.Datasets = make(map[string]string)
		}
		c.Datasets[DefaultDatasetKey] = ds
	}
	if listen := os.Getenv("YOLOKIT_WATCH_LISTEN"); listen != "" {
		c.Watch.Listen = listen
	}
}

// =============================================================================
// PATH RESOLUTION
// =============================================================================

// DatasetPath resolves a --dataset_type selector to a data.yaml path. An
// empty selector picks the default dataset; a selector that is not a
// configured key is treated as a path.
func (c *Config) DatasetPath(selector string) string {
	if selector == "" {
		selector = DefaultDatasetKey
	}
	if p, ok := c.Datasets[selector]; ok {
		return p
	}
	return selector
}

// ScreenshotPath returns the default input image.
func (c *Config) ScreenshotPath() string {
	return filepath.Join(c.Paths.CommunicationDir, c.Paths.Screenshot)
}

// OutputPath returns where detections for model are written.
func (c *Config) OutputPath(model string) string {
	if c.Paths.PerModelOutput && model != "" {
		return filepath.Join(c.Paths.CommunicationDir, model, c.Paths.OutputFile)
	}
	return filepath.Join(c.Paths.CommunicationDir, c.Paths.OutputFile)
}

// =============================================================================
// FRAMEWORK ARGUMENTS
// =============================================================================

// TrainOptions returns the keyword arguments for the framework train call.
// Extra keys override modelled ones.
func (c *Config) TrainOptions() map[string]interface{} {
	t := c.Train
	opts := map[string]interface{}{
		"imgsz":         t.ImgSize,
		"batch":         t.Batch,
		"optimizer":     t.Optimizer,
		"lr0":           t.LR0,
		"lrf":           t.LRF,
		"momentum":      t.Momentum,
		"weight_decay":  t.WeightDecay,
		"warmup_epochs": t.WarmupEpochs,
		"cos_lr":        t.CosLR,
		"patience":      t.Patience,
		"workers":       t.Workers,
		"hsv_h":         t.Augment.HSVH,
		"hsv_s":         t.Augment.HSVS,
		"hsv_v":         t.Augment.HSVV,
		"degrees":       t.Augment.Degrees,
		"translate":     t.Augment.Translate,
		"scale":         t.Augment.Scale,
		"flipud":        t.Augment.FlipUD,
		"fliplr":        t.Augment.FlipLR,
		"mosaic":        t.Augment.Mosaic,
		"mixup":         t.Augment.Mixup,
	}
	if t.Device != "" {
		opts["device"] = t.Device
	}
	for k, v := range t.Extra {
		opts[k] = v
	}
	return opts
}

// PredictOptions returns the keyword arguments for the framework predict call.
func (c *Config) PredictOptions() map[string]interface{} {
	p := c.Predict
	opts := map[string]interface{}{
		"conf":    p.Conf,
		"iou":     p.IoU,
		"imgsz":   p.ImgSize,
		"max_det": p.MaxDet,
	}
	if p.Device != "" {
		opts["device"] = p.Device
	}
	for k, v := range p.Extra {
		opts[k] = v
	}
	return opts
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "train.batch").
// Map sections take the key as the last element ("datasets.buildings").
func (c *Config) Get(key string) (interface{}, error) {
	if key == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		if v.Kind() == reflect.Map {
			if i != len(parts)-1 {
				return nil, fmt.Errorf("invalid key: %s", key)
			}
			val := v.MapIndex(reflect.ValueOf(part))
			if !val.IsValid() {
				return nil, fmt.Errorf("unknown key: %s", key)
			}
			return val.Interface(), nil
		}

		field := findField(v, part)
		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct && field.Kind() != reflect.Map {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "predict.conf").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	if key == "" {
		return errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		if v.Kind() == reflect.Map {
			if i != len(parts)-1 {
				return fmt.Errorf("invalid key: %s", key)
			}
			if v.IsNil() {
				v.Set(reflect.MakeMap(v.Type()))
			}
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setFieldValue(elem, value); err != nil {
				return err
			}
			v.SetMapIndex(reflect.ValueOf(part), elem)
			return nil
		}

		field := findField(v, part)
		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct && field.Kind() != reflect.Map {
			return fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}

	return fmt.Errorf("invalid key: %s", key)
}

// findField matches a key part against the toml tag first, then the Go name.
func findField(v reflect.Value, part string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == part {
			return v.Field(i)
		}
	}
	fieldName := normalizeFieldName(part)
	return v.FieldByNameFunc(func(name string) bool {
		return strings.EqualFold(name, fieldName)
	})
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				items := strings.Split(strVal, ",")
				for i := range items {
					items[i] = strings.TrimSpace(items[i])
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		case reflect.Interface:
			field.Set(reflect.ValueOf(parseScalar(strVal)))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// parseScalar turns a string from the command line into the most specific
// scalar for free-form extra options.
func parseScalar(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all scalar configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	sort.Strings(keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("toml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		name := prefix + tag
		switch f.Type.Kind() {
		case reflect.Struct:
			collectKeys(f.Type, name+".", keys)
		case reflect.Map:
			*keys = append(*keys, name+".<key>")
		default:
			*keys = append(*keys, name)
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.Datasets = make(map[string]string, len(c.Datasets))
	for k, v := range c.Datasets {
		clone.Datasets[k] = v
	}
	clone.Train.Extra = cloneMap(c.Train.Extra)
	clone.Predict.Extra = cloneMap(c.Predict.Extra)
	clone.Installer.Packages = append([]string(nil), c.Installer.Packages...)

	return &clone
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
	globalConfigPath string
)

// UsePath makes Global and ReloadGlobal read the given file instead of
// searching. It must be called before the first Global call to take effect.
func UsePath(path string) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfigPath = path
}

func loadGlobal() (*Config, error) {
	globalConfigMu.RLock()
	path := globalConfigPath
	globalConfigMu.RUnlock()

	if path != "" {
		return LoadFromPath(path)
	}
	return Load()
}

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := loadGlobal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := loadGlobal()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigPath = ""
	globalConfigOnce = sync.Once{}
}
