// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dataset manages YOLO datasets on disk: the data.yaml descriptor,
// labeled images split into train and val, and image tiling.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/yolokit/internal/util"
)

// ErrNoDataYAML is returned when a dataset has no data.yaml.
var ErrNoDataYAML = errors.New("data.yaml not found")

// Names maps class ids to class names. data.yaml may list names either as a
// sequence or as an id -> name mapping; both decode into Names.
type Names map[int]string

// UnmarshalYAML accepts both the sequence and the mapping form.
func (n *Names) UnmarshalYAML(node *yaml.Node) error {
	out := make(Names)
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		for i, name := range list {
			out[i] = name
		}
	case yaml.MappingNode:
		var m map[int]string
		if err := node.Decode(&m); err != nil {
			return fmt.Errorf("names: %w", err)
		}
		for k, v := range m {
			out[k] = v
		}
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			return fmt.Errorf("names: expected list or mapping, got %q", node.Value)
		}
	default:
		return fmt.Errorf("names: unsupported yaml node kind %d", node.Kind)
	}
	*n = out
	return nil
}

// IDs returns the class ids in ascending order.
func (n Names) IDs() []int {
	ids := make([]int, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// List returns the class names ordered by id.
func (n Names) List() []string {
	out := make([]string, 0, len(n))
	for _, id := range n.IDs() {
		out = append(out, n[id])
	}
	return out
}

// DataYAML is the dataset descriptor read by the detection framework.
type DataYAML struct {
	Path  string `yaml:"path,omitempty"`
	Train string `yaml:"train"`
	Val   string `yaml:"val"`
	Test  string `yaml:"test,omitempty"`
	Names Names  `yaml:"names"`
}

// Dataset is a dataset rooted at the directory holding its data.yaml.
type Dataset struct {
	// YAMLPath is the data.yaml location.
	YAMLPath string
	Data     DataYAML
}

// Root returns the dataset directory.
func (d *Dataset) Root() string {
	return filepath.Dir(d.YAMLPath)
}

// Open reads the dataset described by yamlPath.
func Open(yamlPath string) (*Dataset, error) {
	raw, err := os.ReadFile(yamlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDataYAML, yamlPath)
		}
		return nil, fmt.Errorf("failed to read %s: %w", yamlPath, err)
	}

	ds := &Dataset{YAMLPath: yamlPath}
	if err := yaml.Unmarshal(raw, &ds.Data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
	}
	if ds.Data.Names == nil {
		ds.Data.Names = make(Names)
	}
	return ds, nil
}

// Init creates a dataset with the standard layout and no classes. An existing
// data.yaml is left untouched and opened instead.
func Init(yamlPath string) (*Dataset, error) {
	if util.FileExists(yamlPath) {
		return Open(yamlPath)
	}
	ds := &Dataset{
		YAMLPath: yamlPath,
		Data: DataYAML{
			Train: "images/train",
			Val:   "images/val",
			Names: make(Names),
		},
	}
	for _, split := range Splits {
		for _, kind := range []string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(ds.Root(), kind, split), 0755); err != nil {
				return nil, fmt.Errorf("failed to create dataset layout: %w", err)
			}
		}
	}
	if err := ds.Save(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Save writes data.yaml atomically. Names are written as a mapping so ids stay
// stable when classes are appended.
func (d *Dataset) Save() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.Data); err != nil {
		return fmt.Errorf("failed to encode data.yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode data.yaml: %w", err)
	}
	return util.AtomicWriteFile(d.YAMLPath, buf.Bytes(), 0644)
}

// ClassID looks up a class by name.
func (d *Dataset) ClassID(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for id, n := range d.Data.Names {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// AddClass returns the id of name, appending it with the next free id when it
// is unknown. The second result reports whether a class was added.
func (d *Dataset) AddClass(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if id, ok := d.ClassID(name); ok {
		return id, false
	}
	next := 0
	for id := range d.Data.Names {
		if id >= next {
			next = id + 1
		}
	}
	d.Data.Names[next] = name
	return next, true
}

// Complete returns the class names starting with prefix, ordered by id.
func (d *Dataset) Complete(prefix string) []string {
	var out []string
	for _, name := range d.Data.Names.List() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}
