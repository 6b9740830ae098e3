// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dataset

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".webp": true,
}

// SplitStats counts files in one split.
type SplitStats struct {
	Images    int `json:"images"`
	Labels    int `json:"labels"`
	Unlabeled int `json:"unlabeled"`
}

// ClassCount is the number of labeled instances of a class.
type ClassCount struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Instances int    `json:"instances"`
}

// Stats summarizes a dataset.
type Stats struct {
	Splits  map[string]SplitStats `json:"splits"`
	Classes []ClassCount          `json:"classes"`
	// Unknown counts label lines whose id is missing from data.yaml.
	Unknown int `json:"unknown"`
}

// Stats walks the images and labels directories of every split.
func (d *Dataset) Stats() (*Stats, error) {
	st := &Stats{Splits: make(map[string]SplitStats)}
	counts := make(map[int]int)

	for _, split := range Splits {
		var ss SplitStats
		imgDir := filepath.Join(d.Root(), "images", split)
		lblDir := filepath.Join(d.Root(), "labels", split)

		entries, err := os.ReadDir(imgDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			ss.Images++
			stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			lbl := filepath.Join(lblDir, stem+".txt")
			ids, err := readClassIDs(lbl)
			if err != nil {
				if os.IsNotExist(err) {
					ss.Unlabeled++
					continue
				}
				return nil, err
			}
			ss.Labels++
			for _, id := range ids {
				counts[id]++
			}
		}
		st.Splits[split] = ss
	}

	for _, id := range d.Data.Names.IDs() {
		st.Classes = append(st.Classes, ClassCount{ID: id, Name: d.Data.Names[id], Instances: counts[id]})
		delete(counts, id)
	}
	for _, n := range counts {
		st.Unknown += n
	}
	sort.SliceStable(st.Classes, func(i, j int) bool {
		return st.Classes[i].Instances > st.Classes[j].Instances
	})
	return st, nil
}

func readClassIDs(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}
