// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dataset

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/yolokit/internal/util"
)

// TileName returns the file name of tile idx cut from imagePath.
func TileName(imagePath string, idx int) string {
	base := filepath.Base(imagePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_split_%d%s", stem, idx, ext)
}

// Split cuts an image into a grid of floor(sqrt(parts)) tiles per side and
// writes them to outDir in row-major order. Edge pixels that do not divide
// evenly are dropped. The written paths are returned.
func Split(imagePath string, parts int, outDir string) ([]string, error) {
	if parts < 1 {
		return nil, fmt.Errorf("parts must be at least 1, got %d", parts)
	}
	perSide := int(math.Sqrt(float64(parts)))

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	src, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", imagePath, err)
	}

	bounds := src.Bounds()
	tileW := bounds.Dx() / perSide
	tileH := bounds.Dy() / perSide
	if tileW == 0 || tileH == 0 {
		return nil, fmt.Errorf("image %dx%d is too small for %d tiles per side", bounds.Dx(), bounds.Dy(), perSide)
	}

	var written []string
	idx := 0
	for ty := 0; ty < perSide; ty++ {
		for tx := 0; tx < perSide; tx++ {
			tile := image.NewRGBA(image.Rect(0, 0, tileW, tileH))
			origin := image.Pt(bounds.Min.X+tx*tileW, bounds.Min.Y+ty*tileH)
			draw.Draw(tile, tile.Bounds(), src, origin, draw.Src)

			data, err := encode(tile, format)
			if err != nil {
				return written, err
			}
			out := filepath.Join(outDir, TileName(imagePath, idx))
			if err := util.AtomicWriteFile(out, data, 0644); err != nil {
				return written, err
			}
			written = append(written, out)
			idx++
		}
	}
	return written, nil
}

func encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}
	return buf.Bytes(), nil
}
