// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNoDigits is returned when no detection names a digit.
	ErrNoDigits = errors.New("no digits detected")
	// ErrNumberTooLong is returned by ReadNumber for more than
	// MaxNumberDigits digits.
	ErrNumberTooLong = errors.New("number has too many digits")
)

// MaxNumberDigits is the longest digit string ReadNumber converts; every
// 18-digit number fits an int64.
const MaxNumberDigits = 18

// ReadNumber is ReadDigits converted to an int.
func ReadNumber(dets []Detection) (int, error) {
	digits, err := ReadDigits(dets)
	if err != nil {
		return 0, err
	}
	if len(digits) > MaxNumberDigits {
		return 0, fmt.Errorf("%w: %d digits", ErrNumberTooLong, len(digits))
	}
	return strconv.Atoi(digits)
}

// ReadDigits reads the digits among dets left to right by the left edge of
// their boxes. Detections whose class name is not a single digit are
// ignored. Overlapping boxes closer than half a digit width keep only the
// more confident one.
func ReadDigits(dets []Detection) (string, error) {
	digits := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if digitValue(d) >= 0 {
			digits = append(digits, d)
		}
	}
	if len(digits) == 0 {
		return "", ErrNoDigits
	}

	sort.SliceStable(digits, func(i, j int) bool {
		return digits[i].BoundingBox[0] < digits[j].BoundingBox[0]
	})

	kept := []Detection{digits[0]}
	for _, d := range digits[1:] {
		last := &kept[len(kept)-1]
		if d.BoundingBox[0]-last.BoundingBox[0] < last.BoundingBox.Width()/2 {
			if d.Confidence > last.Confidence {
				*last = d
			}
			continue
		}
		kept = append(kept, d)
	}

	var sb strings.Builder
	for _, d := range kept {
		sb.WriteString(strconv.Itoa(digitValue(d)))
	}
	return sb.String(), nil
}

// digitValue returns the digit a detection names, or -1.
func digitValue(d Detection) int {
	name := strings.TrimSpace(d.ClassName)
	if len(name) == 1 && name[0] >= '0' && name[0] <= '9' {
		return int(name[0] - '0')
	}
	return -1
}
