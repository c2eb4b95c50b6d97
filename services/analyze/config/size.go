// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"math"
	"strconv"
)

// Size is a validation-set size: either a fraction of the samples in
// (0, 1) or an absolute count greater than 1. A Size is stored as a
// float64; integral values above 1 are counts.
type Size float64

// ParseSize validates a raw size string.
//
// Accepted values:
//   - a fraction strictly between 0 and 1, e.g. "0.2"
//   - an integer count greater than 1, e.g. "5"
//
// NaN, nonpositive values, exactly 1, and non-integral values above 1
// are rejected with ErrInvalidSize.
func ParseSize(s string) (Size, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidSize, s)
	}
	return NewSize(v)
}

// NewSize validates a numeric size value.
func NewSize(v float64) (Size, error) {
	switch {
	case math.IsNaN(v):
		return 0, fmt.Errorf("%w: NaN", ErrInvalidSize)
	case v <= 0:
		return 0, fmt.Errorf("%w: %v is not positive", ErrInvalidSize, v)
	case v == 1:
		return 0, fmt.Errorf("%w: 1 is neither a fraction nor a count", ErrInvalidSize)
	case v > 1 && v != math.Trunc(v):
		return 0, fmt.Errorf("%w: %v is above 1 but not an integer count", ErrInvalidSize, v)
	}
	return Size(v), nil
}

// IsCount reports whether the size is an absolute count (e.g. a fold
// count) rather than a fraction.
func (s Size) IsCount() bool {
	return s > 1
}

// Count returns the size as an integer count. Only meaningful when
// IsCount reports true.
func (s Size) Count() int {
	return int(s)
}

// String renders the canonical form: counts without a decimal point,
// fractions with the shortest representation that round-trips.
func (s Size) String() string {
	if s.IsCount() {
		return strconv.Itoa(s.Count())
	}
	return strconv.FormatFloat(float64(s), 'g', -1, 64)
}
