// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cachekey derives deterministic cache digests from
// configuration field items.
//
// A digest is computed over a canonical rendering of sorted key=value
// pairs, so the same logical configuration always produces the same
// digest across processes and platforms. Callers can mark fields as
// ignorable (output directory, verbosity) so that presentation-only
// settings never split the cache.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Item is a single configuration field contributing to a cache digest.
type Item struct {
	Key   string
	Value string
}

// Hasher computes cache digests with a fixed set of ignored field keys.
//
// Thread Safety: Hasher is immutable after construction and safe for
// concurrent use.
type Hasher struct {
	ignore map[string]bool
}

// NewHasher creates a Hasher that skips the given field keys when
// hashing. Ignored keys apply to the exact item key, including any
// dependency prefix (so "out_dir" does not ignore "selection.out_dir").
func NewHasher(ignore ...string) *Hasher {
	m := make(map[string]bool, len(ignore))
	for _, k := range ignore {
		m[k] = true
	}
	return &Hasher{ignore: m}
}

// Hash computes the hex digest of the items, skipping ignored keys.
//
// Behavior:
//   - items are filtered, then sorted by key, then rendered one per
//     line as "key=value"
//   - the digest is SHA-256 over the rendered form
//   - input order never affects the result, and the input slice is not
//     modified
func (h *Hasher) Hash(items []Item) string {
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if !h.ignore[it.Key] {
			kept = append(kept, it)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Key < kept[j].Key })

	var b strings.Builder
	for _, it := range kept {
		b.WriteString(it.Key)
		b.WriteByte('=')
		b.WriteString(it.Value)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Hash computes a digest with no ignored fields. Shorthand for callers
// that do not need a configured Hasher.
func Hash(items []Item) string {
	return NewHasher().Hash(items)
}
