// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dirs resolves and materializes the output directory tree for
// an analysis run.
//
// # Fallback Chain
//
// Resolution tries one location after another until a writable root is
// found:
//
//  1. an explicitly requested root, which must be writable or the run
//     aborts (an explicit request is never silently redirected)
//  2. a default under the user's home directory
//  3. a default under the current working directory
//  4. a fresh temporary directory, marked for cleanup at exit
//  5. no root at all: results are held in memory and persistence
//     becomes a no-op
//
// Only step 1 can fail the run. Every later step degrades with a
// warning and continues, so a run on a locked-down host still produces
// results on stdout.
package dirs

import "errors"

var (
	// ErrRootNotWritable is returned when an explicitly requested output
	// root is not writable. Pass no root to let the fallback chain pick
	// a location automatically.
	ErrRootNotWritable = errors.New("requested output root is not writable")
)
