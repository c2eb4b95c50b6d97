// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

import (
	"strings"
	"testing"
)

func TestProgress(t *testing.T) {
	var b strings.Builder
	p := NewProgress(&b, 4)

	p.Advance("knn")
	p.Advance("svm + step-up")
	if p.Done() != 2 {
		t.Errorf("Done() = %d, want 2", p.Done())
	}
	p.Finish()

	out := b.String()
	for _, want := range []string{"[1/4]", "[2/4]", "svm + step-up", "completed 2 of 4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
