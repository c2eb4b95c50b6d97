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
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressCountStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#20B9B4")).
				Bold(true)
	progressLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0"))
	progressDoneStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#2CD7C7")).
				Bold(true)
)

// Progress prints one line per completed grid point, e.g.
//
//	[2/4] svm + step-up (3-fold htune)
//
// It writes plain lines suitable for logs and CI; there is no cursor
// movement or redraw.
type Progress struct {
	w     io.Writer
	total int
	done  int
}

// NewProgress creates a reporter for total grid points writing to w.
func NewProgress(w io.Writer, total int) *Progress {
	return &Progress{w: w, total: total}
}

// Advance marks one more point complete and prints its description.
func (p *Progress) Advance(desc string) {
	p.done++
	count := progressCountStyle.Render(fmt.Sprintf("[%d/%d]", p.done, p.total))
	fmt.Fprintf(p.w, "%s %s\n", count, progressLabelStyle.Render(desc))
}

// Done returns how many points have completed.
func (p *Progress) Done() int {
	return p.done
}

// Finish prints the closing summary line.
func (p *Progress) Finish() {
	fmt.Fprintln(p.w, progressDoneStyle.Render(
		fmt.Sprintf("completed %d of %d grid points", p.done, p.total)))
}
