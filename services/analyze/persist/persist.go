// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persist writes tabular artifacts to disk in two independent
// formats.
//
// Every artifact is written as structured JSON and as flat CSV. The two
// writes are isolated: a failure in one format never prevents the
// other, never aborts the run, and always emits a fixed-width text
// rendering of the table so the operator does not lose the data. The
// only error Save returns to the caller is an invalid file type, which
// is a programming error rather than an I/O condition.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/tabgrid/pkg/logging"
	"github.com/AleutianAI/tabgrid/services/analyze/config"
	"github.com/AleutianAI/tabgrid/services/analyze/dirs"
	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

// ErrInvalidFileType is returned when an artifact carries a file type
// outside the enumerated set.
var ErrInvalidFileType = errors.New("invalid artifact file type")

// FileType routes an artifact to its place in the output tree.
type FileType string

const (
	// Interim is a per-grid-point result, persisted immediately so that
	// completed work survives an interruption.
	Interim FileType = "interim"

	// Final is the sorted aggregate over all grid points.
	Final FileType = "final"

	// Feature is a selected/cleaned feature artifact.
	Feature FileType = "feature"

	// Params is a tuned-hyperparameter artifact.
	Params FileType = "params"

	// Univariate is a per-feature inspection artifact.
	Univariate FileType = "univariate"
)

var validFileTypes = map[FileType]bool{
	Interim: true, Final: true, Feature: true, Params: true, Univariate: true,
}

// Artifact is one tabular result set plus the metadata that decides
// where it lands on disk.
type Artifact struct {
	Table    *table.Table
	FileStem string
	FileType FileType

	// Selection and Cleaning refine the target subdirectory for Feature
	// and Params artifacts so that artifacts from different pipeline
	// configurations never overwrite each other. Ignored for the other
	// file types.
	Selection config.SelectionMethod
	Cleaning  []config.CleaningStep
}

// FormatResult reports one format's write attempt. A nil Err means the
// file at Path was written.
type FormatResult struct {
	Path string
	Err  error
}

// Report is the outcome of a Save call across both formats.
type Report struct {
	JSON FormatResult
	CSV  FormatResult

	// InMemory is true when no output root exists and nothing was
	// attempted.
	InMemory bool
}

// Persisted reports whether at least one format reached disk.
func (r Report) Persisted() bool {
	return !r.InMemory && (r.JSON.Err == nil || r.CSV.Err == nil)
}

// Persister writes artifacts under a resolved directory layout.
//
// Thread Safety: Persister is immutable after construction; Save is
// only called from the single-threaded run loop.
type Persister struct {
	dirs     *dirs.ProgramDirs
	logger   *logging.Logger
	fallback io.Writer
}

// NewPersister creates a Persister. The fallback writer receives the
// text rendering when a format fails; pass nil for os.Stdout.
func NewPersister(d *dirs.ProgramDirs, logger *logging.Logger, fallback io.Writer) *Persister {
	if fallback == nil {
		fallback = os.Stdout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Persister{dirs: d, logger: logger, fallback: fallback}
}

// Save writes the artifact in both formats.
//
// Behavior:
//   - in-memory mode: a silent no-op, reported via Report.InMemory
//   - an unknown FileType returns ErrInvalidFileType before any write
//   - each format is attempted independently; failures are logged,
//     recorded in the Report, and followed by a text rendering on the
//     fallback writer
func (p *Persister) Save(artifact Artifact) (Report, error) {
	if !validFileTypes[artifact.FileType] {
		return Report{}, fmt.Errorf("%w: %q", ErrInvalidFileType, artifact.FileType)
	}
	if p.dirs.InMemory() {
		return Report{InMemory: true}, nil
	}

	jsonPath, csvPath, err := p.targetPaths(artifact)
	if err != nil {
		// directory creation failure is an I/O degradation, not a
		// caller error: render the data and move on
		p.logger.Warn("could not create artifact directory, emitting text rendering instead",
			"file_stem", artifact.FileStem, "error", err)
		p.renderFallback(artifact.Table)
		return Report{
			JSON: FormatResult{Err: err},
			CSV:  FormatResult{Err: err},
		}, nil
	}

	var report Report
	report.JSON = FormatResult{Path: jsonPath, Err: p.writeJSON(jsonPath, artifact.Table)}
	if report.JSON.Err != nil {
		p.logger.Warn("failed to save structured results",
			"path", jsonPath, "error", report.JSON.Err)
		p.renderFallback(artifact.Table)
	} else {
		p.logger.Info("saved results", "path", jsonPath)
	}

	report.CSV = FormatResult{Path: csvPath, Err: p.writeCSV(csvPath, artifact.Table)}
	if report.CSV.Err != nil {
		p.logger.Warn("failed to save delimited results",
			"path", csvPath, "error", report.CSV.Err)
		p.renderFallback(artifact.Table)
	} else {
		p.logger.Info("saved results", "path", csvPath)
	}

	return report, nil
}

// targetPaths computes and creates the directories for both formats.
//
// Interim and Final artifacts land directly under results/, Univariate
// under inspection/. Feature and Params artifacts get a subdirectory
// per (selection method, cleaning steps) combination with json/ and
// csv/ beneath it.
func (p *Persister) targetPaths(artifact Artifact) (jsonPath, csvPath string, err error) {
	var jsonDir, csvDir string
	switch artifact.FileType {
	case Interim, Final:
		jsonDir, csvDir = p.dirs.Results, p.dirs.Results
	case Univariate:
		jsonDir, csvDir = p.dirs.Inspection, p.dirs.Inspection
	case Feature, Params:
		base := filepath.Join(p.dirs.Selection, stageDirName(artifact.Selection, artifact.Cleaning))
		jsonDir = filepath.Join(base, "json")
		csvDir = filepath.Join(base, "csv")
	}
	for _, dir := range []string{jsonDir, csvDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", err
		}
	}
	return filepath.Join(jsonDir, artifact.FileStem+".json"),
		filepath.Join(csvDir, artifact.FileStem+".csv"), nil
}

// stageDirName builds the per-configuration subdirectory, e.g.
// "pca-selection_cleaning=constant-correlated" or "no-selection".
func stageDirName(selection config.SelectionMethod, cleaning []config.CleaningStep) string {
	name := "no-selection"
	if selection != "" && selection != config.SelectNone {
		name = string(selection) + "-selection"
	}
	if len(cleaning) > 0 {
		steps := make([]string, len(cleaning))
		for i, s := range cleaning {
			steps[i] = string(s)
		}
		name += "_cleaning=" + strings.Join(steps, "-")
	}
	return name
}

// writeJSON writes the structured form atomically (temp then rename),
// so a crash mid-write never leaves a truncated artifact.
func (p *Persister) writeJSON(path string, t *table.Table) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}
	return atomicWrite(path, data)
}

func (p *Persister) writeCSV(path string, t *table.Table) error {
	var b strings.Builder
	if err := t.WriteCSV(&b); err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	return atomicWrite(path, []byte(b.String()))
}

func (p *Persister) renderFallback(t *table.Table) {
	if err := t.Render(p.fallback); err != nil {
		p.logger.Error("fallback rendering failed", "error", err)
	}
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// InterimStem names a per-grid-point artifact, unique per (estimator,
// step-up marker, timestamp) so rapid successive writes cannot collide.
func InterimStem(estimator string, stepUp bool, now time.Time) string {
	return "results__" + estimator + stepUpMarker(stepUp) + "__" + now.Format(stampLayout)
}

// FinalStem names the aggregate artifact, encoding the estimator set.
func FinalStem(estimators []string, stepUp bool, now time.Time) string {
	return "results__" + strings.Join(estimators, "-") + stepUpMarker(stepUp) + "__" + now.Format(stampLayout)
}

// stampLayout keeps timestamps filename-safe on every platform.
const stampLayout = "2006-01-02T15.04.05"

func stepUpMarker(stepUp bool) string {
	if stepUp {
		return "_step-up"
	}
	return ""
}
