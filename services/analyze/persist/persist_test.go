// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/tabgrid/pkg/logging"
	"github.com/AleutianAI/tabgrid/services/analyze/config"
	"github.com/AleutianAI/tabgrid/services/analyze/dirs"
	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

func testDirs(t *testing.T) *dirs.ProgramDirs {
	t.Helper()
	logger := logging.New(logging.Config{Quiet: true})
	t.Cleanup(func() { logger.Close() })

	d := dirs.NewProvisioner(logger).Materialize(t.TempDir(), false)
	if d.InMemory() {
		t.Fatal("materialize degraded in test setup")
	}
	return d
}

func testPersister(t *testing.T, d *dirs.ProgramDirs, fallback *strings.Builder) *Persister {
	t.Helper()
	logger := logging.New(logging.Config{Quiet: true})
	t.Cleanup(func() { logger.Close() })
	return NewPersister(d, logger, fallback)
}

func sampleTable() *table.Table {
	tbl := table.New("model", "mae")
	tbl.AppendRow("svm", 1.5)
	return tbl
}

func TestSave_InvalidFileType(t *testing.T) {
	p := testPersister(t, testDirs(t), &strings.Builder{})

	_, err := p.Save(Artifact{Table: sampleTable(), FileStem: "x", FileType: "weekly"})
	if !errors.Is(err, ErrInvalidFileType) {
		t.Errorf("got %v, want ErrInvalidFileType", err)
	}
}

func TestSave_InMemoryNoOp(t *testing.T) {
	var fallback strings.Builder
	p := testPersister(t, &dirs.ProgramDirs{}, &fallback)

	report, err := p.Save(Artifact{Table: sampleTable(), FileStem: "x", FileType: Interim})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !report.InMemory {
		t.Error("report.InMemory = false in in-memory mode")
	}
	if report.Persisted() {
		t.Error("Persisted() = true in in-memory mode")
	}
	if fallback.Len() != 0 {
		t.Error("in-memory no-op still wrote to the fallback")
	}
}

func TestSave_WritesBothFormats(t *testing.T) {
	d := testDirs(t)
	p := testPersister(t, d, &strings.Builder{})

	report, err := p.Save(Artifact{Table: sampleTable(), FileStem: "run1", FileType: Interim})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !report.Persisted() {
		t.Fatalf("not persisted: json err %v, csv err %v", report.JSON.Err, report.CSV.Err)
	}

	wantJSON := filepath.Join(d.Results, "run1.json")
	wantCSV := filepath.Join(d.Results, "run1.csv")
	if report.JSON.Path != wantJSON {
		t.Errorf("json path = %q, want %q", report.JSON.Path, wantJSON)
	}
	for _, path := range []string{wantJSON, wantCSV} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing artifact %s: %v", path, err)
		}
	}
}

func TestSave_RoutesByFileType(t *testing.T) {
	d := testDirs(t)
	p := testPersister(t, d, &strings.Builder{})

	tests := []struct {
		name     string
		artifact Artifact
		wantDir  string
	}{
		{
			"final under results",
			Artifact{Table: sampleTable(), FileStem: "agg", FileType: Final},
			d.Results,
		},
		{
			"univariate under inspection",
			Artifact{Table: sampleTable(), FileStem: "uni", FileType: Univariate},
			d.Inspection,
		},
		{
			"feature under per-configuration subdir",
			Artifact{
				Table: sampleTable(), FileStem: "feats", FileType: Feature,
				Selection: config.SelectPCA,
				Cleaning:  []config.CleaningStep{config.CleanConstant, config.CleanCorrelated},
			},
			filepath.Join(d.Selection, "pca-selection_cleaning=constant-correlated", "json"),
		},
		{
			"params with no selection",
			Artifact{Table: sampleTable(), FileStem: "params", FileType: Params},
			filepath.Join(d.Selection, "no-selection", "json"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := p.Save(tt.artifact)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if got := filepath.Dir(report.JSON.Path); got != tt.wantDir {
				t.Errorf("json dir = %q, want %q", got, tt.wantDir)
			}
			if _, err := os.Stat(report.JSON.Path); err != nil {
				t.Errorf("missing artifact: %v", err)
			}
		})
	}
}

func TestSave_JSONFailureIsIsolated(t *testing.T) {
	d := testDirs(t)
	var fallback strings.Builder
	p := testPersister(t, d, &fallback)

	// NaN is not representable in JSON, so the structured write fails
	// while the delimited write still succeeds
	tbl := table.New("model", "mae")
	tbl.AppendRow("svm", math.NaN())

	report, err := p.Save(Artifact{Table: tbl, FileStem: "nan", FileType: Interim})
	if err != nil {
		t.Fatalf("Save returned an error for a format failure: %v", err)
	}
	if report.JSON.Err == nil {
		t.Error("JSON write of NaN succeeded unexpectedly")
	}
	if report.CSV.Err != nil {
		t.Errorf("CSV write failed alongside JSON: %v", report.CSV.Err)
	}
	if !report.Persisted() {
		t.Error("Persisted() = false with a successful CSV write")
	}
	if _, err := os.Stat(filepath.Join(d.Results, "nan.csv")); err != nil {
		t.Errorf("csv artifact missing: %v", err)
	}
	if !strings.Contains(fallback.String(), "svm") {
		t.Errorf("fallback rendering missing:\n%s", fallback.String())
	}
}

func TestSave_CSVFailureIsIsolated(t *testing.T) {
	d := testDirs(t)
	var fallback strings.Builder
	p := testPersister(t, d, &fallback)

	// a directory squatting on the csv filename makes the rename fail
	// for that format only
	if err := os.MkdirAll(filepath.Join(d.Results, "blocked.csv"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	report, err := p.Save(Artifact{Table: sampleTable(), FileStem: "blocked", FileType: Interim})
	if err != nil {
		t.Fatalf("Save returned an error for a format failure: %v", err)
	}
	if report.CSV.Err == nil {
		t.Error("CSV write succeeded over a blocking directory")
	}
	if report.JSON.Err != nil {
		t.Errorf("JSON write failed alongside CSV: %v", report.JSON.Err)
	}
	if fallback.Len() == 0 {
		t.Error("no fallback rendering after the CSV failure")
	}
}

func TestStemNaming(t *testing.T) {
	at := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)

	if got := InterimStem("svm", false, at); got != "results__svm__2026-08-27T10.30.00" {
		t.Errorf("InterimStem = %q", got)
	}
	if got := InterimStem("svm", true, at); got != "results__svm_step-up__2026-08-27T10.30.00" {
		t.Errorf("InterimStem with step-up = %q", got)
	}
	if got := FinalStem([]string{"knn", "svm"}, false, at); got != "results__knn-svm__2026-08-27T10.30.00" {
		t.Errorf("FinalStem = %q", got)
	}
}
