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
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/tabgrid/pkg/logging"
	"github.com/AleutianAI/tabgrid/services/analyze/config"
	"github.com/AleutianAI/tabgrid/services/analyze/dirs"
	"github.com/AleutianAI/tabgrid/services/analyze/memo"
	"github.com/AleutianAI/tabgrid/services/analyze/persist"
	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

func quietLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger := logging.New(logging.Config{Quiet: true})
	t.Cleanup(func() { logger.Close() })
	return logger
}

// testProgram builds a 2x2 grid: estimators {knn, svm} crossed with
// selection methods {none, step-up}.
func testProgram(t *testing.T) config.ProgramKey {
	t.Helper()
	cleaning, err := config.NewCleaningKey("/data/heart.csv", "chd", nil, config.NaNNone)
	if err != nil {
		t.Fatalf("NewCleaningKey: %v", err)
	}
	selection, err := config.NewSelectionKey(cleaning, config.ModeClassify,
		[]config.Classifier{config.ClassifierSVM, config.ClassifierKNN}, nil,
		[]config.SelectionMethod{config.SelectNone, config.SelectStepUp}, 10)
	if err != nil {
		t.Fatalf("NewSelectionKey: %v", err)
	}
	program, err := config.NewProgramKey(selection, false, config.ValKFold, 3, 100,
		config.ValKFold, []config.Size{5}, "", config.VerbosityInfo)
	if err != nil {
		t.Fatalf("NewProgramKey: %v", err)
	}
	return program
}

func testRunner(t *testing.T, opts ...RunnerOption) (*Runner, *dirs.ProgramDirs) {
	t.Helper()
	logger := quietLogger(t)
	d := dirs.NewProvisioner(logger).Materialize(t.TempDir(), false)
	if d.InMemory() {
		t.Fatal("materialize degraded in test setup")
	}
	p := persist.NewPersister(d, logger, &strings.Builder{})
	opts = append([]RunnerOption{
		WithLogger(logger),
		WithProgressWriter(&strings.Builder{}),
		WithClock(func() time.Time {
			return time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
		}),
	}, opts...)
	return NewRunner(p, opts...), d
}

// pointResult returns a one-row table tagged with the point identity.
func pointResult(point Point, mae float64) *table.Table {
	tbl := table.New("model", "mae")
	tbl.AppendRow(point.Estimator+"/"+string(point.Selection), mae)
	return tbl
}

func TestExpand_CrossProduct(t *testing.T) {
	points := Expand(testProgram(t))
	if len(points) != 4 {
		t.Fatalf("got %d points, want 4", len(points))
	}

	// normalized sets give a fixed lexicographic order
	want := []struct {
		est    string
		method config.SelectionMethod
	}{
		{"knn", config.SelectNone},
		{"knn", config.SelectStepUp},
		{"svm", config.SelectNone},
		{"svm", config.SelectStepUp},
	}
	for i, w := range want {
		if points[i].Estimator != w.est || points[i].Selection != w.method {
			t.Errorf("point %d = (%s, %s), want (%s, %s)",
				i, points[i].Estimator, points[i].Selection, w.est, w.method)
		}
	}
}

func TestPoint_DigestIgnoresPresentationFields(t *testing.T) {
	program := testProgram(t)
	moved, err := config.NewProgramKey(program.Selection, program.Htune,
		program.HtuneVal, program.HtuneValSize, program.HtuneTrials,
		program.TestVal, program.TestValSizes, "/elsewhere", config.VerbosityDebug)
	if err != nil {
		t.Fatalf("NewProgramKey: %v", err)
	}

	a := Point{Estimator: "svm", Selection: config.SelectNone, Program: program}
	b := Point{Estimator: "svm", Selection: config.SelectNone, Program: moved}
	if a.Digest() != b.Digest() {
		t.Error("out_dir/verbosity changed the point digest")
	}

	c := Point{Estimator: "knn", Selection: config.SelectNone, Program: program}
	if a.Digest() == c.Digest() {
		t.Error("different estimators share a digest")
	}
}

func TestRun_PersistsInterimAndFinal(t *testing.T) {
	r, d := testRunner(t)

	calls := 0
	sorted, err := r.Run(context.Background(), testProgram(t),
		func(_ context.Context, point Point) (*table.Table, error) {
			calls++
			return pointResult(point, float64(calls)), nil
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 4 {
		t.Errorf("analyze called %d times, want 4", calls)
	}
	if sorted.Len() != 4 {
		t.Errorf("aggregate has %d rows, want 4", sorted.Len())
	}

	entries, err := os.ReadDir(d.Results)
	if err != nil {
		t.Fatalf("read results dir: %v", err)
	}
	var interim, final int
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if strings.Contains(e.Name(), "knn-svm") {
			final++
		} else {
			interim++
		}
	}
	if interim != 4 {
		t.Errorf("got %d interim artifacts, want 4", interim)
	}
	if final != 1 {
		t.Errorf("got %d final artifacts, want 1", final)
	}
}

func TestRun_SortsAggregateByErrorColumn(t *testing.T) {
	r, _ := testRunner(t)

	maes := map[string]float64{"knn": 2.0, "svm": 1.0}
	sorted, err := r.Run(context.Background(), testProgram(t),
		func(_ context.Context, point Point) (*table.Table, error) {
			return pointResult(point, maes[point.Estimator]), nil
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	first, _ := sorted.Rows[0][0].(string)
	if !strings.HasPrefix(first, "svm") {
		t.Errorf("first row = %v, want an svm row (lowest mae)", sorted.Rows[0])
	}
}

func TestRun_InterimSurvivesInterruption(t *testing.T) {
	r, d := testRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := r.Run(ctx, testProgram(t),
		func(_ context.Context, point Point) (*table.Table, error) {
			calls++
			if calls == 2 {
				cancel() // takes effect before the third point starts
			}
			return pointResult(point, 1.0), nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if calls != 2 {
		t.Errorf("analyze called %d times, want 2", calls)
	}

	entries, readErr := os.ReadDir(d.Results)
	if readErr != nil {
		t.Fatalf("read results dir: %v", readErr)
	}
	var interim int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			if strings.Contains(e.Name(), "knn-svm") {
				t.Errorf("final artifact %s exists after interruption", e.Name())
			} else {
				interim++
			}
		}
	}
	if interim != 2 {
		t.Errorf("got %d interim artifacts, want exactly 2", interim)
	}
}

func TestRun_MemoizationSkipsAnalysis(t *testing.T) {
	store, err := memo.Open(memo.InMemoryConfig())
	if err != nil {
		t.Fatalf("memo.Open: %v", err)
	}
	defer store.Close()

	r, _ := testRunner(t, WithMemoStore(store))
	program := testProgram(t)

	calls := 0
	analyze := func(_ context.Context, point Point) (*table.Table, error) {
		calls++
		return pointResult(point, 1.0), nil
	}

	if _, err := r.Run(context.Background(), program, analyze); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if calls != 4 {
		t.Fatalf("first run called analyze %d times, want 4", calls)
	}

	result, err := r.Run(context.Background(), program, analyze)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if calls != 4 {
		t.Errorf("second run called analyze %d more times, want 0", calls-4)
	}
	if result.Len() != 4 {
		t.Errorf("memoized aggregate has %d rows, want 4", result.Len())
	}
}

func TestRun_PointFailureDoesNotAbort(t *testing.T) {
	r, _ := testRunner(t)

	sorted, err := r.Run(context.Background(), testProgram(t),
		func(_ context.Context, point Point) (*table.Table, error) {
			if point.Estimator == "knn" && point.Selection == config.SelectStepUp {
				return nil, errors.New("estimator blew up")
			}
			return pointResult(point, 1.0), nil
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sorted.Len() != 3 {
		t.Errorf("aggregate has %d rows, want 3 (one failed point)", sorted.Len())
	}
}

func TestRun_InMemoryMode(t *testing.T) {
	logger := quietLogger(t)
	p := persist.NewPersister(&dirs.ProgramDirs{}, logger, &strings.Builder{})
	r := NewRunner(p,
		WithLogger(logger),
		WithProgressWriter(&strings.Builder{}))

	sorted, err := r.Run(context.Background(), testProgram(t),
		func(_ context.Context, point Point) (*table.Table, error) {
			return pointResult(point, 1.0), nil
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sorted.Len() != 4 {
		t.Errorf("aggregate has %d rows, want 4", sorted.Len())
	}
}
