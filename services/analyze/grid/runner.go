// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grid expands a configuration into grid points and drives the
// run loop over them.
//
// Execution is strictly sequential: one point at a time, in a stable
// lexicographic order, with each point's result persisted as an
// interim artifact before the loop advances. An interrupt between
// points therefore loses nothing already computed; only the final
// aggregate is skipped. Points whose configuration digest is already
// in the memoization store are served from cache without invoking the
// analysis callable.
package grid

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/tabgrid/pkg/logging"
	"github.com/AleutianAI/tabgrid/services/analyze/cachekey"
	"github.com/AleutianAI/tabgrid/services/analyze/config"
	"github.com/AleutianAI/tabgrid/services/analyze/memo"
	"github.com/AleutianAI/tabgrid/services/analyze/persist"
	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

var tracer = otel.Tracer("tabgrid.grid")

// memoStage is the store namespace for per-point results.
const memoStage = "grid"

// Point is one concrete (estimator, selection method, configuration)
// combination, consumed exactly once per run.
type Point struct {
	Estimator string
	Selection config.SelectionMethod
	Program   config.ProgramKey
}

// StepUp reports whether the point uses step-up selection, which gets
// a marker in artifact filenames.
func (p Point) StepUp() bool {
	return p.Selection == config.SelectStepUp
}

// Digest returns the memoization digest for the point. Output
// directory and verbosity are excluded: moving results or changing log
// volume must not invalidate cached work.
func (p Point) Digest() string {
	items := append(p.Program.CacheItems(),
		cachekey.Item{Key: "estimator", Value: p.Estimator},
		cachekey.Item{Key: "selection_method", Value: string(p.Selection)},
	)
	return cachekey.NewHasher("out_dir", "verbosity").Hash(items)
}

func (p Point) describe() string {
	desc := p.Estimator
	if p.Selection != config.SelectNone {
		desc += " + " + string(p.Selection)
	}
	if p.Program.Htune {
		desc += fmt.Sprintf(" (%s htune, %d trials)", p.Program.HtuneValDesc(), p.Program.HtuneTrials)
	}
	return desc
}

// Expand produces the cross product of the program's active estimators
// and its selection methods. Both sets are already normalized (sorted,
// deduplicated) by construction, so the result order is lexicographic
// and reproducible for any input order.
func Expand(program config.ProgramKey) []Point {
	estimators := program.Selection.Estimators()
	methods := program.Selection.Methods

	points := make([]Point, 0, len(estimators)*len(methods))
	for _, est := range estimators {
		for _, method := range methods {
			points = append(points, Point{
				Estimator: est,
				Selection: method,
				Program:   program,
			})
		}
	}
	return points
}

// Analyze is the external analysis routine: given one grid point it
// returns a tabular result set (rows are trials or folds, columns are
// metrics). It blocks for the full duration of the work and may
// parallelize internally; that is opaque to the runner.
type Analyze func(ctx context.Context, point Point) (*table.Table, error)

// RunnerOption is a functional option for configuring Runner.
type RunnerOption func(*Runner)

// Runner drives the sequential run loop.
//
// Thread Safety: Runner is not safe for concurrent Run calls; the run
// loop is single-threaded by design.
type Runner struct {
	persister *persist.Persister
	store     *memo.Store
	logger    *logging.Logger
	progress  io.Writer
	now       func() time.Time
}

// NewRunner creates a Runner persisting through p.
func NewRunner(p *persist.Persister, opts ...RunnerOption) *Runner {
	r := &Runner{
		persister: p,
		progress:  os.Stdout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	return r
}

// WithMemoStore enables memoization through the given store.
func WithMemoStore(s *memo.Store) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithLogger sets the runner's logger.
func WithLogger(l *logging.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithProgressWriter redirects progress lines and the final table.
func WithProgressWriter(w io.Writer) RunnerOption {
	return func(r *Runner) { r.progress = w }
}

// WithClock overrides the timestamp source for artifact names.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// Run executes every grid point of the program in order and returns
// the sorted aggregate table.
//
// Behavior:
//   - each point's result is persisted as an Interim artifact before
//     the loop advances, so completed work survives interruption
//   - a memoized point skips the analysis callable entirely
//   - an analysis failure for one point is logged and skipped; the
//     remaining points still run
//   - cancellation is honored between points: Run returns ctx.Err()
//     and the final aggregate is not written
func (r *Runner) Run(ctx context.Context, program config.ProgramKey, analyze Analyze) (*table.Table, error) {
	points := Expand(program)
	sessionID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "grid.Run")
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("grid.points", len(points)),
	)
	defer span.End()

	r.logger.Info("starting grid run",
		"session_id", sessionID,
		"points", len(points),
		"estimators", strings.Join(program.Selection.Estimators(), ","))

	progress := NewProgress(r.progress, len(points))
	var collected []*table.Table

	for _, point := range points {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run interrupted")
			r.logger.Warn("grid run interrupted",
				"session_id", sessionID,
				"completed", progress.Done(),
				"total", len(points))
			return nil, err
		}

		result, err := r.runPoint(ctx, point, analyze)
		if err != nil {
			r.logger.Warn("grid point failed, continuing with the rest",
				"estimator", point.Estimator,
				"selection", string(point.Selection),
				"error", err)
			continue
		}
		collected = append(collected, result)
		progress.Advance(point.describe())
	}
	progress.Finish()

	aggregate, err := table.Concat(collected...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("aggregate results: %w", err)
	}
	sorted := aggregate.Sorted()

	stem := persist.FinalStem(program.Selection.Estimators(), usesStepUp(program), r.now())
	if _, err := r.persister.Save(persist.Artifact{
		Table:    sorted,
		FileStem: stem,
		FileType: persist.Final,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := sorted.Render(r.progress); err != nil {
		r.logger.Error("could not print the final table", "error", err)
	}
	span.SetStatus(codes.Ok, "")
	return sorted, nil
}

// runPoint analyzes (or recalls) one grid point and persists its
// interim artifact.
func (r *Runner) runPoint(ctx context.Context, point Point, analyze Analyze) (*table.Table, error) {
	ctx, span := tracer.Start(ctx, "grid.Point")
	span.SetAttributes(
		attribute.String("grid.estimator", point.Estimator),
		attribute.String("grid.selection", string(point.Selection)),
	)
	defer span.End()

	digest := point.Digest()
	if r.store != nil {
		cached, ok, err := r.store.Get(memoStage, digest)
		if err != nil {
			r.logger.Warn("memo lookup failed, recomputing",
				"digest", digest, "error", err)
		} else if ok {
			span.SetAttributes(attribute.Bool("grid.memoized", true))
			span.SetStatus(codes.Ok, "")
			r.logger.Info("reusing memoized result",
				"estimator", point.Estimator,
				"selection", string(point.Selection),
				"digest", digest)
			return cached, nil
		}
	}

	result, err := analyze(ctx, point)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if result == nil {
		err := fmt.Errorf("analysis returned no result for %s/%s", point.Estimator, point.Selection)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stem := persist.InterimStem(point.Estimator, point.StepUp(), r.now())
	if _, err := r.persister.Save(persist.Artifact{
		Table:    result,
		FileStem: stem,
		FileType: persist.Interim,
	}); err != nil {
		// invalid file type here is a programming error
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if r.store != nil {
		if err := r.store.Put(memoStage, digest, result); err != nil {
			r.logger.Warn("could not memoize result", "digest", digest, "error", err)
		}
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func usesStepUp(program config.ProgramKey) bool {
	for _, m := range program.Selection.Methods {
		if m == config.SelectStepUp {
			return true
		}
	}
	return false
}
