// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tabgrid runs a grid of tabular-data experiments.
//
// For every (estimator, feature-selection method) combination of the
// requested configuration it invokes the analysis routine, persists
// interim and final artifacts under the resolved output root, and
// memoizes results so identical reruns are free.
//
// Usage:
//
//	tabgrid --df data.csv --target outcome --mode classify
//	tabgrid --df data.csv --target price --mode regress --regressors linear,rf
//	tabgrid --config run.yaml
//
// Flags override values from --config, which overrides the defaults.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tabgrid/pkg/logging"
	"github.com/AleutianAI/tabgrid/services/analyze/config"
	"github.com/AleutianAI/tabgrid/services/analyze/dataset"
	"github.com/AleutianAI/tabgrid/services/analyze/dirs"
	"github.com/AleutianAI/tabgrid/services/analyze/grid"
	"github.com/AleutianAI/tabgrid/services/analyze/memo"
	"github.com/AleutianAI/tabgrid/services/analyze/persist"
	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tabgrid:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	flags := config.Defaults()

	cmd := &cobra.Command{
		Use:           "tabgrid",
		Short:         "Run a memoized grid of tabular-data experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := mergeOptions(cmd, flags, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), raw)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML file with option values")
	f.StringVar(&flags.Spreadsheet, "spreadsheet", flags.Spreadsheet, "spreadsheet data source")
	f.StringVar(&flags.DataFile, "df", flags.DataFile, "data table source (csv, json, jsonl)")
	f.StringVar(&flags.Separator, "separator", flags.Separator, "field delimiter; accepts \"tab\" and \"newline\"")
	f.StringVar(&flags.Target, "target", flags.Target, "target column name")
	f.StringVar(&flags.Mode, "mode", flags.Mode, "task mode: classify or regress")
	f.StringSliceVar(&flags.Classifiers, "classifiers", flags.Classifiers, "classifiers: svm, rf, knn, dtree, bag, mlp")
	f.StringSliceVar(&flags.Regressors, "regressors", flags.Regressors, "regressors: linear, svm, rf, knn, adaboost, gboost, mlp")
	f.StringSliceVar(&flags.FeatSelect, "feat-select", flags.FeatSelect, "selection methods: none, pca, kpca, d, auc, pearson, spearman, step-up, step-down")
	f.StringSliceVar(&flags.FeatClean, "feat-clean", flags.FeatClean, "cleaning steps: constant, correlated, lowinfo")
	f.StringVar(&flags.DropNaN, "drop-nan", flags.DropNaN, "missing-value policy: none, all, rows, cols")
	f.IntVar(&flags.NFeatures, "n-feat", flags.NFeatures, "number of features to retain")
	f.BoolVar(&flags.Htune, "htune", flags.Htune, "enable hyperparameter tuning")
	f.StringVar(&flags.HtuneVal, "htune-val", flags.HtuneVal, "tuning validation: kfold, holdout, loocv, mc, none")
	f.StringVar(&flags.HtuneValSize, "htune-val-size", flags.HtuneValSize, "fold count or holdout fraction for tuning")
	f.IntVar(&flags.HtuneTrials, "htune-trials", flags.HtuneTrials, "tuning trial count")
	f.StringVar(&flags.TestVal, "test-val", flags.TestVal, "final validation: kfold, holdout, loocv, mc, none")
	f.StringSliceVar(&flags.TestValSizes, "test-val-sizes", flags.TestValSizes, "fold counts or holdout fractions for final validation")
	f.StringVar(&flags.OutDir, "outdir", flags.OutDir, "output root (resolved automatically when empty)")
	f.IntVar(&flags.Verbosity, "verbosity", flags.Verbosity, "0 = errors only, 1 = info, 2 = debug")

	return cmd
}

// mergeOptions layers the configuration: defaults, then the YAML file,
// then any flag the user set explicitly.
func mergeOptions(cmd *cobra.Command, flags config.RawOptions, configPath string) (config.RawOptions, error) {
	raw := flags
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return raw, fmt.Errorf("read config file: %w", err)
		}
		raw = config.Defaults()
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return raw, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
		applyChangedFlags(cmd, &raw, flags)
	}
	return raw, nil
}

// applyChangedFlags copies explicitly-set flag values over the merged
// options, so the command line always wins over the config file.
func applyChangedFlags(cmd *cobra.Command, raw *config.RawOptions, flags config.RawOptions) {
	set := map[string]func(){
		"spreadsheet":    func() { raw.Spreadsheet = flags.Spreadsheet },
		"df":             func() { raw.DataFile = flags.DataFile },
		"separator":      func() { raw.Separator = flags.Separator },
		"target":         func() { raw.Target = flags.Target },
		"mode":           func() { raw.Mode = flags.Mode },
		"classifiers":    func() { raw.Classifiers = flags.Classifiers },
		"regressors":     func() { raw.Regressors = flags.Regressors },
		"feat-select":    func() { raw.FeatSelect = flags.FeatSelect },
		"feat-clean":     func() { raw.FeatClean = flags.FeatClean },
		"drop-nan":       func() { raw.DropNaN = flags.DropNaN },
		"n-feat":         func() { raw.NFeatures = flags.NFeatures },
		"htune":          func() { raw.Htune = flags.Htune },
		"htune-val":      func() { raw.HtuneVal = flags.HtuneVal },
		"htune-val-size": func() { raw.HtuneValSize = flags.HtuneValSize },
		"htune-trials":   func() { raw.HtuneTrials = flags.HtuneTrials },
		"test-val":       func() { raw.TestVal = flags.TestVal },
		"test-val-sizes": func() { raw.TestValSizes = flags.TestValSizes },
		"outdir":         func() { raw.OutDir = flags.OutDir },
		"verbosity":      func() { raw.Verbosity = flags.Verbosity },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func run(parent context.Context, raw config.RawOptions) error {
	opts, err := config.NewOptions(raw)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: logLevel(opts.Program.Verbosity)})
	defer logger.Close()

	opts.AdvisoryWarnings(logger)

	d, err := dirs.NewProvisioner(logger).Provision(opts.Program.OutDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Cleanup(); err != nil {
			logger.Warn("could not remove temporary output root", "path", d.Root, "error", err)
		}
	}()
	if d.InMemory() {
		logger.Warn("no writable output location, results will only be printed")
	} else {
		logger.Info("output root resolved", "path", d.Root)
	}

	store, err := openMemoStore(d)
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := dataset.Load(opts.Program.Selection.Cleaning.DataPath, opts.Separator)
	if err != nil {
		return err
	}
	logger.Info("loaded data source",
		"path", opts.Program.Selection.Cleaning.DataPath,
		"rows", data.Len(),
		"columns", len(data.Columns))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persister := persist.NewPersister(d, logger, os.Stdout)
	runner := grid.NewRunner(persister,
		grid.WithLogger(logger),
		grid.WithMemoStore(store))

	_, err = runner.Run(ctx, opts.Program, summaryAnalyze(data, opts.Program.Selection.Cleaning.Target))
	return err
}

// openMemoStore opens the memoization store under the output root, or
// in memory when the root itself is in-memory.
func openMemoStore(d *dirs.ProgramDirs) (*memo.Store, error) {
	if d.InMemory() {
		return memo.Open(memo.InMemoryConfig())
	}
	return memo.Open(memo.DefaultConfig(d.MemoCache))
}

func logLevel(v config.Verbosity) logging.Level {
	switch v {
	case config.VerbosityError:
		return logging.LevelError
	case config.VerbosityDebug:
		return logging.LevelDebug
	default:
		return logging.LevelInfo
	}
}

// summaryAnalyze is the built-in analysis routine: per grid point it
// reports dataset shape and target summary statistics. Real estimator
// implementations plug in by embedding the runner as a library and
// supplying their own grid.Analyze.
func summaryAnalyze(data *table.Table, target string) grid.Analyze {
	targetCol := -1
	for i, name := range data.Columns {
		if name == target {
			targetCol = i
			break
		}
	}

	return func(_ context.Context, point grid.Point) (*table.Table, error) {
		if targetCol < 0 {
			return nil, fmt.Errorf("target column %q not in data source", target)
		}

		var n int
		var mean, m2 float64
		for _, row := range data.Rows {
			v, ok := row[targetCol].(float64)
			if !ok {
				continue
			}
			// Welford's online mean and variance
			n++
			delta := v - mean
			mean += delta / float64(n)
			m2 += delta * (v - mean)
		}
		sd := 0.0
		if n > 1 {
			sd = m2 / float64(n-1)
		}

		result := table.New("model", "selection", "n_rows", "n_feats", "target_mean", "target_var")
		err := result.AppendRow(
			point.Estimator,
			string(point.Selection),
			float64(data.Len()),
			float64(len(data.Columns)-1),
			mean,
			sd,
		)
		return result, err
	}
}
