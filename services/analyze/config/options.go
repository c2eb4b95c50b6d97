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
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/tabgrid/pkg/logging"
)

// RawOptions is the untyped configuration surface as collected from CLI
// flags or a YAML config file, before smart construction. Struct tags
// give the first, shallow layer of validation; cross-field constraints
// are enforced by NewOptions.
type RawOptions struct {
	Spreadsheet string   `yaml:"spreadsheet" validate:"omitempty"`
	DataFile    string   `yaml:"df" validate:"omitempty"`
	Separator   string   `yaml:"separator"`
	Target      string   `yaml:"target" validate:"required"`
	Mode        string   `yaml:"mode" validate:"required,oneof=classify regress"`
	Classifiers []string `yaml:"classifiers" validate:"omitempty,dive,oneof=svm rf knn dtree bag mlp"`
	Regressors  []string `yaml:"regressors" validate:"omitempty,dive,oneof=linear svm rf knn adaboost gboost mlp"`
	FeatSelect  []string `yaml:"feat-select" validate:"omitempty,dive,oneof=none pca kpca d auc pearson spearman step-up step-down"`
	FeatClean   []string `yaml:"feat-clean" validate:"omitempty,dive,oneof=constant correlated lowinfo"`
	DropNaN     string   `yaml:"drop-nan" validate:"required,oneof=none all rows cols"`
	NFeatures   int      `yaml:"n-feat" validate:"gte=1"`

	Htune        bool     `yaml:"htune"`
	HtuneVal     string   `yaml:"htune-val" validate:"required,oneof=kfold holdout loocv mc none"`
	HtuneValSize string   `yaml:"htune-val-size" validate:"required"`
	HtuneTrials  int      `yaml:"htune-trials" validate:"gte=1"`
	TestVal      string   `yaml:"test-val" validate:"required,oneof=kfold holdout loocv mc none"`
	TestValSizes []string `yaml:"test-val-sizes" validate:"required,min=1"`

	OutDir    string `yaml:"outdir"`
	Verbosity int    `yaml:"verbosity" validate:"gte=0,lte=2"`
}

// Defaults returns a RawOptions with the documented default values.
// Callers overlay CLI flags and config-file values on top of it.
func Defaults() RawOptions {
	return RawOptions{
		Separator:    ",",
		Target:       "target",
		Mode:         string(ModeClassify),
		Classifiers:  []string{string(ClassifierSVM)},
		Regressors:   []string{string(RegressorLinear)},
		FeatSelect:   []string{string(SelectPCA)},
		FeatClean:    []string{string(CleanConstant)},
		DropNaN:      string(NaNNone),
		NFeatures:    10,
		HtuneVal:     string(ValKFold),
		HtuneValSize: "3",
		HtuneTrials:  100,
		TestVal:      string(ValKFold),
		TestValSizes: []string{"5"},
		Verbosity:    int(VerbosityInfo),
	}
}

// Options is the validated program configuration: the hashable
// ProgramKey that decides cache reuse, plus the loading details that
// have no effect on computed results.
type Options struct {
	Program ProgramKey

	// Separator is the field delimiter for delimited data files.
	Separator string

	// IsSpreadsheet records whether the data source was given as a
	// spreadsheet rather than a plain data table.
	IsSpreadsheet bool
}

// NewOptions builds a validated Options from raw input.
//
// Validation runs in three layers, all before any directory is created
// or any run starts:
//
//  1. struct-tag validation of enumerated and ranged fields
//  2. data source resolution (exactly one of spreadsheet/df, the path
//     must exist and be a regular file)
//  3. smart construction of the key chain, which enforces cross-field
//     constraints such as effect-size selection vs. regression mode
func NewOptions(raw RawOptions) (*Options, error) {
	if err := validator.New().Struct(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}

	dataPath, isSpreadsheet, err := resolveDataSource(raw.Spreadsheet, raw.DataFile)
	if err != nil {
		return nil, err
	}

	cleaning, err := NewCleaningKey(dataPath, raw.Target, toCleaningSteps(raw.FeatClean), NaNPolicy(raw.DropNaN))
	if err != nil {
		return nil, err
	}

	selection, err := NewSelectionKey(
		cleaning,
		TaskMode(raw.Mode),
		toClassifiers(raw.Classifiers),
		toRegressors(raw.Regressors),
		toSelectionMethods(raw.FeatSelect),
		raw.NFeatures,
	)
	if err != nil {
		return nil, err
	}

	htuneValSize, err := ParseSize(raw.HtuneValSize)
	if err != nil {
		return nil, fmt.Errorf("htune-val-size: %w", err)
	}
	testValSizes := make([]Size, 0, len(raw.TestValSizes))
	for _, s := range raw.TestValSizes {
		size, err := ParseSize(s)
		if err != nil {
			return nil, fmt.Errorf("test-val-sizes: %w", err)
		}
		testValSizes = append(testValSizes, size)
	}

	outDir, err := resolveOutDir(raw.OutDir)
	if err != nil {
		return nil, err
	}

	program, err := NewProgramKey(
		selection,
		raw.Htune,
		ValMethod(raw.HtuneVal),
		htuneValSize,
		raw.HtuneTrials,
		ValMethod(raw.TestVal),
		testValSizes,
		outDir,
		Verbosity(raw.Verbosity),
	)
	if err != nil {
		return nil, err
	}

	return &Options{
		Program:       program,
		Separator:     ParseSeparator(raw.Separator),
		IsSpreadsheet: isSpreadsheet,
	}, nil
}

// ParseSeparator maps the "tab" and "newline" aliases to their
// characters; anything else passes through unchanged.
func ParseSeparator(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tab":
		return "\t"
	case "newline":
		return "\n"
	case "":
		return ","
	}
	return s
}

// AdvisoryWarnings logs the run-quality advisories that the original
// option set prints at startup. Suppressed entirely at VerbosityError.
func (o *Options) AdvisoryWarnings(logger *logging.Logger) {
	if o.Program.Verbosity == VerbosityError {
		return
	}

	if o.Program.Htune && o.Program.HtuneTrials < 100 {
		logger.Warn("tuning without pruning generally needs 50-100 trials to beat random search",
			"htune_trials", o.Program.HtuneTrials)
	}

	methods := o.Program.Selection.Methods
	for _, m := range methods {
		if m == SelectStepUp || m == SelectStepDown {
			logger.Warn("step-up and step-down selection can have very high time complexity; "+
				"run them in isolation from other selection procedures",
				"method", string(m))
		}
	}
	for _, m := range methods {
		if m == SelectStepDown {
			logger.Warn("step-down selection is usually intractable even on small datasets " +
				"unless the estimator is very fast (linear, logistic, maybe svm)")
		}
	}
	logger.Info("to silence these advisories, use --verbosity=0")
}

func resolveDataSource(spreadsheet, dataFile string) (path string, isSpreadsheet bool, err error) {
	switch {
	case spreadsheet == "" && dataFile == "":
		return "", false, fmt.Errorf("%w: pass one of --spreadsheet or --df", ErrMissingDataSource)
	case dataFile != "":
		path = dataFile
	default:
		path = spreadsheet
		isSpreadsheet = true
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("%w: %q: %v", ErrDataPathNotFound, path, err)
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", false, fmt.Errorf("%w: %s", ErrDataPathNotFound, abs)
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %v", ErrDataPathNotFound, abs, err)
	}
	if !info.Mode().IsRegular() {
		return "", false, fmt.Errorf("%w: %s", ErrDataPathNotFile, abs)
	}
	return abs, isSpreadsheet, nil
}

// resolveOutDir checks the explicitly requested output root for a
// collision with a non-directory. An empty request is passed through;
// the provisioner handles the fallback chain.
func resolveOutDir(outDir string) (string, error) {
	if outDir == "" {
		return "", nil
	}
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidOption, outDir, err)
	}
	info, err := os.Stat(abs)
	if err == nil && !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrOutputNotDirectory, abs)
	}
	return abs, nil
}

func toCleaningSteps(in []string) []CleaningStep {
	out := make([]CleaningStep, len(in))
	for i, s := range in {
		out[i] = CleaningStep(s)
	}
	return out
}

func toClassifiers(in []string) []Classifier {
	out := make([]Classifier, len(in))
	for i, s := range in {
		out[i] = Classifier(s)
	}
	return out
}

func toRegressors(in []string) []Regressor {
	out := make([]Regressor, len(in))
	for i, s := range in {
		out[i] = Regressor(s)
	}
	return out
}

func toSelectionMethods(in []string) []SelectionMethod {
	out := make([]SelectionMethod, len(in))
	for i, s := range in {
		out[i] = SelectionMethod(s)
	}
	return out
}
