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
	"sort"
	"strconv"

	"github.com/AleutianAI/tabgrid/services/analyze/cachekey"
)

// CleaningKey identifies the inputs of the data-cleaning stage. Because
// a change in the source file changes the cleaned output, the source
// path is part of the key.
//
// CleaningKey is a value type. Construct it with NewCleaningKey and do
// not mutate the Steps slice afterwards; the constructor owns it.
type CleaningKey struct {
	DataPath  string
	Target    string
	Steps     []CleaningStep
	NaNPolicy NaNPolicy
}

// NewCleaningKey validates and normalizes the cleaning-stage inputs.
// Steps are deduplicated and sorted so that equal intent yields equal
// keys regardless of input order.
func NewCleaningKey(dataPath, target string, steps []CleaningStep, nan NaNPolicy) (CleaningKey, error) {
	if dataPath == "" {
		return CleaningKey{}, ErrMissingDataSource
	}
	if target == "" {
		return CleaningKey{}, fmt.Errorf("%w: empty target column name", ErrInvalidOption)
	}
	for _, s := range steps {
		if !validCleaningSteps[s] {
			return CleaningKey{}, fmt.Errorf("%w: cleaning step %q", ErrInvalidOption, s)
		}
	}
	if !validNaNPolicies[nan] {
		return CleaningKey{}, fmt.Errorf("%w: nan policy %q", ErrInvalidOption, nan)
	}
	return CleaningKey{
		DataPath:  dataPath,
		Target:    target,
		Steps:     normalizeSet(steps),
		NaNPolicy: nan,
	}, nil
}

// CacheItems returns the canonical field items used for cache hashing.
func (k CleaningKey) CacheItems() []cachekey.Item {
	return []cachekey.Item{
		{Key: "data_path", Value: k.DataPath},
		{Key: "target", Value: k.Target},
		{Key: "cleaning_steps", Value: joinSet(k.Steps)},
		{Key: "nan_policy", Value: string(k.NaNPolicy)},
	}
}

// SelectionKey identifies the inputs of the feature-selection stage.
// It embeds the CleaningKey it depends on: there is no way to build a
// SelectionKey without an already-validated CleaningKey, so any change
// upstream invalidates downstream caches.
type SelectionKey struct {
	Cleaning    CleaningKey
	Mode        TaskMode
	Classifiers []Classifier
	Regressors  []Regressor
	Methods     []SelectionMethod
	NFeatures   int
}

// NewSelectionKey validates and normalizes the selection-stage inputs.
//
// The cross-field constraint between mode and selection method is
// enforced here: effect-size methods (Cohen's d, AUC) are rejected for
// regression tasks at construction, not later inside the run loop.
func NewSelectionKey(
	cleaning CleaningKey,
	mode TaskMode,
	classifiers []Classifier,
	regressors []Regressor,
	methods []SelectionMethod,
	nFeatures int,
) (SelectionKey, error) {
	if _, err := ParseTaskMode(string(mode)); err != nil {
		return SelectionKey{}, err
	}
	for _, c := range classifiers {
		if !validClassifiers[c] {
			return SelectionKey{}, fmt.Errorf("%w: classifier %q", ErrInvalidOption, c)
		}
	}
	for _, r := range regressors {
		if !validRegressors[r] {
			return SelectionKey{}, fmt.Errorf("%w: regressor %q", ErrInvalidOption, r)
		}
	}
	for _, m := range methods {
		if !validSelectionMethods[m] {
			return SelectionKey{}, fmt.Errorf("%w: selection method %q", ErrInvalidOption, m)
		}
		if mode == ModeRegress && m.IsEffectSize() {
			return SelectionKey{}, fmt.Errorf(
				"%w: %q ranks features by effect size against a categorical target; "+
					"remove it from the selection methods or use classify mode",
				ErrIncompatibleSelection, m)
		}
	}
	if nFeatures < 1 {
		return SelectionKey{}, fmt.Errorf("%w: n-features %d (want >= 1)", ErrInvalidOption, nFeatures)
	}

	return SelectionKey{
		Cleaning:    cleaning,
		Mode:        mode,
		Classifiers: normalizeSet(classifiers),
		Regressors:  normalizeSet(regressors),
		Methods:     normalizeSet(methods),
		NFeatures:   nFeatures,
	}, nil
}

// CacheItems returns the canonical field items used for cache hashing.
// Upstream cleaning fields are included under a "cleaning." prefix so
// that two selection keys built from different cleaning keys can never
// hash equal.
func (k SelectionKey) CacheItems() []cachekey.Item {
	items := make([]cachekey.Item, 0, 10)
	for _, it := range k.Cleaning.CacheItems() {
		items = append(items, cachekey.Item{Key: "cleaning." + it.Key, Value: it.Value})
	}
	items = append(items,
		cachekey.Item{Key: "mode", Value: string(k.Mode)},
		cachekey.Item{Key: "classifiers", Value: joinSet(k.Classifiers)},
		cachekey.Item{Key: "regressors", Value: joinSet(k.Regressors)},
		cachekey.Item{Key: "selection_methods", Value: joinSet(k.Methods)},
		cachekey.Item{Key: "n_features", Value: strconv.Itoa(k.NFeatures)},
	)
	return items
}

// Estimators returns the estimator names active for the key's mode, in
// normalized order. Classification modes use the classifier set,
// regression modes the regressor set.
func (k SelectionKey) Estimators() []string {
	var names []string
	if k.Mode == ModeRegress {
		for _, r := range k.Regressors {
			names = append(names, string(r))
		}
	} else {
		for _, c := range k.Classifiers {
			names = append(names, string(c))
		}
	}
	return names
}

// ProgramKey is the full program configuration: the selection key it
// depends on plus hyperparameter-tuning and validation parameters,
// output root, and verbosity.
type ProgramKey struct {
	Selection    SelectionKey
	Htune        bool
	HtuneVal     ValMethod
	HtuneValSize Size
	HtuneTrials  int
	TestVal      ValMethod
	TestValSizes []Size
	OutDir       string
	Verbosity    Verbosity
}

// NewProgramKey validates and normalizes the full program options.
func NewProgramKey(
	selection SelectionKey,
	htune bool,
	htuneVal ValMethod,
	htuneValSize Size,
	htuneTrials int,
	testVal ValMethod,
	testValSizes []Size,
	outDir string,
	verbosity Verbosity,
) (ProgramKey, error) {
	if !validValMethods[htuneVal] {
		return ProgramKey{}, fmt.Errorf("%w: htune validation method %q", ErrInvalidOption, htuneVal)
	}
	if !validValMethods[testVal] {
		return ProgramKey{}, fmt.Errorf("%w: test validation method %q", ErrInvalidOption, testVal)
	}
	if htuneTrials < 1 {
		return ProgramKey{}, fmt.Errorf("%w: htune trials %d (want >= 1)", ErrInvalidOption, htuneTrials)
	}
	if len(testValSizes) == 0 {
		return ProgramKey{}, fmt.Errorf("%w: no test validation sizes", ErrInvalidOption)
	}
	if _, err := ParseVerbosity(int(verbosity)); err != nil {
		return ProgramKey{}, err
	}

	sizes := dedupeSizes(testValSizes)

	return ProgramKey{
		Selection:    selection,
		Htune:        htune,
		HtuneVal:     htuneVal,
		HtuneValSize: htuneValSize,
		HtuneTrials:  htuneTrials,
		TestVal:      testVal,
		TestValSizes: sizes,
		OutDir:       outDir,
		Verbosity:    verbosity,
	}, nil
}

// CacheItems returns the canonical field items used for cache hashing.
// Selection (and transitively cleaning) fields are included under a
// "selection." prefix.
//
// Callers that hash a ProgramKey for memoization should pass "out_dir"
// and "verbosity" as ignored fields: neither affects computed results.
func (k ProgramKey) CacheItems() []cachekey.Item {
	items := make([]cachekey.Item, 0, 18)
	for _, it := range k.Selection.CacheItems() {
		items = append(items, cachekey.Item{Key: "selection." + it.Key, Value: it.Value})
	}
	items = append(items,
		cachekey.Item{Key: "htune", Value: strconv.FormatBool(k.Htune)},
		cachekey.Item{Key: "htune_val", Value: string(k.HtuneVal)},
		cachekey.Item{Key: "htune_val_size", Value: k.HtuneValSize.String()},
		cachekey.Item{Key: "htune_trials", Value: strconv.Itoa(k.HtuneTrials)},
		cachekey.Item{Key: "test_val", Value: string(k.TestVal)},
		cachekey.Item{Key: "test_val_sizes", Value: joinSizes(k.TestValSizes)},
		cachekey.Item{Key: "out_dir", Value: k.OutDir},
		cachekey.Item{Key: "verbosity", Value: strconv.Itoa(int(k.Verbosity))},
	)
	return items
}

// HtuneValDesc renders the tuning-validation choice for progress lines,
// e.g. "3-fold", "20%-holdout", "mc", or "none".
func (k ProgramKey) HtuneValDesc() string {
	switch k.HtuneVal {
	case ValKFold:
		if k.HtuneValSize.IsCount() {
			return fmt.Sprintf("%d-fold", k.HtuneValSize.Count())
		}
		return "kfold"
	case ValHoldout:
		if !k.HtuneValSize.IsCount() {
			return fmt.Sprintf("%d%%-holdout", int(100*float64(k.HtuneValSize)))
		}
		return "holdout"
	case ValMC:
		return "mc"
	case ValLOOCV:
		return "loocv"
	default:
		return "none"
	}
}

func dedupeSizes(sizes []Size) []Size {
	seen := make(map[Size]bool, len(sizes))
	out := make([]Size, 0, len(sizes))
	for _, s := range sizes {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinSizes(sizes []Size) string {
	s := ""
	for i, v := range sizes {
		if i > 0 {
			s += ","
		}
		s += v.String()
	}
	return s
}
