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
)

// TaskMode selects between classification and regression analysis.
type TaskMode string

const (
	ModeClassify TaskMode = "classify"
	ModeRegress  TaskMode = "regress"
)

// ParseTaskMode validates a raw mode string.
func ParseTaskMode(s string) (TaskMode, error) {
	switch TaskMode(s) {
	case ModeClassify, ModeRegress:
		return TaskMode(s), nil
	}
	return "", fmt.Errorf("%w: mode %q (want classify or regress)", ErrInvalidOption, s)
}

// Classifier is a classification estimator choice.
type Classifier string

const (
	ClassifierSVM   Classifier = "svm"
	ClassifierRF    Classifier = "rf"
	ClassifierKNN   Classifier = "knn"
	ClassifierDTree Classifier = "dtree"
	ClassifierBag   Classifier = "bag"
	ClassifierMLP   Classifier = "mlp"
)

var validClassifiers = map[Classifier]bool{
	ClassifierSVM: true, ClassifierRF: true, ClassifierKNN: true,
	ClassifierDTree: true, ClassifierBag: true, ClassifierMLP: true,
}

// Regressor is a regression estimator choice.
type Regressor string

const (
	RegressorLinear   Regressor = "linear"
	RegressorSVM      Regressor = "svm"
	RegressorRF       Regressor = "rf"
	RegressorKNN      Regressor = "knn"
	RegressorAdaBoost Regressor = "adaboost"
	RegressorGBoost   Regressor = "gboost"
	RegressorMLP      Regressor = "mlp"
)

var validRegressors = map[Regressor]bool{
	RegressorLinear: true, RegressorSVM: true, RegressorRF: true,
	RegressorKNN: true, RegressorAdaBoost: true, RegressorGBoost: true,
	RegressorMLP: true,
}

// SelectionMethod is a feature-selection procedure choice.
type SelectionMethod string

const (
	SelectNone     SelectionMethod = "none"
	SelectPCA      SelectionMethod = "pca"
	SelectKPCA     SelectionMethod = "kpca"
	SelectCohenD   SelectionMethod = "d"
	SelectAUC      SelectionMethod = "auc"
	SelectPearson  SelectionMethod = "pearson"
	SelectSpearman SelectionMethod = "spearman"
	SelectStepUp   SelectionMethod = "step-up"
	SelectStepDown SelectionMethod = "step-down"
)

var validSelectionMethods = map[SelectionMethod]bool{
	SelectNone: true, SelectPCA: true, SelectKPCA: true,
	SelectCohenD: true, SelectAUC: true, SelectPearson: true,
	SelectSpearman: true, SelectStepUp: true, SelectStepDown: true,
}

// IsEffectSize reports whether the method ranks features by an effect
// size against a categorical target. These methods are undefined for
// regression targets.
func (m SelectionMethod) IsEffectSize() bool {
	return m == SelectCohenD || m == SelectAUC
}

// CleaningStep is a feature-cleaning procedure choice.
type CleaningStep string

const (
	CleanConstant   CleaningStep = "constant"
	CleanCorrelated CleaningStep = "correlated"
	CleanLowinfo    CleaningStep = "lowinfo"
)

var validCleaningSteps = map[CleaningStep]bool{
	CleanConstant: true, CleanCorrelated: true, CleanLowinfo: true,
}

// NaNPolicy controls how missing values are dropped before analysis.
type NaNPolicy string

const (
	NaNNone NaNPolicy = "none"
	NaNAll  NaNPolicy = "all"
	NaNRows NaNPolicy = "rows"
	NaNCols NaNPolicy = "cols"
)

var validNaNPolicies = map[NaNPolicy]bool{
	NaNNone: true, NaNAll: true, NaNRows: true, NaNCols: true,
}

// ParseNaNPolicy validates a raw NaN policy string.
func ParseNaNPolicy(s string) (NaNPolicy, error) {
	if validNaNPolicies[NaNPolicy(s)] {
		return NaNPolicy(s), nil
	}
	return "", fmt.Errorf("%w: nan policy %q (want none, all, rows, or cols)", ErrInvalidOption, s)
}

// ValMethod is a validation strategy for tuning or final testing.
type ValMethod string

const (
	ValKFold   ValMethod = "kfold"
	ValHoldout ValMethod = "holdout"
	ValLOOCV   ValMethod = "loocv"
	ValMC      ValMethod = "mc"
	ValNone    ValMethod = "none"
)

var validValMethods = map[ValMethod]bool{
	ValKFold: true, ValHoldout: true, ValLOOCV: true, ValMC: true, ValNone: true,
}

// ParseValMethod validates a raw validation-method string.
func ParseValMethod(s string) (ValMethod, error) {
	if validValMethods[ValMethod(s)] {
		return ValMethod(s), nil
	}
	return "", fmt.Errorf("%w: validation method %q", ErrInvalidOption, s)
}

// Verbosity controls advisory warnings and interim progress output.
type Verbosity int

const (
	// VerbosityError logs only errors; advisory warnings are suppressed.
	VerbosityError Verbosity = 0

	// VerbosityInfo logs interim progress and advisory warnings.
	VerbosityInfo Verbosity = 1

	// VerbosityDebug is the maximum level of logging.
	VerbosityDebug Verbosity = 2
)

// ParseVerbosity validates a raw verbosity level.
func ParseVerbosity(v int) (Verbosity, error) {
	if v < 0 || v > 2 {
		return 0, fmt.Errorf("%w: verbosity %d (want 0, 1, or 2)", ErrInvalidOption, v)
	}
	return Verbosity(v), nil
}

// normalizeSet deduplicates and sorts string-like values so that keys
// built from any input order compare equal. The returned slice is a
// fresh allocation; the input is not modified.
func normalizeSet[T ~string](values []T) []T {
	seen := make(map[T]bool, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// joinSet renders a normalized set as a canonical comma-joined string.
func joinSet[T ~string](values []T) string {
	s := ""
	for i, v := range values {
		if i > 0 {
			s += ","
		}
		s += string(v)
	}
	return s
}
