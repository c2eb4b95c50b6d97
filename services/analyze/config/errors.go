// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the immutable configuration keys that drive a
// tabgrid analysis run and decide cache reuse.
//
// Configuration is modelled as a dependency chain of value types:
//
//	CleaningKey -> SelectionKey -> ProgramKey
//
// A later-stage key embeds the exact key of the stage it depends on, so
// a change anywhere upstream invalidates everything downstream, while a
// change that only touches tuning parameters never invalidates cleaning
// or selection caches.
//
// Keys are built exclusively through smart constructors that normalize
// multi-valued options (deduplicate, sort) and validate cross-field
// constraints, so that two keys describing the same intent always
// compare and hash equal regardless of input order.
package config

import "errors"

// Sentinel errors for configuration validation. All of these are fatal
// at startup: they are raised before any directory is created or any
// grid point runs.
var (
	// ErrMissingDataSource is returned when neither a spreadsheet nor a
	// data-table path was provided.
	ErrMissingDataSource = errors.New("no data source specified")

	// ErrDataPathNotFound is returned when the data source path does not exist.
	ErrDataPathNotFound = errors.New("data source path does not exist")

	// ErrDataPathNotFile is returned when the data source path is not a
	// regular file.
	ErrDataPathNotFile = errors.New("data source path is not a file")

	// ErrInvalidOption is returned when an option value is outside its
	// enumerated set or fails struct-level validation.
	ErrInvalidOption = errors.New("invalid option value")

	// ErrIncompatibleSelection is returned when an effect-size selection
	// method (d, auc) is combined with regression mode. Effect sizes are
	// only defined against a categorical target.
	ErrIncompatibleSelection = errors.New("selection method incompatible with regression mode")

	// ErrInvalidSize is returned when a validation-size value is not a
	// fraction in (0, 1) or an integer count greater than 1.
	ErrInvalidSize = errors.New("invalid validation size")

	// ErrOutputNotDirectory is returned when the requested output root
	// exists but is not a directory.
	ErrOutputNotDirectory = errors.New("output path exists and is not a directory")
)
