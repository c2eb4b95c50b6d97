// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataset loads tabular source files for analysis.
//
// Supported formats, chosen by file extension: delimited text (.csv),
// a JSON array of records (.json), and line-delimited JSON (.jsonl).
// A .json file that fails whole-document parsing is retried as line
// delimited, since exports frequently mislabel the two.
//
// A malformed line in a .jsonl file is fatal for that file and is
// reported with the line index, its raw content, and both neighbors so
// the operator can locate the defect without a hex editor.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

// ErrUnknownFormat is returned for file extensions outside the
// supported set.
var ErrUnknownFormat = errors.New("unrecognized data file format")

// LineError reports one malformed record in a line-delimited file,
// with enough surrounding context to locate it in the source.
type LineError struct {
	Path  string
	Index int
	Line  string
	Prev  string
	Next  string
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf(
		"parsing line %d of %s: %v\n[%d] previous line: %s\n[%d] current line:  %s\n[%d] next line:     %s",
		e.Index, e.Path, e.Err,
		e.Index-1, e.Prev, e.Index, e.Line, e.Index+1, e.Next)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Load reads the file at path into a table. The separator applies only
// to delimited files and must be a single character after alias
// expansion.
func Load(path, sep string) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadDelimited(path, sep)
	case ".jsonl":
		return loadJSONLines(path)
	case ".json":
		return loadJSON(path)
	}
	return nil, fmt.Errorf("%w: %q from data file %s", ErrUnknownFormat, filepath.Ext(path), path)
}

func loadDelimited(path, sep string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if sep != "" {
		runes := []rune(sep)
		if len(runes) != 1 {
			return nil, fmt.Errorf("separator %q is not a single character", sep)
		}
		r.Comma = runes[0]
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read %s: no header row", path)
	}

	t := table.New(records[0]...)
	for _, record := range records[1:] {
		cells := make([]any, len(record))
		for i, field := range record {
			cells[i] = inferCell(field)
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return t, nil
}

func loadJSON(path string) (*table.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		// mislabeled line-delimited export
		return loadJSONLines(path)
	}
	return recordsToTable(records)
}

func loadJSONLines(path string) (*table.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	lines := strings.Split(string(raw), "\n")
	var records []map[string]any
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, &LineError{
				Path:  path,
				Index: i,
				Line:  line,
				Prev:  neighbor(lines, i-1),
				Next:  neighbor(lines, i+1),
				Err:   err,
			}
		}
		records = append(records, record)
	}
	return recordsToTable(records)
}

func neighbor(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[i])
}

// recordsToTable flattens record maps into a table. Columns are the
// union of all keys, sorted for a stable order; absent values are nil.
func recordsToTable(records []map[string]any) (*table.Table, error) {
	seen := make(map[string]bool)
	var columns []string
	for _, record := range records {
		for key := range record {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)

	t := table.New(columns...)
	for _, record := range records {
		cells := make([]any, len(columns))
		for i, key := range columns {
			cells[i] = record[key]
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// inferCell parses numeric-looking fields to float64 and leaves the
// rest as strings, mirroring how the JSON loaders type their values.
func inferCell(field string) any {
	if v, err := strconv.ParseFloat(field, 64); err == nil {
		return v
	}
	return field
}
