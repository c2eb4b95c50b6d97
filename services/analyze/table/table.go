// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package table holds the tabular result sets produced by analysis
// runs: a small row/column container with the concatenation, sorting,
// and rendering behavior the run loop needs. Cells are either strings
// (model names, method labels) or float64 metrics.
package table

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// RenderPrecision is the number of decimal places used for floats in
// the fixed-width text rendering.
const RenderPrecision = 5

// Table is an ordered set of rows under named columns.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New creates an empty table with the given column names.
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// AppendRow adds one row. The cell count must match the column count.
func (t *Table) AppendRow(cells ...any) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Concat appends the rows of every table into one. All tables must
// share the same column names in the same order.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return New(), nil
	}
	out := &Table{Columns: append([]string{}, tables[0].Columns...)}
	for i, t := range tables {
		if !equalColumns(out.Columns, t.Columns) {
			return nil, fmt.Errorf("table %d columns %v do not match %v", i, t.Columns, out.Columns)
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out, nil
}

// SortColumn returns the column the default display sort would use, or
// -1 when the table should keep its natural order.
//
// The rule is a documented heuristic carried over from how regression
// metrics are usually named: the first column whose lowercase name
// contains "mae" but not "sd" is treated as an error magnitude and
// sorted ascending (lower error first). Classification metrics are
// "higher is better" and have no such column, so those tables are
// presented in their natural order.
func (t *Table) SortColumn() int {
	for i, name := range t.Columns {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "mae") && !strings.Contains(lower, "sd") {
			return i
		}
	}
	return -1
}

// Sorted returns a copy sorted by the default display sort. When no
// error-magnitude column exists the copy keeps the original row order.
// The sort is stable and the receiver is never modified.
func (t *Table) Sorted() *Table {
	out := &Table{
		Columns: append([]string{}, t.Columns...),
		Rows:    append([][]any{}, t.Rows...),
	}
	col := t.SortColumn()
	if col < 0 {
		return out
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, aok := asFloat(out.Rows[i][col])
		b, bok := asFloat(out.Rows[j][col])
		if aok != bok {
			return aok // numeric cells sort before non-numeric ones
		}
		return a < b
	})
	return out
}

// Render writes a fixed-width text rendering, the fallback format used
// when a structured write fails so the operator never loses the data.
func (t *Table) Render(w io.Writer) error {
	widths := make([]int, len(t.Columns))
	for i, name := range t.Columns {
		widths[i] = len(name)
	}
	rendered := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells := make([]string, len(row))
		for c, cell := range row {
			s := renderCell(cell)
			cells[c] = s
			if len(s) > widths[c] {
				widths[c] = len(s)
			}
		}
		rendered[r] = cells
	}

	var b strings.Builder
	for i, name := range t.Columns {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-*s", widths[i], name)
	}
	b.WriteByte('\n')
	for i := range t.Columns {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(strings.Repeat("-", widths[i]))
	}
	b.WriteByte('\n')
	for _, cells := range rendered {
		for i, s := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], s)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// MarshalJSON renders the column-oriented structured form: an object
// mapping each column name to its array of values, plus the column
// order under "columns" since JSON objects do not preserve it.
func (t *Table) MarshalJSON() ([]byte, error) {
	cols := make(map[string]any, len(t.Columns)+1)
	cols["columns"] = t.Columns
	for i, name := range t.Columns {
		values := make([]any, len(t.Rows))
		for r, row := range t.Rows {
			values[r] = row[i]
		}
		cols[name] = values
	}
	return json.Marshal(cols)
}

// UnmarshalJSON rebuilds a table from its column-oriented form.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	order, ok := raw["columns"]
	if !ok {
		return fmt.Errorf("table JSON is missing the column order")
	}
	var columns []string
	if err := json.Unmarshal(order, &columns); err != nil {
		return fmt.Errorf("decode column order: %w", err)
	}

	values := make([][]any, len(columns))
	rows := 0
	for i, name := range columns {
		col, ok := raw[name]
		if !ok {
			return fmt.Errorf("table JSON is missing column %q", name)
		}
		if err := json.Unmarshal(col, &values[i]); err != nil {
			return fmt.Errorf("decode column %q: %w", name, err)
		}
		if i == 0 {
			rows = len(values[i])
		} else if len(values[i]) != rows {
			return fmt.Errorf("column %q has %d values, want %d", name, len(values[i]), rows)
		}
	}

	t.Columns = columns
	t.Rows = make([][]any, rows)
	for r := 0; r < rows; r++ {
		row := make([]any, len(columns))
		for c := range columns {
			row[c] = values[c][r]
		}
		t.Rows[r] = row
	}
	return nil
}

// WriteCSV writes the flat delimited form: a header row followed by one
// record per row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = csvCell(cell)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func asFloat(cell any) (float64, bool) {
	switch v := cell.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func renderCell(cell any) string {
	if f, ok := asFloat(cell); ok {
		return strconv.FormatFloat(f, 'f', RenderPrecision, 64)
	}
	return fmt.Sprint(cell)
}

func csvCell(cell any) string {
	if f, ok := asFloat(cell); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprint(cell)
}
