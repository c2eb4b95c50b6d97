// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func resultTable() *table.Table {
	tbl := table.New("model", "mae")
	tbl.AppendRow("svm", 1.5)
	tbl.AppendRow("knn", 2.25)
	return tbl
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStore_MissIsNotAnError(t *testing.T) {
	s := openTestStore(t)

	got, ok, err := s.Get("selection", "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := resultTable()

	require.NoError(t, s.Put("selection", "abc123", want))

	got, ok, err := s.Get("selection", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Columns, got.Columns)
	require.Equal(t, want.Len(), got.Len())
	assert.Equal(t, "svm", got.Rows[0][0])
	assert.Equal(t, 1.5, got.Rows[0][1])
}

func TestStore_StagesAreIsolated(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put("cleaning", "abc123", resultTable()))

	_, ok, err := s.Get("selection", "abc123")
	require.NoError(t, err)
	assert.False(t, ok, "digest under one stage leaked into another")
}

func TestStore_PutReplaces(t *testing.T) {
	s := openTestStore(t)

	first := table.New("model", "mae")
	first.AppendRow("svm", 9.0)
	require.NoError(t, s.Put("tuning", "k1", first))

	second := table.New("model", "mae")
	second.AppendRow("svm", 1.0)
	require.NoError(t, s.Put("tuning", "k1", second))

	got, ok, err := s.Get("tuning", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Rows[0][1])
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memocache")

	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, s.Put("selection", "k1", resultTable()))
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get("selection", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Len())
}
