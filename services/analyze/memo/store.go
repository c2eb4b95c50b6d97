// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memo is the memoization store for analysis results.
//
// Results are keyed by pipeline stage plus the deterministic digest of
// the configuration that produced them, so a rerun with a semantically
// identical configuration skips the work entirely. The store lives
// under the memocache directory of the resolved output root and is
// embedded BadgerDB: low-latency, crash-safe, single-process.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package memo

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/tabgrid/services/analyze/table"
)

// Config holds configuration for the memoization store.
type Config struct {
	// Path is the directory for store files. Required unless InMemory.
	Path string

	// InMemory keeps everything in RAM. Used for tests and for runs
	// whose output root degraded to in-memory mode.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, internal
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the production configuration for a store at
// the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration with no disk persistence.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is a stage-and-digest keyed cache of result tables.
//
// Thread Safety: Store is safe for concurrent use; the underlying
// database handles its own synchronization.
type Store struct {
	db *badger.DB
}

// Open creates the store directory if needed and opens the database.
// Caller must call Close when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open memo store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Further calls error.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get looks up the cached table for (stage, digest).
//
// Outputs:
//   - the cached table and true on a hit
//   - nil and false on a miss
//   - a non-nil error only for store corruption or I/O failure; a miss
//     is not an error
func (s *Store) Get(stage, digest string) (*table.Table, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(stage, digest))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memo get %s/%s: %w", stage, digest, err)
	}

	var t table.Table
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, fmt.Errorf("memo decode %s/%s: %w", stage, digest, err)
	}
	return &t, true, nil
}

// Put stores the table under (stage, digest), replacing any previous
// entry.
func (s *Store) Put(stage, digest string, t *table.Table) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("memo encode %s/%s: %w", stage, digest, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(stage, digest), raw)
	})
	if err != nil {
		return fmt.Errorf("memo put %s/%s: %w", stage, digest, err)
	}
	return nil
}

func storeKey(stage, digest string) []byte {
	return []byte(stage + "/" + digest)
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
