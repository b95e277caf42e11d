// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists reachability snapshots in BadgerDB so a later
// run can be compared against a saved baseline.
//
// Only the reachable path set and the set statistics survive a round
// trip. Node identities belong to the process that walked the graph, so
// a loaded snapshot has a nil Nodes map and should be compared with
// audit.PathChanges.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/AleutianAI/leaktrace/pkg/logging"
	"github.com/AleutianAI/leaktrace/services/leak/audit"
	"github.com/AleutianAI/leaktrace/services/leak/path"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "snapshot/"

var (
	// ErrNotFound is returned when no snapshot has the requested name.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidName is returned for an empty snapshot name.
	ErrInvalidName = errors.New("snapshot name must not be empty")

	// ErrNoPath is returned when a persistent store has no directory.
	ErrNoPath = errors.New("path is required for persistent store")
)

// Config holds configuration for a snapshot store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is
	// true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites makes every Save durable before it returns.
	SyncWrites bool

	// Logger receives BadgerDB's own messages. Nil disables them.
	Logger *logging.Logger
}

// DefaultConfig returns a durable on-disk configuration for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts logging.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a named collection of snapshots.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Entry describes a stored snapshot without its paths.
type Entry struct {
	Name    string
	ID      string
	TakenAt time.Time
	Paths   int
}

// record is the persisted form of a snapshot.
type record struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	TakenAt time.Time     `json:"taken_at"`
	Paths   []string      `json:"paths"`
	Stats   visited.Stats `json:"stats"`
}

// Open opens or creates a store.
//
// Description:
//
//	Opens a BadgerDB database at cfg.Path, creating the directory if
//	needed, or in memory when cfg.InMemory is set.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - ErrNoPath, or a directory or database error.
//
// Thread Safety: The returned store is safe for concurrent use. BadgerDB
// allows one process per directory.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrNoPath
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores snap under snap.Name, replacing any earlier snapshot with
// that name.
func (s *Store) Save(ctx context.Context, snap *audit.Snapshot) error {
	if snap == nil || snap.Name == "" {
		return ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	rec := record{
		ID:      snap.ID,
		Name:    snap.Name,
		TakenAt: snap.TakenAt.UTC(),
		Paths:   make([]string, 0, len(snap.Paths)),
		Stats:   snap.Stats,
	}
	for h := range snap.Paths {
		rec.Paths = append(rec.Paths, h)
	}
	sort.Strings(rec.Paths)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(snap.Name), data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Name, err)
	}
	return nil
}

// Load returns the snapshot stored under name. Its Nodes map is nil.
func (s *Store) Load(ctx context.Context, name string) (*audit.Snapshot, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}

	paths := make(traverse.PathIndex, len(rec.Paths))
	for _, h := range rec.Paths {
		p, err := path.FromHash(h)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", name, err)
		}
		paths[h] = p
	}
	return &audit.Snapshot{
		ID:      rec.ID,
		Name:    rec.Name,
		TakenAt: rec.TakenAt,
		Paths:   paths,
		Stats:   rec.Stats,
	}, nil
}

// List returns every stored snapshot ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, Entry{
				Name:    rec.Name,
				ID:      rec.ID,
				TakenAt: rec.TakenAt,
				Paths:   len(rec.Paths),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return entries, nil
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return err
		}
		return txn.Delete(key(name))
	})
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}
