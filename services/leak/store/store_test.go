// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"

	"github.com/AleutianAI/leaktrace/services/leak/audit"
	"github.com/AleutianAI/leaktrace/services/leak/object"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshot(t *testing.T, name string, root *object.Object) *audit.Snapshot {
	t.Helper()
	snap, err := audit.Take(context.Background(), name, root, traverse.WithLabel("heap"), traverse.WithSilent())
	require.NoError(t, err)
	return snap
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	snap := snapshot(t, "baseline", object.New().Set("cache", object.New().Set("a b", 1)).Set("n", 2))
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, "baseline")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, "baseline", got.Name)
	assert.True(t, snap.TakenAt.Equal(got.TakenAt))
	assert.Equal(t, snap.Paths, got.Paths)
	assert.Equal(t, snap.Stats, got.Stats)
	assert.Nil(t, got.Nodes)
	assert.Contains(t, got.Paths, "heap/cache/a%20b")

	assert.True(t, audit.PathChanges(got, snap).Empty())
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	require.NoError(t, s.Save(ctx, snapshot(t, "b", object.New().Set("x", 1))))
	require.NoError(t, s.Save(ctx, snapshot(t, "b", object.New().Set("x", 1).Set("y", 2))))

	got, err := s.Load(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, got.Paths, 3)
}

func TestStore_ListDelete(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Save(ctx, snapshot(t, name, object.New().Set("x", 1))))
	}

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "mid", entries[1].Name)
	assert.Equal(t, "zeta", entries[2].Name)
	assert.Equal(t, 2, entries[0].Paths)
	assert.NotEmpty(t, entries[0].ID)

	require.NoError(t, s.Delete(ctx, "mid"))
	entries, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.ErrorIs(t, s.Delete(ctx, "mid"), ErrNotFound)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, s.Save(ctx, nil), ErrInvalidName)
	assert.ErrorIs(t, s.Save(ctx, &audit.Snapshot{}), ErrInvalidName)
	assert.ErrorIs(t, s.Delete(ctx, ""), ErrInvalidName)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Save(cancelled, snapshot(t, "c", object.New())), context.Canceled)
	_, err = s.List(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	snap := snapshot(t, "disk", object.New().Set("x", 1))
	snap.Stats = visited.Stats{Strategy: visited.StrategyBucket, Unique: 2, Buckets: 1}
	require.NoError(t, s.Save(ctx, snap))
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, "disk")
	require.NoError(t, err)
	assert.Equal(t, snap.Paths, got.Paths)
	assert.Equal(t, 1, got.Stats.Buckets)
}
