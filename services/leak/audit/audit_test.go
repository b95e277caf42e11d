// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/leaktrace/services/leak/diff"
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/object"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() []traverse.Option {
	return []traverse.Option{traverse.WithLabel("root"), traverse.WithSilent()}
}

// leakyGraph mixes cycles, shared subgraphs, primitives, arrays, host
// objects, a prototype chain, frozen objects that refuse markers and
// objects whose representation fails.
func leakyGraph() *object.Object {
	failing := func() (string, error) { return "", errors.New("representation unavailable") }
	sealed := object.New().Set("state", "closed").Set("opaque", object.New().SetRepr(failing).Set("n", 2))
	sealed.Freeze()
	broken := object.New().SetRepr(failing).Set("nested", object.New().Set("x", 1).Freeze())
	broken.Set("self", broken)
	broken.Freeze()

	listener := object.New().Set("id", 1234)
	session := object.NewNamed("Session").Set("listener", listener)
	session.Set("self", session)

	base := object.New().Set("inherited", listener)
	plugin := object.NewHost("Plugin").
		Set("description", "pdf").
		Set("filename", "pdf.so").
		Set("name", "PDF").
		Set("item", object.New()).
		Set("namedItem", object.New())

	return object.New().
		Set("sessions", object.NewArray(session, session)).
		Set("cache", object.New().SetPrototype(base).Set("hit", listener)).
		Set("plugin", plugin).
		Set("device", object.NewHost("Device").Set("listener", listener)).
		Set("count", 3).
		Set("sealed", sealed).
		Set("broken", object.NewArray(broken, broken))
}

func TestCompareStrategies_Agree(t *testing.T) {
	root := leakyGraph()

	cmp, err := CompareStrategies(context.Background(), root, traverse.MatchValue(1234), nil, quiet()...)
	require.NoError(t, err)

	require.Len(t, cmp.Runs, 4)
	assert.Len(t, cmp.Pairs, 6)
	for _, p := range cmp.Pairs {
		assert.Truef(t, p.Agree(), "%s vs %s: paths %s, matches %s", p.Before, p.After, p.Paths, p.Matches)
	}
	assert.True(t, cmp.Agree())
	assert.Empty(t, cmp.Disagreements())

	for _, r := range cmp.Runs {
		assert.NotEmpty(t, r.Result.Paths, r.Strategy)
		assert.Equal(t, []string{"root.sessions[0].listener.id"}, pathStrings(r.Result), r.Strategy)
		assert.Contains(t, r.Result.Paths, "root/broken/0/self", r.Strategy)
		assert.Contains(t, r.Result.Paths, "root/sealed/opaque/n", r.Strategy)

		stats := r.Result.Stats
		switch stats.Strategy {
		case visited.StrategyCanary, visited.StrategyIdentifier:
			assert.Positive(t, stats.Fallback)
			assert.Positive(t, stats.Marked)
			assert.Equal(t, 1, stats.Unknown, "only the frozen object with a failing representation reaches the fallback bucket")
		case visited.StrategyBucket:
			assert.Equal(t, 2, stats.Unknown)
		}
	}
}

func TestCompareStrategies_ReflectedGraph(t *testing.T) {
	type session struct {
		ID    int
		Owner string
	}
	type heap struct {
		Sessions map[string]session
		Recent   [2]session
		Cache    map[any]any
	}
	h := &heap{
		Sessions: map[string]session{"a": {ID: 1234, Owner: "ada"}, "b": {ID: 7}},
		Recent:   [2]session{{ID: 1234}, {ID: 8}},
		Cache:    map[any]any{1: "one", "1": 1234},
	}
	root := node.Reflect(h)
	opts := append(quiet(), traverse.WithTraverseMultiple(true))

	cmp, err := CompareStrategies(context.Background(), root, traverse.MatchValue(1234), nil, opts...)
	require.NoError(t, err)
	for _, p := range cmp.Pairs {
		assert.Truef(t, p.Agree(), "%s vs %s: paths %s, matches %s", p.Before, p.After, p.Paths, p.Matches)
	}
	for _, r := range cmp.Runs {
		assert.ElementsMatch(t, []string{
			"root.Sessions.a.ID",
			"root.Recent[0].ID",
			"root.Cache[1]",
		}, pathStrings(r.Result), r.Strategy)
	}

	entry, err := node.Resolve(root, []string{"root", "Sessions", "a"})
	require.NoError(t, err)
	cmp, err = CompareStrategies(context.Background(), root, traverse.MatchIdentity(entry), []string{"bucket", "linear"}, quiet()...)
	require.NoError(t, err)
	assert.True(t, cmp.Agree())
	assert.Equal(t, []string{"root.Sessions.a"}, pathStrings(cmp.Runs[0].Result))
}

func TestCompareStrategies_AgreeWithMultipleAndPrototypes(t *testing.T) {
	root := leakyGraph()
	opts := append(quiet(), traverse.WithTraverseMultiple(true), traverse.WithTraversePrototypes(true))

	listener, err := node.Resolve(root, []string{"root", "device", "listener"})
	require.NoError(t, err)

	cmp, err := CompareStrategies(context.Background(), root, traverse.MatchIdentity(listener), []string{"bucket", "canary", "identifier"}, opts...)
	require.NoError(t, err)
	assert.True(t, cmp.Agree())

	matches := pathStrings(cmp.Runs[0].Result)
	assert.Contains(t, matches, "root.sessions[0].listener")
	assert.Contains(t, matches, "root.cache.hit")
	assert.Contains(t, matches, "root.device.listener")
	assert.Contains(t, matches, "root.cache.inherited")
}

func TestCompareStrategies_MarkersLeftByEarlierRuns(t *testing.T) {
	host := object.NewHost("Window").Set("v", 1)
	root := object.New().Set("w", host)

	cmp, err := CompareStrategies(context.Background(), root, traverse.MatchNone(), []string{"canary", "identifier", "canary", "linear"}, quiet()...)
	require.NoError(t, err)
	assert.True(t, cmp.Agree())

	// Host objects carry enumerable markers from every marker run.
	keys, err := host.Keys()
	require.NoError(t, err)
	assert.Greater(t, len(keys), 1)
}

func TestCompareStrategies_Errors(t *testing.T) {
	root := object.New().Set("a", object.New().Set("b", object.New()))

	_, err := CompareStrategies(context.Background(), root, traverse.MatchNone(), []string{})
	assert.ErrorIs(t, err, ErrNoStrategies)

	_, err = CompareStrategies(context.Background(), root, traverse.MatchNone(), []string{"bucket", "bogus"}, quiet()...)
	assert.ErrorIs(t, err, visited.ErrUnknownStrategy)

	opts := append(quiet(), traverse.WithMaxDepth(2))
	_, err = CompareStrategies(context.Background(), root, traverse.MatchNone(), []string{"linear"}, opts...)
	require.ErrorIs(t, err, traverse.ErrDepthExceeded)
	assert.Contains(t, err.Error(), "strategy linear")
}

func TestComparison_Disagreements(t *testing.T) {
	bad := Pair{
		Before:  "a",
		After:   "b",
		Paths:   diff.Diff(map[string]any{"root": 1}, map[string]any{"root": 2}),
		Matches: diff.Diff[struct{}](nil, nil),
	}
	good := Pair{Before: "a", After: "c", Paths: diff.Diff[any](nil, nil), Matches: diff.Diff[struct{}](nil, nil)}

	cmp := &Comparison{Pairs: []Pair{good, bad}}
	assert.False(t, cmp.Agree())
	assert.Equal(t, []Pair{bad}, cmp.Disagreements())
}

func TestSnapshot_Changes(t *testing.T) {
	ctx := context.Background()
	first, second := object.New(), object.New()
	kept := object.New()
	cache := object.New().Set("a", kept)
	root := object.New().Set("cache", cache).Set("x", first)

	before, err := Take(ctx, "before", root, quiet()...)
	require.NoError(t, err)
	assert.Equal(t, "before", before.Name)
	assert.NotEmpty(t, before.ID)
	assert.Contains(t, before.Paths, "root/cache/a")

	cache.Delete("a")
	cache.Set("b", kept)
	root.Set("x", second)

	after, err := Take(ctx, "after", root, quiet()...)
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)

	changes := Changes(before, after)
	assert.Equal(t, []string{"root/cache/b"}, changes.Added)
	assert.Equal(t, []string{"root/cache/a"}, changes.Removed)
	assert.Equal(t, []string{"root/x"}, changes.Changed)

	changes = Changes(before, after, diff.WithIgnore("root/x"))
	assert.Empty(t, changes.Changed)
}

func TestSnapshot_PathChangesAcrossGraphs(t *testing.T) {
	ctx := context.Background()
	load := func(cacheKey string) *object.Object {
		return object.New().Set("cache", object.New().Set(cacheKey, object.New())).Set("n", 1)
	}

	before, err := Take(ctx, "before", load("a"), quiet()...)
	require.NoError(t, err)
	after, err := Take(ctx, "after", load("b"), quiet()...)
	require.NoError(t, err)

	// Identities differ for every composite, values match for primitives.
	assert.Equal(t, []string{"root", "root/cache"}, Changes(before, after).Changed)

	changes := PathChanges(before, after)
	assert.Equal(t, []string{"root/cache/b"}, changes.Added)
	assert.Equal(t, []string{"root/cache/a"}, changes.Removed)
	assert.Empty(t, changes.Changed)

	assert.Len(t, PathChanges(nil, after).Added, 4)
}

func TestSnapshot_NilBefore(t *testing.T) {
	root := object.New().Set("a", 1)
	after, err := Take(context.Background(), "after", root, quiet()...)
	require.NoError(t, err)

	changes := Changes(nil, after)
	assert.Equal(t, []string{"root", "root/a"}, changes.Added)
}

func TestSnapshot_ReflectedGraph(t *testing.T) {
	type entry struct {
		Name string
		Next *entry
	}
	tail := &entry{Name: "tail"}
	head := &entry{Name: "head", Next: tail}
	tail.Next = head

	snap, err := Take(context.Background(), "go", node.Reflect(head), quiet()...)
	require.NoError(t, err)
	assert.Contains(t, snap.Paths, "root/Next/Next")
	assert.NotContains(t, snap.Paths, "root/Next/Next/Next")
}

func TestSnapshot_ReflectedValuesUnchanged(t *testing.T) {
	type limit struct {
		Max  int
		Tags []string
	}
	type registry struct {
		Limits map[string]limit
	}
	reg := &registry{Limits: map[string]limit{"api": {Max: 10, Tags: []string{"x"}}, "db": {Max: 3}}}

	before, err := Take(context.Background(), "before", node.Reflect(reg), quiet()...)
	require.NoError(t, err)
	after, err := Take(context.Background(), "after", node.Reflect(reg), quiet()...)
	require.NoError(t, err)
	assert.True(t, Changes(before, after).Empty(), "walking an unchanged graph twice reports nothing")

	reg.Limits["api"] = limit{Max: 11, Tags: reg.Limits["api"].Tags}
	after, err = Take(context.Background(), "after", node.Reflect(reg), quiet()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"root/Limits/api/Max"}, Changes(before, after).Changed)
}

func TestTake_Error(t *testing.T) {
	root := object.New().Set("a", object.New().Set("b", object.New()))
	opts := append(quiet(), traverse.WithMaxDepth(1))

	_, err := Take(context.Background(), "deep", root, opts...)
	require.ErrorIs(t, err, traverse.ErrDepthExceeded)
	assert.Contains(t, err.Error(), "snapshot deep")
}

func TestTakeAll(t *testing.T) {
	ctx := context.Background()
	graphs := []Graph{
		{Name: "before", Root: object.New().Set("cache", object.New().Set("a", 1))},
		{Name: "after", Root: object.New().Set("cache", object.New().Set("a", 1).Set("b", 2))},
	}
	options := func() ([]traverse.Option, error) {
		set, err := visited.New("canary")
		if err != nil {
			return nil, err
		}
		return append(quiet(), traverse.WithSet(set)), nil
	}

	snaps, err := TakeAll(ctx, graphs, options)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "before", snaps[0].Name)
	assert.Equal(t, "after", snaps[1].Name)
	assert.NotEqual(t, snaps[0].ID, snaps[1].ID)
	assert.Equal(t, []string{"root/cache/b"}, PathChanges(snaps[0], snaps[1]).Added)

	t.Run("walk error", func(t *testing.T) {
		deep := append(graphs, Graph{Name: "deep", Root: object.New().Set("a", object.New().Set("b", object.New()))})
		_, err := TakeAll(ctx, deep, func() ([]traverse.Option, error) {
			return append(quiet(), traverse.WithMaxDepth(1)), nil
		})
		require.ErrorIs(t, err, traverse.ErrDepthExceeded)
	})

	t.Run("options error", func(t *testing.T) {
		_, err := TakeAll(ctx, graphs, func() ([]traverse.Option, error) {
			_, err := visited.New("bogus")
			return nil, err
		})
		require.ErrorIs(t, err, visited.ErrUnknownStrategy)
	})

	t.Run("empty", func(t *testing.T) {
		snaps, err := TakeAll(ctx, nil, options)
		require.NoError(t, err)
		assert.Empty(t, snaps)
	})
}

func pathStrings(r *traverse.Result) []string {
	out := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Path.String()
	}
	return out
}
