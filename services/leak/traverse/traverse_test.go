// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package traverse

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/leaktrace/services/leak/ignore"
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/object"
	"github.com/AleutianAI/leaktrace/services/leak/path"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strategies() map[string]func() visited.Set {
	return map[string]func() visited.Set{
		"canary":     func() visited.Set { return visited.NewCanary() },
		"identifier": func() visited.Set { return visited.NewIdentifier() },
		"bucket":     func() visited.Set { return visited.NewBucket() },
		"linear":     func() visited.Set { return visited.NewLinear() },
	}
}

func run(t *testing.T, root node.Node, checker Checker, opts ...Option) *Result {
	t.Helper()
	opts = append([]Option{WithLabel("root"), WithSilent()}, opts...)
	res, err := Traverse(context.Background(), root, checker, opts...)
	require.NoError(t, err)
	return res
}

func matchStrings(res *Result) []string {
	out := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		out[i] = m.Path.String()
	}
	return out
}

func TestTraverse_CycleSafety(t *testing.T) {
	for name, mk := range strategies() {
		t.Run(name, func(t *testing.T) {
			a := object.New()
			a.Set("self", a)
			root := object.New().Set("a", a)

			res := run(t, root, MatchIdentity(a), WithSet(mk()), WithDebug(true))

			assert.Equal(t, []string{"root.a"}, matchStrings(res))
			assert.Equal(t, 2, res.Stats.Unique)
			assert.Contains(t, res.Paths, "root/a/self")
			assert.NotContains(t, res.Paths, "root/a/self/self")
			assert.Len(t, res.Paths, 3)
		})
	}
}

func TestTraverse_SharedSubgraph(t *testing.T) {
	hasV42 := func(n node.Node, _ path.Path, _ bool) bool {
		if n.Kind() != node.KindComposite {
			return false
		}
		v, err := n.Get("v")
		return err == nil && node.Equal(v, 42)
	}

	for name, mk := range strategies() {
		t.Run(name, func(t *testing.T) {
			shared := object.New().Set("v", 42)
			root := object.New().Set("x", shared).Set("y", shared)

			res := run(t, root, hasV42, WithSet(mk()))
			assert.Equal(t, []string{"root.x"}, matchStrings(res))

			res = run(t, root, hasV42, WithSet(mk()), WithTraverseMultiple(true))
			assert.Equal(t, []string{"root.x", "root.y"}, matchStrings(res))
		})
	}
}

func chain(n int) *object.Object {
	root := object.New()
	cur := root
	for i := 1; i < n; i++ {
		next := object.New()
		cur.Set("next", next)
		cur = next
	}
	return root
}

func TestTraverse_DepthCeiling(t *testing.T) {
	root := chain(101)

	_, err := Traverse(context.Background(), root, MatchNone(), WithSilent(), WithLabel("root"), WithMaxDepth(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDepthExceeded))

	var depthErr *DepthError
	require.True(t, errors.As(err, &depthErr))
	assert.Equal(t, 100, depthErr.Limit)
	assert.Len(t, depthErr.Path, 101)

	res, err := Traverse(context.Background(), root, MatchNone(), WithSilent(), WithMaxDepth(101))
	require.NoError(t, err)
	assert.Equal(t, 101, res.Stats.Unique)
}

func TestTraverse_DefaultDepthIs100(t *testing.T) {
	_, err := Traverse(context.Background(), chain(101), MatchNone(), WithSilent())
	assert.ErrorIs(t, err, ErrDepthExceeded)

	_, err = Traverse(context.Background(), chain(100), MatchNone(), WithSilent())
	assert.NoError(t, err)
}

func TestTraverse_SwallowErrors(t *testing.T) {
	res, err := Traverse(context.Background(), chain(101), MatchAll(),
		WithSilent(), WithMaxDepth(100), WithSwallowErrors(true))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Matches, 101, "partial result includes the offending node's match")
}

func TestTraverse_UnstableRepresentationHitsCeiling(t *testing.T) {
	calls := 0
	a := object.New().SetRepr(func() (string, error) {
		calls++
		return string(rune('a' + calls%26)), nil
	})
	a.Set("self", a)

	_, err := Traverse(context.Background(), a, MatchNone(), WithSilent(), WithSet(visited.NewBucket()))
	assert.ErrorIs(t, err, ErrDepthExceeded)
}

func TestTraverse_Ignore(t *testing.T) {
	reads := 0
	plugin := object.NewHost("Plugin").
		Set("description", "Shockwave").
		Set("enabledPlugin", object.New()).
		Set("suffixes", "swf").
		Set("type", "application/x-shockwave-flash").
		Getter("child", func() (any, error) {
			reads++
			return 1234, nil
		})
	root := object.New().Set("plugin", plugin).Set("other", 1234)

	res := run(t, root, MatchValue(1234), WithDebug(true))
	assert.Equal(t, []string{"root.other"}, matchStrings(res))
	assert.Zero(t, reads, "ignored node is never enumerated")
	assert.Equal(t, 1, res.Ignored)
	assert.NotContains(t, res.Paths, "root/plugin")

	res = run(t, root, MatchValue(1234), WithIgnore(ignore.None()), WithTraverseMultiple(true))
	assert.Equal(t, []string{"root.other", "root.plugin.child"}, matchStrings(res))
	assert.Equal(t, 1, reads)
}

func TestTraverse_MarkersFilteredOnLaterRuns(t *testing.T) {
	host := object.NewHost("HTMLElement").Set("id", "main")
	root := object.New().Set("el", host)

	canary := visited.NewCanary()
	run(t, root, MatchNone(), WithSet(canary))

	keys, err := host.Keys()
	require.NoError(t, err)
	require.Contains(t, keys, canary.MarkerName(), "host objects expose markers")

	res := run(t, root, MatchNone(), WithDebug(true))
	assert.Equal(t, 1, res.Ignored)
	for h := range res.Paths {
		assert.NotContains(t, h, "CANARY")
	}
}

func TestTraverse_Prototypes(t *testing.T) {
	target := object.New()
	proto := object.New().Set("short", target)
	root := object.New().
		Set("deep", object.New().Set("deeper", target)).
		SetPrototype(proto)

	t.Run("own paths win", func(t *testing.T) {
		res := run(t, root, MatchIdentity(target), WithTraversePrototypes(true), WithDebug(true))
		assert.Equal(t, []string{"root.deep.deeper"}, matchStrings(res))
		assert.Contains(t, res.Paths, "root/short")
		assert.Contains(t, res.Paths, "root/__proto__")
	})

	t.Run("multiple reports inherited path last", func(t *testing.T) {
		res := run(t, root, MatchIdentity(target), WithTraversePrototypes(true), WithTraverseMultiple(true))
		assert.Equal(t, []string{"root.deep.deeper", "root.short", "root.__proto__.short"}, matchStrings(res))
	})

	t.Run("inherited attributes skipped by default", func(t *testing.T) {
		res := run(t, root, MatchIdentity(target), WithDebug(true), WithTraverseMultiple(true))
		assert.Equal(t, []string{"root.deep.deeper"}, matchStrings(res))
		assert.NotContains(t, res.Paths, "root/short")
		assert.NotContains(t, res.Paths, "root/__proto__")
	})
}

func TestTraverse_Order(t *testing.T) {
	t1, t2 := object.New(), object.New()
	root := object.New().
		Set("a", object.New().Set("x", t1)).
		Set("b", object.New().Set("y", t2))
	isTarget := MatchAny(MatchIdentity(t1), MatchIdentity(t2))

	res := run(t, root, isTarget)
	assert.Equal(t, []string{"root.a.x", "root.b.y"}, matchStrings(res))

	res = run(t, root, isTarget, WithDFS(true))
	assert.Equal(t, []string{"root.b.y", "root.a.x"}, matchStrings(res))
}

func TestTraverse_BFSFindsShortestPathFirst(t *testing.T) {
	target := object.New()
	root := object.New().
		Set("long", object.New().Set("way", object.New().Set("round", target))).
		Set("short", target)

	res := run(t, root, MatchIdentity(target))
	assert.Equal(t, []string{"root.short"}, matchStrings(res))
}

func TestTraverse_ExtraNames(t *testing.T) {
	leaked := object.New()
	fn := object.NewNamed("Function").Hide("prototype", object.New().Set("cache", leaked))
	root := object.New().Set("fn", fn)

	res := run(t, root, MatchIdentity(leaked), WithDebug(true))
	assert.Equal(t, []string{"root.fn.prototype.cache"}, matchStrings(res))
	assert.NotContains(t, res.Paths, "root/prototype", "undefined extra names are not visited")

	res = run(t, root, MatchIdentity(leaked), WithExtraNames())
	assert.Empty(t, res.Matches)
}

func TestTraverse_AccessFailuresAreRecovered(t *testing.T) {
	broken := object.New().Set("x", 1).FailEnumeration(errors.New("cross-origin"))
	root := object.New().
		Guard("locked").
		Set("broken", broken).
		Set("fine", 1234)

	res := run(t, root, MatchValue(1234))
	assert.Equal(t, []string{"root.fine"}, matchStrings(res))
	assert.Equal(t, 2, res.AccessErrors)
}

func TestTraverse_DebugIndex(t *testing.T) {
	shared := object.New().Set("v", 1)
	root := object.New().Set("a", shared).Set("b", shared)

	res := run(t, root, MatchNone(), WithDebug(true))
	assert.Equal(t, 0, res.DuplicatePaths)
	require.Len(t, res.Paths, 4, "root.b is reached but not expanded")
	assert.Equal(t, path.Path{"root", "a", "v"}, res.Paths["root/a/v"])
	assert.Equal(t, res.Nodes["root/a"], res.Nodes["root/b"])
	assert.Equal(t, 4, res.Visited)

	res = run(t, root, MatchNone())
	assert.Nil(t, res.Paths)
	assert.Nil(t, res.Nodes)
}

// dupKeys lists one attribute twice.
type dupKeys struct{ *object.Object }

func (d dupKeys) Keys() ([]string, error) { return []string{"a", "a"}, nil }

func TestTraverse_DuplicateKeysVisitedOnce(t *testing.T) {
	root := dupKeys{object.New().Set("a", 1)}
	res := run(t, root, MatchValue(1), WithDebug(true), WithTraverseMultiple(true))
	assert.Equal(t, []string{"root.a"}, matchStrings(res))
}

func TestTraverse_Soundness(t *testing.T) {
	type entry struct {
		Key   string
		Value int
		Next  *entry
	}
	type cache struct {
		Entries map[string]*entry
		Recent  []*entry
		self    *cache
	}
	e2 := &entry{Key: "b", Value: 1234}
	e1 := &entry{Key: "a", Value: 7, Next: e2}
	e2.Next = e1
	c := &cache{Entries: map[string]*entry{"a": e1, "b": e2}, Recent: []*entry{e2}}
	c.self = c

	root := node.Reflect(c)
	checker := MatchValue(1234)
	for name, mk := range strategies() {
		t.Run(name, func(t *testing.T) {
			res := run(t, root, checker, WithSet(mk()), WithTraverseMultiple(true))
			require.NotEmpty(t, res.Matches)
			for _, m := range res.Matches {
				got, err := node.Resolve(root, m.Path)
				require.NoError(t, err)
				assert.True(t, node.Same(m.Node, got), m.Path.String())
				assert.True(t, checker(got, m.Path, false), m.Path.String())
			}
			assert.Equal(t, []string{"root.Entries.b.Value"}, matchStrings(res))
		})
	}
}

func TestTraverse_Completeness(t *testing.T) {
	leaf := func(v int) *object.Object { return object.New().Set("v", v) }
	l1, l2, l3 := leaf(1), leaf(1), leaf(2)
	root := object.New().
		Set("p", object.New().Set("l1", l1).Set("l3", l3)).
		Set("q", object.NewArray(l2, l1))

	isOne := func(n node.Node, _ path.Path, _ bool) bool {
		if n.Kind() != node.KindComposite {
			return false
		}
		v, err := n.Get("v")
		return err == nil && node.Equal(v, 1)
	}

	res := run(t, root, isOne)
	assert.ElementsMatch(t, []string{"root.p.l1", "root.q[0]"}, matchStrings(res))

	res = run(t, root, isOne, WithTraverseMultiple(true))
	assert.ElementsMatch(t, []string{"root.p.l1", "root.q[0]", "root.q[1]"}, matchStrings(res))
}

func TestTraverse_CompletenessWithCollidingMapKeys(t *testing.T) {
	heap := map[any]any{1: "one", "1": "leak", int64(1): "leak too"}

	for name, newSet := range strategies() {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 8; i++ {
				res := run(t, node.Reflect(heap), MatchValue("leak"), WithSet(newSet()))
				require.Equal(t, []string{"root[1]"}, matchStrings(res))

				res = run(t, node.Reflect(heap), MatchValue("leak too"), WithSet(newSet()))
				require.Equal(t, []string{`root["int64(1)"]`}, matchStrings(res))
			}
		})
	}
}

func TestTraverse_Arguments(t *testing.T) {
	_, err := Traverse(context.Background(), nil, MatchAll())
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = Traverse(context.Background(), object.New(), nil)
	assert.ErrorIs(t, err, ErrNoChecker)
}

func TestTraverse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Traverse(ctx, object.New(), MatchAll(), WithSilent())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Matches)
}

func TestTraverse_PrimitiveRoot(t *testing.T) {
	res := run(t, node.Value(1234), MatchValue(1234))
	assert.Equal(t, []string{"root"}, matchStrings(res))
}

func TestWithMaxDepth_Clamps(t *testing.T) {
	o := DefaultOptions()
	WithMaxDepth(0)(&o)
	assert.Equal(t, DefaultMaxDepth, o.MaxDepth)
	WithMaxDepth(MaxDepthLimit + 1)(&o)
	assert.Equal(t, MaxDepthLimit, o.MaxDepth)
	WithMaxDepth(7)(&o)
	assert.Equal(t, 7, o.MaxDepth)
}

func TestWorklist(t *testing.T) {
	fifo := worklist{}
	lifo := worklist{lifo: true}
	for _, s := range []string{"a", "b", "c"} {
		fifo.push(item{p: path.Path{s}})
		lifo.push(item{p: path.Path{s}})
	}

	var got []string
	for it, ok := fifo.pop(); ok; it, ok = fifo.pop() {
		got = append(got, it.p.Root())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got = nil
	for it, ok := lifo.pop(); ok; it, ok = lifo.pop() {
		got = append(got, it.p.Root())
	}
	assert.Equal(t, []string{"c", "b", "a"}, got)
}
