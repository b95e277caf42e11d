// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	ID    string
	owner *user
}

type user struct {
	Name     string
	Sessions []*session
	cache    map[string]any
}

func newUserGraph() *user {
	u := &user{Name: "ada", cache: map[string]any{}}
	s := &session{ID: "s1", owner: u}
	u.Sessions = []*session{s}
	u.cache["current"] = s
	u.cache["self"] = u
	return u
}

func TestReflect_StructFields(t *testing.T) {
	u := newUserGraph()
	n := Reflect(u)

	assert.Equal(t, KindComposite, n.Kind())
	keys, err := n.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Sessions", "cache"}, keys)
	assert.True(t, n.HasOwn("cache"), "unexported fields are attributes")
	assert.False(t, n.HasOwn("missing"))

	name, err := n.Get("Name")
	require.NoError(t, err)
	assert.True(t, Equal(name, "ada"))

	missing, err := n.Get("missing")
	require.NoError(t, err)
	assert.Equal(t, Undefined, missing)
}

func TestReflect_PointerIdentity(t *testing.T) {
	u := newUserGraph()
	n := Reflect(u)

	// u.Sessions[0].owner is u again.
	sessions, err := n.Get("Sessions")
	require.NoError(t, err)
	first, err := sessions.Get("0")
	require.NoError(t, err)
	owner, err := first.Get("owner")
	require.NoError(t, err)
	assert.True(t, Same(n, owner))

	// Reached through the map as well.
	cache, err := n.Get("cache")
	require.NoError(t, err)
	self, err := cache.Get("self")
	require.NoError(t, err)
	assert.True(t, Same(n, self))

	current, err := cache.Get("current")
	require.NoError(t, err)
	assert.True(t, Same(first, current))
}

func TestReflect_MapKeysSorted(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	n := Reflect(m)

	keys, err := n.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	v, err := n.Get("b")
	require.NoError(t, err)
	assert.True(t, Equal(v, 2))
	assert.True(t, n.HasOwn("c"))

	intKeys := Reflect(map[int]string{2: "two", 10: "ten"})
	keys, err = intKeys.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2", "10"}, keys)
}

func TestReflect_SliceIndices(t *testing.T) {
	s := []string{"x", "y"}
	n := Reflect(s)

	keys, err := n.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, keys)
	assert.True(t, n.HasOwn("1"))
	assert.False(t, n.HasOwn("01"))
	assert.False(t, n.HasOwn("2"))

	_, err = n.Get("5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSuchAttribute))
}

func TestReflect_NilValues(t *testing.T) {
	var p *user
	assert.Equal(t, Null, Reflect(p))
	assert.Equal(t, Null, Reflect(nil))

	var m map[string]int
	assert.Equal(t, Null, Reflect(m))

	n := Reflect(&user{})
	cache, err := n.Get("cache")
	require.NoError(t, err)
	assert.Equal(t, Null, cache)
}

func TestReflect_Scalars(t *testing.T) {
	assert.True(t, Equal(Reflect(int32(5)), 5))
	assert.True(t, Equal(Reflect(uint16(5)), 5))
	assert.True(t, Equal(Reflect(2.0), 2))
	assert.True(t, Equal(Reflect(true), true))
	assert.Equal(t, KindPrimitive, Reflect("s").Kind())

	type hidden struct{ n int }
	h := &hidden{n: 9}
	v, err := Reflect(h).Get("n")
	require.NoError(t, err)
	assert.True(t, Equal(v, 9), "unexported scalars are readable")
}

func TestReflect_Repr(t *testing.T) {
	u := newUserGraph()
	repr, err := Reflect(u).Repr()
	require.NoError(t, err)
	assert.Contains(t, repr, "node.user@0x")

	again, err := Reflect(u).Repr()
	require.NoError(t, err)
	assert.Equal(t, repr, again, "addressable values have a stable representation")

	type pair struct{ A, B int }
	repr, err = Reflect(pair{}).Repr()
	require.NoError(t, err)
	assert.Equal(t, "node.pair", repr)
}

func TestReflect_FuncAndChanAreLeaves(t *testing.T) {
	fn := Reflect(func() {})
	assert.Equal(t, KindComposite, fn.Kind())
	keys, err := fn.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	ch := make(chan int)
	assert.True(t, Same(Reflect(ch), Reflect(ch)))
}

type account struct {
	Owner string
	Limit int
	tags  []string
}

func TestReflect_ValueIdentityIsStable(t *testing.T) {
	accounts := map[string]account{"a": {Owner: "ada", Limit: 1234, tags: []string{"x"}}}

	get := func(root Node, names ...string) Node {
		t.Helper()
		n := root
		for _, name := range names {
			var err error
			n, err = n.Get(name)
			require.NoError(t, err)
		}
		return n
	}

	t.Run("map values", func(t *testing.T) {
		first := get(Reflect(accounts), "a")
		second := get(Reflect(accounts), "a")
		assert.Equal(t, KindComposite, first.Kind())
		assert.True(t, Same(first, second), "unchanged map entry keeps its identity")

		root := Reflect(accounts)
		assert.True(t, Same(get(root, "a"), get(root, "a")))
	})

	t.Run("nested in value", func(t *testing.T) {
		type wrapper struct{ Inner account }
		m := map[int]wrapper{1: {Inner: account{Owner: "bob"}}}
		first := get(Reflect(m), "1", "Inner")
		second := get(Reflect(m), "1", "Inner")
		assert.True(t, Same(first, second))
		assert.False(t, Same(first, get(Reflect(m), "1")), "field differs from its container")
	})

	t.Run("distinct entries", func(t *testing.T) {
		twins := map[string]account{"x": {Owner: "same"}, "y": {Owner: "same"}}
		root := Reflect(twins)
		assert.False(t, Same(get(root, "x"), get(root, "y")), "equal values in different slots are different nodes")
	})

	t.Run("root by value", func(t *testing.T) {
		type point struct{ X, Y int }
		assert.True(t, Same(Reflect(point{1, 2}), Reflect(point{1, 2})))
		assert.False(t, Same(Reflect(point{1, 2}), Reflect(point{2, 1})))

		acct := account{Owner: "ada", tags: []string{"x"}}
		assert.True(t, Same(Reflect(acct), Reflect(acct)), "non-comparable roots are identified by type")
	})
}

func TestReflect_CollidingMapKeys(t *testing.T) {
	m := map[any]any{1: "one", "1": "leak", int64(1): "wide"}

	for i := 0; i < 8; i++ {
		n := Reflect(m)
		keys, err := n.Keys()
		require.NoError(t, err)
		require.Equal(t, []string{"1", "int(1)", "int64(1)"}, keys)

		for name, want := range map[string]string{"1": "leak", "int(1)": "one", "int64(1)": "wide"} {
			v, err := n.Get(name)
			require.NoError(t, err)
			assert.Truef(t, Equal(v, want), "%s = %v", name, v)
			assert.True(t, n.HasOwn(name))
		}
	}

	t.Run("renamed key already taken", func(t *testing.T) {
		n := Reflect(map[any]any{1: "a", "1": "b", "int(1)": "c"})
		keys, err := n.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "int(1)", "int(1)#2"}, keys)

		v, err := n.Get("int(1)")
		require.NoError(t, err)
		assert.True(t, Equal(v, "c"), "bare string key keeps its name")
		v, err = n.Get("int(1)#2")
		require.NoError(t, err)
		assert.True(t, Equal(v, "a"))
	})

	t.Run("no collision keeps bare names", func(t *testing.T) {
		keys, err := Reflect(map[any]any{1: "a", "2": "b"}).Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, keys)
	})
}
