// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package object

import (
	"errors"
	"testing"

	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML_Basic(t *testing.T) {
	root, err := LoadYAML([]byte(`
name: heap
count: 3
items: [a, b]
empty:
`))
	require.NoError(t, err)

	keys, err := root.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "count", "items", "empty"}, keys)

	v, err := root.Get("count")
	require.NoError(t, err)
	assert.True(t, node.Equal(v, 3))

	items, err := root.Get("items")
	require.NoError(t, err)
	first, err := items.Get("0")
	require.NoError(t, err)
	assert.True(t, node.Equal(first, "a"))

	length, err := items.Get("length")
	require.NoError(t, err)
	assert.True(t, node.Equal(length, 2))

	empty, err := root.Get("empty")
	require.NoError(t, err)
	assert.Equal(t, node.Null, empty)
}

func TestLoadYAML_SharedAndCyclic(t *testing.T) {
	root, err := LoadYAML([]byte(`
a: &a
  self: *a
  shared: &s
    value: 1
b:
  shared: *s
`))
	require.NoError(t, err)

	a, err := root.Get("a")
	require.NoError(t, err)
	self, err := a.Get("self")
	require.NoError(t, err)
	assert.True(t, node.Same(a, self), "alias to enclosing anchor is a cycle")

	s1, err := node.Resolve(root, []string{"root", "a", "shared"})
	require.NoError(t, err)
	s2, err := node.Resolve(root, []string{"root", "b", "shared"})
	require.NoError(t, err)
	assert.True(t, node.Same(s1, s2))
}

func TestLoadYAML_Directives(t *testing.T) {
	root, err := LoadYAML([]byte(`
base: &base
  __class__: Base
  inherited: 1
obj:
  __proto__: *base
  __class__: Thing
  __hidden__:
    secret: 42
  __guarded__: [locked]
  __frozen__: true
  own: 2
plugin:
  __host__: true
  description: flash
`))
	require.NoError(t, err)

	obj, err := root.Get("obj")
	require.NoError(t, err)
	o := obj.(*Object)

	assert.Equal(t, "Thing", o.Class())
	assert.True(t, o.Frozen())
	assert.False(t, o.SetMarker("m", 1))

	keys, err := o.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"locked", "own", "inherited"}, keys)

	secret, err := o.Get("secret")
	require.NoError(t, err)
	assert.True(t, node.Equal(secret, 42))

	_, err = o.Get("locked")
	assert.ErrorIs(t, err, ErrAccessDenied)

	proto, err := o.Get(ProtoName)
	require.NoError(t, err)
	repr, err := proto.Repr()
	require.NoError(t, err)
	assert.Equal(t, "[object Base]", repr)

	plugin, err := root.Get("plugin")
	require.NoError(t, err)
	assert.True(t, plugin.(*Object).Host())
}

func TestLoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"scalar root", "42"},
		{"empty document", ""},
		{"merge key", "base: &b {x: 1}\nobj:\n  <<: *b\n"},
		{"bad proto", "obj:\n  __proto__: 5\n"},
		{"bad hidden", "obj:\n  __hidden__: [1]\n"},
		{"bad frozen", "obj:\n  __frozen__: maybe\n"},
		{"complex key", "? [a, b]\n: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupportedYAML), "got %v", err)
		})
	}

	_, err := LoadYAML([]byte("a: [unclosed"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedYAML))
}

func TestLoadYAML_SequenceRoot(t *testing.T) {
	root, err := LoadYAML([]byte("- &x {v: 1}\n- *x\n"))
	require.NoError(t, err)
	assert.Equal(t, "Array", root.Class())

	a, err := root.Get("0")
	require.NoError(t, err)
	b, err := root.Get("1")
	require.NoError(t, err)
	assert.True(t, node.Same(a, b))
}
