// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package node defines the capability interface the tracer walks.
//
// A Node is an opaque reference into a live graph. The traversal engine
// never inspects concrete types; it only asks a node for its identity,
// its kind, its attribute names and the values behind them. Two
// implementations ship with leaktrace:
//
//   - Reflect wraps live Go values (structs, maps, slices, pointers).
//   - package object provides an explicit, mutable, dynamically-attributed
//     object model used for fixtures and YAML-described graphs.
//
// # Ownership Model
//
// Nodes are borrowed. The caller owns the underlying graph and may mutate
// it between calls; attribute sets are re-read on every enumeration.
//
// # Markers
//
// Nodes that can carry ad hoc hidden state implement Markable. Visited-set
// strategies use it to stash a marker on the node itself; nodes that do
// not implement it, or that reject the write, are tracked out of band.
package node

import (
	"fmt"
	"math"
	"reflect"

	"github.com/AleutianAI/leaktrace/services/leak/path"
)

// Kind classifies a node as carrying attributes or not.
type Kind int

const (
	// KindPrimitive nodes carry no attributes (numbers, strings, nil).
	KindPrimitive Kind = iota

	// KindComposite nodes may carry attributes.
	KindComposite
)

// String returns "primitive" or "composite".
func (k Kind) String() string {
	if k == KindComposite {
		return "composite"
	}
	return "primitive"
}

// Node is the capability interface every inspected value exposes.
type Node interface {
	// Identity returns a comparable value. Two nodes are the same node
	// exactly when their identities are equal.
	Identity() any

	// Kind reports whether the node may carry attributes.
	Kind() Kind

	// Repr returns a best-effort textual representation. It may fail or
	// be non-deterministic; callers must not rely on it for identity.
	Repr() (string, error)

	// Keys enumerates attribute names visible to enumeration, own and
	// inherited. Enumeration may fail.
	Keys() ([]string, error)

	// HasOwn reports whether name is an own attribute (including
	// attributes hidden from enumeration).
	HasOwn(name string) bool

	// Get reads an attribute. Missing attributes yield Undefined. Reading
	// may fail, e.g. when a guarded accessor refuses access.
	Get(name string) (Node, error)
}

// Markable is implemented by nodes that can carry hidden marker state.
type Markable interface {
	// Marker returns the own marker stored under name.
	Marker(name string) (any, bool)

	// SetMarker stores value under name. It returns false when the node
	// rejects the write (frozen, sealed or host-protected).
	SetMarker(name string, value any) bool
}

// Primitive is implemented by nodes that wrap a scalar value.
type Primitive interface {
	Value() any
}

// =============================================================================
// Primitive values
// =============================================================================

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

type nullValue struct{}

func (nullValue) String() string { return "null" }

var (
	// Undefined is returned for attributes that do not exist.
	Undefined Node = primitive{v: undefinedValue{}}

	// Null represents nil references.
	Null Node = primitive{v: nullValue{}}
)

// primitive wraps a canonical scalar value. Its identity is the value
// itself, so equal scalars are the same node.
type primitive struct {
	v any
}

// Value wraps a scalar Go value as a primitive node. Integers and
// integral floats are canonicalised so that 42, int64(42) and 42.0 are
// the same node. nil becomes Null.
func Value(v any) Node {
	if v == nil {
		return Null
	}
	if n, ok := v.(Node); ok {
		return n
	}
	return primitive{v: Canonical(v)}
}

func (p primitive) Identity() any           { return p.v }
func (p primitive) Kind() Kind              { return KindPrimitive }
func (p primitive) Keys() ([]string, error) { return nil, nil }
func (p primitive) HasOwn(string) bool      { return false }
func (p primitive) Get(string) (Node, error) {
	return Undefined, nil
}
func (p primitive) Value() any { return p.v }

func (p primitive) Repr() (string, error) {
	if s, ok := p.v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(p.v), nil
}

// Canonical normalises scalar values: signed integers become int64,
// unsigned integers become uint64 (or int64 when they fit), float32
// becomes float64 and integral floats become int64. Values that are not
// comparable are replaced by their %#v rendering so they can serve as
// identities.
func Canonical(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return canonicalUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return canonicalUint(x)
	case float32:
		return canonicalFloat(float64(x))
	case float64:
		return canonicalFloat(x)
	case string, bool, undefinedValue, nullValue, complex64, complex128:
		return v
	}
	if !isComparable(v) {
		return fmt.Sprintf("%#v", v)
	}
	return v
}

func canonicalUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func canonicalFloat(f float64) any {
	if f == math.Trunc(f) && f >= -(1<<63) && f < (1<<63) {
		return int64(f)
	}
	return f
}

func isComparable(v any) bool {
	return reflect.ValueOf(v).Comparable()
}

// =============================================================================
// Helpers
// =============================================================================

// IsDefined reports whether n is neither nil, Undefined nor Null.
func IsDefined(n Node) bool {
	return n != nil && n != Undefined && n != Null
}

// ValueOf returns the canonical scalar behind a primitive node.
func ValueOf(n Node) (any, bool) {
	p, ok := n.(Primitive)
	if !ok {
		return nil, false
	}
	return p.Value(), true
}

// Equal reports whether n is a primitive holding a value equal to v after
// canonicalisation.
func Equal(n Node, v any) bool {
	got, ok := ValueOf(n)
	if !ok {
		return false
	}
	return got == Canonical(v)
}

// Same reports whether a and b are the same node.
func Same(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Identity() == b.Identity()
}

// Resolve follows p from root, skipping the root label, and returns the
// node reached. Every returned match path resolves to its matched node
// as long as the graph was not mutated in between.
func Resolve(root Node, p path.Path) (Node, error) {
	cur := root
	for i := 1; i < len(p); i++ {
		next, err := cur.Get(p[i])
		if err != nil {
			return nil, fmt.Errorf("resolving %s at segment %d: %w", p, i, err)
		}
		cur = next
	}
	return cur, nil
}
