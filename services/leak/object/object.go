// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package object provides a mutable, dynamically-attributed object model.
//
// Objects carry named slots (enumerable or hidden), an optional prototype
// link whose enumerable slots are inherited, and a handful of behaviours
// found in scripting-language heaps that a reachability tracer has to cope
// with: frozen objects that reject writes, host objects that expose every
// write to enumeration, accessors that fail on read and objects whose
// enumeration fails outright.
//
// *Object implements node.Node and node.Markable directly, so a graph built
// here can be handed to the tracer as is. LoadYAML builds such graphs from
// YAML documents, with anchors and aliases describing shared and cyclic
// references.
//
// # Thread Safety
//
// Objects are NOT safe for concurrent use. Build a graph, then trace it
// from one goroutine.
package object

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/AleutianAI/leaktrace/services/leak/node"
)

// ProtoName is the pseudo-attribute that reads an object's prototype. It is
// never an own attribute and never enumerated.
const ProtoName = "__proto__"

// ErrAccessDenied is the error returned by accessors installed with Guard.
var ErrAccessDenied = errors.New("attribute access denied")

// Getter computes an attribute value on every read.
type Getter func() (any, error)

type slot struct {
	value  any
	hidden bool
	getter Getter
}

// Object is a node in a mutable, dynamically-attributed graph.
type Object struct {
	class   string
	order   []string
	slots   map[string]*slot
	proto   *Object
	frozen  bool
	host    bool
	repr    func() (string, error)
	enumErr error
}

// New creates an empty ordinary object of class "Object".
func New() *Object {
	return NewNamed("Object")
}

// NewNamed creates an empty ordinary object of the given class. The class
// only affects Repr.
func NewNamed(class string) *Object {
	return &Object{class: class, slots: make(map[string]*slot)}
}

// NewHost creates a host object. Host objects accept markers but store them
// as ordinary enumerable attributes, the way some embedder-provided objects
// ignore attempts to hide properties.
func NewHost(class string) *Object {
	o := NewNamed(class)
	o.host = true
	return o
}

// NewArray creates an object of class "Array" holding values at indices
// 0..n-1 with a hidden length attribute.
func NewArray(values ...any) *Object {
	o := NewNamed("Array")
	for i, v := range values {
		o.Set(strconv.Itoa(i), v)
	}
	o.Hide("length", len(values))
	return o
}

// Set stores an enumerable attribute and returns o for chaining. Writes to
// a frozen object are ignored. Setting ProtoName replaces the prototype.
func (o *Object) Set(name string, value any) *Object {
	return o.put(name, &slot{value: value})
}

// Hide stores an attribute hidden from enumeration.
func (o *Object) Hide(name string, value any) *Object {
	return o.put(name, &slot{value: value, hidden: true})
}

// Getter installs an enumerable accessor evaluated on every read.
func (o *Object) Getter(name string, fn Getter) *Object {
	return o.put(name, &slot{getter: fn})
}

// Guard installs an enumerable accessor that always fails with
// ErrAccessDenied.
func (o *Object) Guard(name string) *Object {
	return o.Getter(name, func() (any, error) {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, name)
	})
}

func (o *Object) put(name string, s *slot) *Object {
	if o.frozen {
		return o
	}
	if name == ProtoName {
		if p, ok := s.value.(*Object); ok || s.value == nil {
			return o.SetPrototype(p)
		}
		return o
	}
	if _, exists := o.slots[name]; !exists {
		o.order = append(o.order, name)
	}
	o.slots[name] = s
	return o
}

// SetPrototype links o to p. A nil p clears the link. Cycles in the
// prototype chain are rejected and leave o unchanged.
func (o *Object) SetPrototype(p *Object) *Object {
	if o.frozen {
		return o
	}
	for q := p; q != nil; q = q.proto {
		if q == o {
			return o
		}
	}
	o.proto = p
	return o
}

// Prototype returns the prototype, or nil.
func (o *Object) Prototype() *Object { return o.proto }

// Freeze makes o reject every further write, markers included.
func (o *Object) Freeze() *Object {
	o.frozen = true
	return o
}

// Frozen reports whether Freeze was called.
func (o *Object) Frozen() bool { return o.frozen }

// Host reports whether o was created with NewHost.
func (o *Object) Host() bool { return o.host }

// Class returns the class name shown by Repr.
func (o *Object) Class() string { return o.class }

// Delete removes an own attribute. It reports whether one was removed.
func (o *Object) Delete(name string) bool {
	if o.frozen {
		return false
	}
	if _, ok := o.slots[name]; !ok {
		return false
	}
	delete(o.slots, name)
	for i, k := range o.order {
		if k == name {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return true
}

// Lookup returns the raw value stored in an own slot without running
// accessors.
func (o *Object) Lookup(name string) (any, bool) {
	s, ok := o.slots[name]
	if !ok || s.getter != nil {
		return nil, false
	}
	return s.value, true
}

// OwnKeys returns every own attribute name, hidden ones included, in
// insertion order.
func (o *Object) OwnKeys() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// SetRepr overrides the textual representation. fn may fail or return a
// different string on every call.
func (o *Object) SetRepr(fn func() (string, error)) *Object {
	o.repr = fn
	return o
}

// FailEnumeration makes Keys return err until it is called again with nil.
func (o *Object) FailEnumeration(err error) *Object {
	o.enumErr = err
	return o
}

// =============================================================================
// node.Node
// =============================================================================

// Identity returns o itself.
func (o *Object) Identity() any { return o }

// Kind is always composite.
func (o *Object) Kind() node.Kind { return node.KindComposite }

// Repr returns "[object <Class>]" unless overridden by SetRepr.
func (o *Object) Repr() (string, error) {
	if o.repr != nil {
		return o.repr()
	}
	return "[object " + o.class + "]", nil
}

// Keys enumerates visible attributes the way a for-in loop does:
// canonical integer keys in ascending order, then the remaining own keys
// in insertion order, then inherited keys not shadowed by an own or nearer
// attribute. Hidden attributes are skipped but still shadow.
func (o *Object) Keys() ([]string, error) {
	if o.enumErr != nil {
		return nil, o.enumErr
	}
	var keys []string
	seen := make(map[string]struct{})
	for obj := o; obj != nil; obj = obj.proto {
		if obj.enumErr != nil {
			return nil, obj.enumErr
		}
		for _, k := range obj.orderedKeys() {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !obj.slots[k].hidden {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (o *Object) orderedKeys() []string {
	var indices []int
	var named []string
	for _, k := range o.order {
		if i, ok := arrayIndex(k); ok {
			indices = append(indices, i)
			continue
		}
		named = append(named, k)
	}
	if len(indices) == 0 {
		return named
	}
	sort.Ints(indices)
	out := make([]string, 0, len(o.order))
	for _, i := range indices {
		out = append(out, strconv.Itoa(i))
	}
	return append(out, named...)
}

func arrayIndex(k string) (int, bool) {
	i, err := strconv.Atoi(k)
	if err != nil || i < 0 || strconv.Itoa(i) != k {
		return 0, false
	}
	return i, true
}

// HasOwn reports whether name is an own attribute, hidden or not.
func (o *Object) HasOwn(name string) bool {
	_, ok := o.slots[name]
	return ok
}

// Get reads an attribute, walking the prototype chain. Missing attributes
// yield node.Undefined; failing accessors yield their error.
func (o *Object) Get(name string) (node.Node, error) {
	if name == ProtoName {
		if o.proto == nil {
			return node.Null, nil
		}
		return o.proto, nil
	}
	for obj := o; obj != nil; obj = obj.proto {
		s, ok := obj.slots[name]
		if !ok {
			continue
		}
		if s.getter != nil {
			v, err := s.getter()
			if err != nil {
				return nil, err
			}
			return Wrap(v), nil
		}
		return Wrap(s.value), nil
	}
	return node.Undefined, nil
}

// Marker returns the raw value of an own attribute.
func (o *Object) Marker(name string) (any, bool) {
	return o.Lookup(name)
}

// SetMarker stores a marker. Frozen objects reject it; host objects store
// it enumerable, ordinary objects hidden.
func (o *Object) SetMarker(name string, value any) bool {
	if o.frozen {
		return false
	}
	if o.host {
		o.Set(name, value)
	} else {
		o.Hide(name, value)
	}
	return true
}

// Wrap converts a slot value into a node. *Object values are returned as
// is, nodes pass through, and any other Go value is reflected.
func Wrap(v any) node.Node {
	switch x := v.(type) {
	case *Object:
		if x == nil {
			return node.Null
		}
		return x
	case node.Node:
		return x
	}
	return node.Reflect(v)
}

var (
	_ node.Node     = (*Object)(nil)
	_ node.Markable = (*Object)(nil)
)
