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
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// ErrNoSuchAttribute is returned by reflected nodes for malformed index
// names. Unknown field or key names yield Undefined instead.
var ErrNoSuchAttribute = errors.New("no such attribute")

// Reflect wraps a live Go value.
//
// Description:
//
//	Pointers and interfaces are transparent: a pointer to a struct is the
//	struct, so paths read like Go selectors (heap.cache.entries["k"]).
//	Structs expose every field, exported or not. Maps expose their keys
//	rendered with fmt.Sprint, slices and arrays their indices. Map keys
//	that render alike (1 and "1" in a map[any]any) are told apart by
//	type: a string key keeps the bare name and the others become
//	"int(1)". Funcs and channels are composite leaves with no attributes.
//
// Identity:
//
//	Values reached through memory (pointer targets, struct fields of
//	addressable structs, slice elements) are identified by type and
//	address, so the same object reached along two routes is the same
//	node and cycles through pointers are detected. Maps, slices, funcs
//	and channels are identified by type and data pointer. Scalars are
//	identified by value.
//
//	Composites with no address of their own (struct values stored in a
//	map, fields of such structs) are identified by the identity of the
//	value they were read from plus the attribute name, so walking an
//	unchanged graph twice yields the same identities. A root passed by
//	value is identified by type and value when comparable.
//
// Limitations:
//   - Zero-sized values of the same type may share an address and are
//     then treated as one node.
//   - Map keys that render alike even with their type (several NaN
//     keys) are numbered "float64(NaN)#2" in map iteration order.
//   - Reflected nodes never accept markers; marker-based visited sets
//     track them out of band.
//
// Thread Safety: The returned node reads the value without
// synchronisation. Callers must not mutate it concurrently.
func Reflect(v any) Node {
	return reflectValue(reflect.ValueOf(v), nil, "")
}

// reflectValue wraps v, read as attribute name of parent. parent is nil
// for the root.
func reflectValue(v reflect.Value, parent *reflectNode, name string) Node {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return Null
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return Null
	}

	switch v.Kind() {
	case reflect.Bool:
		return primitive{v: v.Bool()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return primitive{v: v.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return primitive{v: canonicalUint(v.Uint())}
	case reflect.Float32, reflect.Float64:
		return primitive{v: canonicalFloat(v.Float())}
	case reflect.Complex64, reflect.Complex128:
		return primitive{v: v.Complex()}
	case reflect.String:
		return primitive{v: v.String()}
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if v.IsNil() {
			return Null
		}
	}
	return &reflectNode{v: v, parent: parent, name: name}
}

// refIdentity identifies a reflected composite by type and address.
type refIdentity struct {
	typ  reflect.Type
	addr uintptr
	len  int
}

// slotIdentity identifies a value with no address by where it was read.
type slotIdentity struct {
	typ    reflect.Type
	parent any
	name   string
}

// valueIdentity identifies a comparable root passed by value.
type valueIdentity struct {
	typ reflect.Type
	v   any
}

// reflectNode is a composite Go value.
type reflectNode struct {
	v reflect.Value

	// parent and name locate values that have no address of their own.
	parent *reflectNode
	name   string

	// keys and entries cache map enumeration so Get after Keys is O(1).
	keys    []string
	entries map[string]reflect.Value
}

func (n *reflectNode) Identity() any {
	v := n.v
	switch v.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return refIdentity{typ: v.Type(), addr: v.Pointer()}
	case reflect.Slice:
		return refIdentity{typ: v.Type(), addr: v.Pointer(), len: v.Len()}
	}
	if v.CanAddr() {
		return refIdentity{typ: v.Type(), addr: v.UnsafeAddr()}
	}
	if n.parent != nil {
		return slotIdentity{typ: v.Type(), parent: n.parent.Identity(), name: n.name}
	}
	if v.CanInterface() && v.Comparable() {
		return valueIdentity{typ: v.Type(), v: v.Interface()}
	}
	return slotIdentity{typ: v.Type()}
}

func (n *reflectNode) Kind() Kind { return KindComposite }

func (n *reflectNode) Repr() (string, error) {
	v := n.v
	switch v.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Slice:
		return fmt.Sprintf("%s@%#x", v.Type(), v.Pointer()), nil
	}
	if v.CanAddr() {
		return fmt.Sprintf("%s@%#x", v.Type(), v.UnsafeAddr()), nil
	}
	return v.Type().String(), nil
}

func (n *reflectNode) Keys() ([]string, error) {
	v := n.v
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		keys := make([]string, t.NumField())
		for i := range keys {
			keys[i] = t.Field(i).Name
		}
		return keys, nil
	case reflect.Slice, reflect.Array:
		keys := make([]string, v.Len())
		for i := range keys {
			keys[i] = strconv.Itoa(i)
		}
		return keys, nil
	case reflect.Map:
		n.indexMap()
		out := make([]string, len(n.keys))
		copy(out, n.keys)
		return out, nil
	}
	return nil, nil
}

// mapEntry is one map key and value during indexing.
type mapEntry struct {
	key   reflect.Value
	name  string
	value reflect.Value
}

func (n *reflectNode) indexMap() {
	groups := make(map[string][]mapEntry, n.v.Len())
	iter := n.v.MapRange()
	for iter.Next() {
		k := concreteKey(iter.Key())
		name := mapKeyName(k)
		groups[name] = append(groups[name], mapEntry{key: k, name: name, value: iter.Value()})
	}

	n.entries = make(map[string]reflect.Value, n.v.Len())
	var renamed []mapEntry
	for name, group := range groups {
		for _, e := range group {
			if len(group) == 1 || e.key.Type() == stringType {
				n.entries[name] = e.value
				continue
			}
			e.name = fmt.Sprintf("%s(%s)", e.key.Type(), name)
			renamed = append(renamed, e)
		}
	}

	// Bare names are placed first so a renamed key never displaces one.
	sort.SliceStable(renamed, func(i, j int) bool { return renamed[i].name < renamed[j].name })
	for _, e := range renamed {
		name := e.name
		for i := 2; ; i++ {
			if _, taken := n.entries[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s#%d", e.name, i)
		}
		n.entries[name] = e.value
	}

	n.keys = make([]string, 0, len(n.entries))
	for name := range n.entries {
		n.keys = append(n.keys, name)
	}
	sort.Strings(n.keys)
}

func (n *reflectNode) HasOwn(name string) bool {
	v := n.v
	switch v.Kind() {
	case reflect.Struct:
		_, ok := v.Type().FieldByName(name)
		return ok
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(name)
		return err == nil && i >= 0 && i < v.Len() && strconv.Itoa(i) == name
	case reflect.Map:
		if n.entries == nil {
			n.indexMap()
		}
		_, ok := n.entries[name]
		return ok
	}
	return false
}

func (n *reflectNode) Get(name string) (Node, error) {
	v := n.v
	switch v.Kind() {
	case reflect.Struct:
		sf, ok := v.Type().FieldByName(name)
		if !ok || len(sf.Index) != 1 {
			return Undefined, nil
		}
		return reflectValue(v.Field(sf.Index[0]), n, name), nil
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(name)
		if err != nil {
			return Undefined, nil
		}
		if i < 0 || i >= v.Len() {
			return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrNoSuchAttribute, i, v.Len())
		}
		return reflectValue(v.Index(i), n, name), nil
	case reflect.Map:
		if n.entries == nil {
			n.indexMap()
		}
		e, ok := n.entries[name]
		if !ok {
			return Undefined, nil
		}
		return reflectValue(e, n, name), nil
	}
	return Undefined, nil
}

var stringType = reflect.TypeOf("")

// concreteKey unwraps interface map keys.
func concreteKey(k reflect.Value) reflect.Value {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	return k
}

// mapKeyName renders a map key the way it appears in paths.
func mapKeyName(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	case reflect.Bool:
		return strconv.FormatBool(k.Bool())
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.Type().String()
}
