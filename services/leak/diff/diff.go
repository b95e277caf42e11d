// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff compares path-keyed indices produced by separate traversals.
//
// Typical inputs are the debug path indices of two traversals of the same
// graph (with different visited-set strategies, or before and after an
// operation suspected of leaking) or their match sets. Values are compared
// with ==, so an index mapping paths to node identities reports a path as
// changed when a different node sits there.
package diff

import (
	"fmt"
	"sort"
)

// Option configures Diff.
type Option func(*options)

type options struct {
	ignore map[string]struct{}
}

// WithIgnore excludes keys from every category.
func WithIgnore(keys ...string) Option {
	return func(o *options) {
		if o.ignore == nil {
			o.ignore = make(map[string]struct{}, len(keys))
		}
		for _, k := range keys {
			o.ignore[k] = struct{}{}
		}
	}
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
	opChange
)

// op is one step of the merged key sequence, in sorted key order.
type op struct {
	kind opKind
	key  string
}

// Result lists the keys that differ between two indices. Each list is
// sorted.
type Result struct {
	// Added keys are present only in the after index.
	Added []string

	// Removed keys are present only in the before index.
	Removed []string

	// Changed keys are present in both with different values.
	Changed []string

	ops []op
}

// Empty reports whether the indices agree.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// String summarises the counts.
func (r *Result) String() string {
	return fmt.Sprintf("added=%d removed=%d changed=%d", len(r.Added), len(r.Removed), len(r.Changed))
}

// Diff compares two indices.
//
// Description:
//
//	A key present only in after is added, only in before is removed, and
//	present in both with values that are not == is changed. Keys passed to
//	WithIgnore appear in none of the lists.
//
// Inputs:
//
//	before, after - Indices keyed by path hash. Either may be nil.
//	opts - WithIgnore.
//
// Outputs:
//
//	*Result - Never nil.
//
// Example:
//
//	res := diff.Diff(diff.Keys(bucketRun.Paths), diff.Keys(canaryRun.Paths))
//	if !res.Empty() { ... }
func Diff[V comparable](before, after map[string]V, opts ...Option) *Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	keys := make([]string, 0, len(before)+len(after))
	for k := range before {
		if _, skip := o.ignore[k]; !skip {
			keys = append(keys, k)
		}
	}
	for k := range after {
		if _, inBefore := before[k]; inBefore {
			continue
		}
		if _, skip := o.ignore[k]; !skip {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := &Result{ops: make([]op, 0, len(keys))}
	for _, k := range keys {
		b, inBefore := before[k]
		a, inAfter := after[k]
		switch {
		case !inAfter:
			res.Removed = append(res.Removed, k)
			res.ops = append(res.ops, op{kind: opDelete, key: k})
		case !inBefore:
			res.Added = append(res.Added, k)
			res.ops = append(res.ops, op{kind: opInsert, key: k})
		case a != b:
			res.Changed = append(res.Changed, k)
			res.ops = append(res.ops, op{kind: opChange, key: k})
		default:
			res.ops = append(res.ops, op{kind: opEqual, key: k})
		}
	}
	return res
}

// Keys projects an index onto its key set, so indices whose values are not
// comparable (a PathIndex maps to path slices) can still be diffed for
// added and removed keys.
func Keys[M ~map[string]V, V any](m M) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
