// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ignore decides which nodes the tracer skips entirely.
//
// A Rule sees the node and the path it was reached by. Ignored nodes are
// neither checked, nor recorded, nor expanded. Recognition is structural:
// a plugin record is anything carrying the attribute names a plugin
// record carries, regardless of its concrete type.
package ignore

import (
	"math"
	"regexp"

	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/path"
)

// Rule reports whether n, reached by p, should be skipped.
type Rule func(n node.Node, p path.Path) bool

// MarkerPattern matches the attribute names visited sets stamp.
var MarkerPattern = regexp.MustCompile(`^__\$\$.*\$\$__$`)

// Compose returns a rule that ignores a node when any of rules does.
// Rules run in order and evaluation stops at the first match. Nil rules
// are skipped. Compose with no rules ignores nothing.
func Compose(rules ...Rule) Rule {
	rs := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return func(n node.Node, p path.Path) bool {
		for _, r := range rs {
			if r(n, p) {
				return true
			}
		}
		return false
	}
}

// None ignores nothing.
func None() Rule {
	return func(node.Node, path.Path) bool { return false }
}

// Defaults returns the built-in rules, in evaluation order:
//
//  1. Plugin and mime-type records, whose graphs reference each other
//     without end.
//  2. Nodes reached through a marker attribute, in case a marker was
//     written where it shows up in enumeration.
//  3. Console-like logging sinks, whose recorded profiles keep growing
//     while the tracer runs.
func Defaults() []Rule {
	return []Rule{
		Any(
			HasAll("description", "enabledPlugin", "suffixes", "type"),
			HasAll("description", "filename", "name", "item", "namedItem"),
		),
		MarkerSegments(),
		HasAll("log", "warn", "error", "profile", "profileEnd", "profiles"),
	}
}

// Default composes Defaults.
func Default() Rule {
	return Compose(Defaults()...)
}

// Any is Compose under the name that reads better inside rule lists.
func Any(rules ...Rule) Rule {
	return Compose(rules...)
}

// HasAll matches composite nodes on which every name reads as a truthy
// value: defined, not null, and not false, zero or the empty string.
// A failing read counts as absent.
func HasAll(names ...string) Rule {
	return func(n node.Node, _ path.Path) bool {
		if n == nil || n.Kind() != node.KindComposite || len(names) == 0 {
			return false
		}
		for _, name := range names {
			v, err := n.Get(name)
			if err != nil || !Truthy(v) {
				return false
			}
		}
		return true
	}
}

// MarkerSegments matches nodes whose final path segment is a marker name.
func MarkerSegments() Rule {
	return Segment(MarkerPattern)
}

// Segment matches nodes whose final path segment matches re.
func Segment(re *regexp.Regexp) Rule {
	return func(_ node.Node, p path.Path) bool {
		return len(p) > 1 && re.MatchString(p.Last())
	}
}

// Prefix matches nodes reached at or below prefix.
func Prefix(prefix path.Path) Rule {
	return func(_ node.Node, p path.Path) bool {
		return p.HasPrefix(prefix)
	}
}

// Truthy reports whether v would pass a boolean test in a dynamic
// language: composites are truthy, primitives unless false, zero, NaN or
// empty.
func Truthy(v node.Node) bool {
	if !node.IsDefined(v) {
		return false
	}
	if v.Kind() == node.KindComposite {
		return true
	}
	raw, ok := node.ValueOf(v)
	if !ok {
		return true
	}
	switch x := raw.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return !math.IsNaN(x) && x != 0
	case nil:
		return false
	}
	return true
}
