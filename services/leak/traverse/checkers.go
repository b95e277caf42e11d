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
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/path"
)

// MatchValue accepts primitives equal to v after canonicalisation.
func MatchValue(v any) Checker {
	want := node.Canonical(v)
	return func(n node.Node, _ path.Path, _ bool) bool {
		got, ok := node.ValueOf(n)
		return ok && got == want
	}
}

// MatchAttribute accepts nodes reached through an attribute called name.
func MatchAttribute(name string) Checker {
	return func(_ node.Node, p path.Path, _ bool) bool {
		return len(p) > 1 && p.Last() == name
	}
}

// MatchIdentity accepts the target node itself.
func MatchIdentity(target node.Node) Checker {
	id := target.Identity()
	return func(n node.Node, _ path.Path, _ bool) bool {
		return n.Identity() == id
	}
}

// MatchAny accepts a node when any checker does.
func MatchAny(checkers ...Checker) Checker {
	return func(n node.Node, p path.Path, seen bool) bool {
		for _, c := range checkers {
			if c != nil && c(n, p, seen) {
				return true
			}
		}
		return false
	}
}

// MatchAll accepts every node. Combined with debug mode it records the
// full set of reachable paths.
func MatchAll() Checker {
	return func(node.Node, path.Path, bool) bool { return true }
}

// MatchNone accepts nothing.
func MatchNone() Checker {
	return func(node.Node, path.Path, bool) bool { return false }
}
