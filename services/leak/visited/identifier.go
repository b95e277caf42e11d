// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package visited

import (
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/path"
)

// IdentifierMarker is the attribute Identifier stamps.
const IdentifierMarker = "__$$UID$$__"

// Identifier stamps nodes with integers and keeps an integer-to-node
// table. A node counts as contained only when the table entry for its
// integer is the node itself, so stale or foreign stamps are ignored and
// overwritten on Add.
type Identifier struct {
	next     int
	ids      map[int]any
	fallback Set
	unique   int
}

// NewIdentifier creates an identifier set. Integers are allocated per
// set, starting at zero.
func NewIdentifier(opts ...Option) *Identifier {
	o := applyOptions(opts)
	return &Identifier{ids: make(map[int]any), fallback: o.fallback}
}

func (s *Identifier) uid(n node.Node) (int, bool) {
	m, ok := n.(node.Markable)
	if !ok {
		return 0, false
	}
	v, ok := m.Marker(IdentifierMarker)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}

// Contains validates the stamped integer against the table. Unstamped
// nodes, and nodes whose stamp this set did not write (a frozen node
// carrying a stale stamp is one), are looked up in the fallback set.
func (s *Identifier) Contains(n node.Node, p path.Path) bool {
	if id, ok := s.uid(n); ok {
		if have, found := s.ids[id]; found && have == n.Identity() {
			return true
		}
	}
	return s.fallback.Contains(n, p)
}

// Add stamps n with the next integer, or hands it to the fallback set.
func (s *Identifier) Add(n node.Node, p path.Path) {
	if s.Contains(n, p) {
		return
	}
	if stamp(n, IdentifierMarker, s.next) {
		s.ids[s.next] = n.Identity()
		s.next++
	} else {
		s.fallback.Add(n, p)
		fallbackTotal.WithLabelValues(StrategyIdentifier).Inc()
	}
	s.unique++
}

// Stats implements Set.
func (s *Identifier) Stats() Stats {
	fb := s.fallback.Stats()
	return Stats{
		Strategy: StrategyIdentifier,
		Unique:   s.unique,
		Marked:   len(s.ids),
		Fallback: fb.Unique,
		Buckets:  fb.Buckets,
		Unknown:  fb.Unknown,
	}
}
