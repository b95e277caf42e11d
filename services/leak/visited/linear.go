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

// Linear is an O(n) list of identities. Too slow for real heaps; useful as
// the reference the other strategies are checked against.
type Linear struct {
	ids []any
}

// NewLinear creates an empty linear set.
func NewLinear() *Linear {
	return &Linear{}
}

// Contains scans the list for n.
func (l *Linear) Contains(n node.Node, _ path.Path) bool {
	id := n.Identity()
	for _, have := range l.ids {
		if have == id {
			return true
		}
	}
	return false
}

// Add appends n unless present.
func (l *Linear) Add(n node.Node, p path.Path) {
	if l.Contains(n, p) {
		return
	}
	l.ids = append(l.ids, n.Identity())
}

// Stats implements Set.
func (l *Linear) Stats() Stats {
	return Stats{Strategy: StrategyLinear, Unique: len(l.ids)}
}
