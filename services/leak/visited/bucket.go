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

// UnknownBucket collects nodes whose representation could not be computed.
const UnknownBucket = "[UNKNOWN]"

// Bucket groups nodes by Repr and probes each bucket by identity.
//
// A representation that changes between calls makes the same node land in
// different buckets, so it may be expanded more than once. Traversal still
// terminates through the depth ceiling.
type Bucket struct {
	buckets map[string][]any
	unique  int
	unknown int
}

// NewBucket creates an empty bucket set.
func NewBucket() *Bucket {
	return &Bucket{buckets: make(map[string][]any)}
}

func (b *Bucket) hash(n node.Node) (string, bool) {
	repr, err := n.Repr()
	if err != nil {
		return UnknownBucket, false
	}
	return repr, true
}

// Contains reports whether n is in its representation bucket.
func (b *Bucket) Contains(n node.Node, _ path.Path) bool {
	h, _ := b.hash(n)
	id := n.Identity()
	for _, have := range b.buckets[h] {
		if have == id {
			return true
		}
	}
	return false
}

// Add files n under its representation.
func (b *Bucket) Add(n node.Node, p path.Path) {
	h, ok := b.hash(n)
	id := n.Identity()
	for _, have := range b.buckets[h] {
		if have == id {
			return
		}
	}
	b.buckets[h] = append(b.buckets[h], id)
	b.unique++
	if !ok {
		b.unknown++
		unknownReprTotal.Inc()
	}
}

// Stats implements Set.
func (b *Bucket) Stats() Stats {
	return Stats{
		Strategy: StrategyBucket,
		Unique:   b.unique,
		Buckets:  len(b.buckets),
		Unknown:  b.unknown,
	}
}
