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
	"strings"

	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/path"
	"github.com/google/uuid"
)

// CanaryPrefix and MarkerSuffix bracket every canary marker name.
const (
	CanaryPrefix = "__$$CANARY"
	MarkerSuffix = "$$__"
)

// canaryToken is the sentinel stored under the marker. Each set owns a
// distinct token, so markers left by earlier sets never count.
type canaryToken struct {
	id uuid.UUID
}

// Canary marks nodes with a per-set sentinel.
//
// Description:
//
//	The marker name is "__$$CANARY<uuid>$$__", fresh for every set, and the
//	stored value is a pointer only this set holds. Contains is therefore a
//	single own-attribute read compared by identity. Nodes that are not
//	node.Markable, or that reject the write, go to the fallback set.
//
// Markers are left on the graph after the traversal. They are hidden from
// enumeration on ordinary objects and filtered by the default ignore rules
// where they are not.
type Canary struct {
	name     string
	token    *canaryToken
	fallback Set
	unique   int
}

// NewCanary creates a canary set with a fresh marker name.
func NewCanary(opts ...Option) *Canary {
	o := applyOptions(opts)
	id := uuid.New()
	return &Canary{
		name:     CanaryPrefix + strings.ReplaceAll(id.String(), "-", "") + MarkerSuffix,
		token:    &canaryToken{id: id},
		fallback: o.fallback,
	}
}

// MarkerName returns the attribute name this set stamps.
func (c *Canary) MarkerName() string { return c.name }

func (c *Canary) marked(n node.Node) bool {
	m, ok := n.(node.Markable)
	if !ok {
		return false
	}
	v, ok := m.Marker(c.name)
	return ok && v == c.token
}

// Contains reports whether n carries this set's token or is held by the
// fallback set.
func (c *Canary) Contains(n node.Node, p path.Path) bool {
	return c.marked(n) || c.fallback.Contains(n, p)
}

// Add stamps n, or hands it to the fallback set.
func (c *Canary) Add(n node.Node, p path.Path) {
	if c.Contains(n, p) {
		return
	}
	if !stamp(n, c.name, c.token) {
		c.fallback.Add(n, p)
		fallbackTotal.WithLabelValues(StrategyCanary).Inc()
	}
	c.unique++
}

// Stats implements Set.
func (c *Canary) Stats() Stats {
	fb := c.fallback.Stats()
	return Stats{
		Strategy: StrategyCanary,
		Unique:   c.unique,
		Marked:   c.unique - fb.Unique,
		Fallback: fb.Unique,
		Buckets:  fb.Buckets,
		Unknown:  fb.Unknown,
	}
}

// stamp writes value under name and reads it back. A write that is
// accepted but does not stick counts as rejected.
func stamp(n node.Node, name string, value any) bool {
	m, ok := n.(node.Markable)
	if !ok || !m.SetMarker(name, value) {
		return false
	}
	got, ok := m.Marker(name)
	return ok && got == value
}
