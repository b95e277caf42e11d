// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package visited provides the membership oracles used by the tracer to
// recognise nodes it has already expanded.
//
// Four strategies trade speed against intrusiveness:
//
//   - Canary stamps each node with a per-set sentinel under a random
//     marker name. Membership is a single attribute read.
//   - Identifier stamps each node with an integer and keeps an
//     integer-to-node table, re-validating the node on lookup.
//   - Bucket groups nodes by their textual representation and probes the
//     bucket linearly by identity. It never mutates the graph.
//   - Linear is an O(n) list, kept as a baseline.
//
// The marker strategies only stamp nodes implementing node.Markable that
// accept the write; everything else goes to a fallback set (a Bucket
// unless WithFallback says otherwise).
//
// # Thread Safety
//
// Sets are NOT safe for concurrent use. Use one set per traversal.
package visited

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/path"
)

// Strategy names reported in Stats.
const (
	StrategyCanary     = "CanarySet"
	StrategyIdentifier = "UIDSet"
	StrategyBucket     = "BucketSet"
	StrategyLinear     = "SimpleSet"
)

// Set is a stateful membership oracle over nodes.
//
// Contains reports whether n was added before. Add records n; adding a
// node twice is a no-op. The path is the route by which n was reached and
// is available to strategies that want it; none of the built-in
// strategies depend on it.
type Set interface {
	Contains(n node.Node, p path.Path) bool
	Add(n node.Node, p path.Path)
	Stats() Stats
}

// Stats summarises a set after a traversal.
type Stats struct {
	// Strategy is the implementation name, e.g. "CanarySet".
	Strategy string

	// Unique is the number of distinct nodes added.
	Unique int

	// Marked is the number of nodes stamped with a marker.
	Marked int

	// Fallback is the number of nodes tracked by the fallback set.
	Fallback int

	// Buckets is the number of distinct representation buckets.
	Buckets int

	// Unknown is the number of nodes whose representation failed and were
	// filed under the sentinel bucket.
	Unknown int
}

// String renders the one-line summary written at the end of a search.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s STATS: unique objects=%d", s.Strategy, s.Unique)
	switch s.Strategy {
	case StrategyCanary, StrategyIdentifier:
		fmt.Fprintf(&b, " fallback=%d", s.Fallback)
	case StrategyBucket:
		fmt.Fprintf(&b, " buckets=%d", s.Buckets)
	}
	if s.Unknown > 0 {
		fmt.Fprintf(&b, " unknown=%d", s.Unknown)
	}
	return b.String()
}

// Option configures a marker strategy.
type Option func(*options)

type options struct {
	fallback Set
}

// WithFallback sets the set used for nodes that cannot carry a marker.
// A nil fallback keeps the default Bucket.
func WithFallback(s Set) Option {
	return func(o *options) {
		if s != nil {
			o.fallback = s
		}
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.fallback == nil {
		o.fallback = NewBucket()
	}
	return o
}

// New builds a set by strategy name. Accepted names are "canary",
// "identifier", "bucket" and "linear"; the Stats names ("CanarySet" and
// so on) are accepted as well.
func New(strategy string, opts ...Option) (Set, error) {
	switch strings.ToLower(strategy) {
	case "canary", "canaryset":
		return NewCanary(opts...), nil
	case "identifier", "uid", "uidset":
		return NewIdentifier(opts...), nil
	case "bucket", "bucketset", "":
		return NewBucket(), nil
	case "linear", "simple", "simpleset":
		return NewLinear(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

// Strategies lists the strategy names accepted by New in a stable order.
func Strategies() []string {
	return []string{"canary", "identifier", "bucket", "linear"}
}
