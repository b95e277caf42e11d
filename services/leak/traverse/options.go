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
	"github.com/AleutianAI/leaktrace/pkg/logging"
	"github.com/AleutianAI/leaktrace/services/leak/ignore"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
)

// Traversal configuration limits.
const (
	// DefaultMaxDepth is the default ceiling on path length.
	DefaultMaxDepth = 100

	// MaxDepthLimit is the largest accepted ceiling.
	MaxDepthLimit = 10000

	// DefaultLabel names the root when no label is given.
	DefaultLabel = "UNKNOWN"

	// contextCheckInterval is how many dequeues pass between context checks.
	contextCheckInterval = 256
)

// DefaultExtraNames are attributes visited on every composite even though
// enumeration does not list them. They are followed only when defined.
var DefaultExtraNames = []string{"prototype", "constructor", "__proto__"}

// Options configures a traversal.
type Options struct {
	// Set is the visited-set strategy. Default: a fresh visited.Bucket.
	Set visited.Set

	// Ignore skips nodes entirely. Default: ignore.Default().
	Ignore ignore.Rule

	// DFS pops worklists last-in first-out. Default: breadth-first.
	DFS bool

	// TraverseMultiple runs the checker on already visited nodes too, so
	// every route to a match is reported.
	TraverseMultiple bool

	// Debug records every visited path in Result.Paths and Result.Nodes.
	Debug bool

	// TraversePrototypes follows inherited attributes once own attributes
	// are exhausted.
	TraversePrototypes bool

	// MaxDepth is the path-length ceiling (default: 100, max: 10000).
	MaxDepth int

	// ExtraNames are visited in addition to enumerated attributes.
	// Default: DefaultExtraNames.
	ExtraNames []string

	// Label is the root path segment. Default: "UNKNOWN".
	Label string

	// Logger receives FOUND lines and warnings. Default: logging.Default().
	Logger *logging.Logger

	// SwallowErrors logs traversal failures and returns the partial result
	// with a nil error.
	SwallowErrors bool
}

// Option is a functional option for configuring traversals.
type Option func(*Options)

// DefaultOptions returns the defaults every traversal starts from. Set
// and Logger are filled in lazily so each call gets its own set.
func DefaultOptions() Options {
	return Options{
		MaxDepth:   DefaultMaxDepth,
		ExtraNames: DefaultExtraNames,
		Label:      DefaultLabel,
	}
}

// WithSet sets the visited-set strategy. A nil set keeps the default.
func WithSet(s visited.Set) Option {
	return func(o *Options) {
		if s != nil {
			o.Set = s
		}
	}
}

// WithIgnore sets the ignore rule. Pass ignore.None() to ignore nothing.
func WithIgnore(r ignore.Rule) Option {
	return func(o *Options) {
		if r != nil {
			o.Ignore = r
		}
	}
}

// WithDFS selects depth-first order.
func WithDFS(dfs bool) Option {
	return func(o *Options) {
		o.DFS = dfs
	}
}

// WithTraverseMultiple reports every route to a match, not just the first.
func WithTraverseMultiple(multiple bool) Option {
	return func(o *Options) {
		o.TraverseMultiple = multiple
	}
}

// WithDebug records every visited path.
func WithDebug(debug bool) Option {
	return func(o *Options) {
		o.Debug = debug
	}
}

// WithTraversePrototypes follows inherited attributes.
func WithTraversePrototypes(prototypes bool) Option {
	return func(o *Options) {
		o.TraversePrototypes = prototypes
	}
}

// WithMaxDepth sets the path-length ceiling.
//
// If n <= 0, uses default (100).
// If n > 10000, clamps to 10000.
func WithMaxDepth(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = DefaultMaxDepth
		}
		if n > MaxDepthLimit {
			n = MaxDepthLimit
		}
		o.MaxDepth = n
	}
}

// WithExtraNames replaces the extra attribute names. An empty list
// disables them.
func WithExtraNames(names ...string) Option {
	return func(o *Options) {
		o.ExtraNames = append([]string(nil), names...)
	}
}

// WithLabel sets the root path segment. An empty label keeps the default.
func WithLabel(label string) Option {
	return func(o *Options) {
		if label != "" {
			o.Label = label
		}
	}
}

// WithLogger sets the diagnostic sink.
func WithLogger(l *logging.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithSilent discards all diagnostic output.
func WithSilent() Option {
	return func(o *Options) {
		o.Logger = logging.Nop()
	}
}

// WithSwallowErrors logs traversal failures instead of returning them.
func WithSwallowErrors(swallow bool) Option {
	return func(o *Options) {
		o.SwallowErrors = swallow
	}
}

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Set == nil {
		o.Set = visited.NewBucket()
	}
	if o.Ignore == nil {
		o.Ignore = ignore.Default()
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}
