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
	"context"
	"strings"

	"github.com/AleutianAI/leaktrace/pkg/logging"
	"github.com/AleutianAI/leaktrace/services/leak/ignore"
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
)

// Separator brackets the output of one search.
var Separator = strings.Repeat("-", 40)

// FindOptions configures Find. Zero values select the defaults.
type FindOptions struct {
	// Root is the node to search from. Required.
	Root node.Node

	// Label names the root in paths. Default: "UNKNOWN".
	Label string

	// Checker accepts matching nodes. Required.
	Checker Checker

	// Set is the visited-set strategy. Default: a fresh visited.Bucket.
	Set visited.Set

	// Ignore skips nodes. Default: ignore.Default().
	Ignore ignore.Rule

	// Logger receives the search transcript. Default: logging.Default().
	Logger *logging.Logger

	// Silent discards the transcript. Overrides Logger.
	Silent bool

	Debug              bool
	DFS                bool
	TraverseMultiple   bool
	TraversePrototypes bool

	// MaxDepth is the path-length ceiling. Default: 100.
	MaxDepth int

	// ExtraNames replaces DefaultExtraNames when non-nil.
	ExtraNames []string

	// SwallowErrors logs a failed search and returns the partial result
	// with a nil error.
	SwallowErrors bool
}

func (f FindOptions) options() []Option {
	opts := []Option{
		WithSet(f.Set),
		WithIgnore(f.Ignore),
		WithLabel(f.Label),
		WithLogger(f.Logger),
		WithDebug(f.Debug),
		WithDFS(f.DFS),
		WithTraverseMultiple(f.TraverseMultiple),
		WithTraversePrototypes(f.TraversePrototypes),
		WithMaxDepth(f.MaxDepth),
		WithSwallowErrors(f.SwallowErrors),
	}
	if f.ExtraNames != nil {
		opts = append(opts, WithExtraNames(f.ExtraNames...))
	}
	if f.Silent {
		opts = append(opts, WithSilent())
	}
	return opts
}

// Find searches the graph under f.Root and writes a transcript.
//
// Description:
//
//	Wraps Traverse with the search transcript: a separator, a START line,
//	one FOUND line per match, a DONE line with the elapsed time, the
//	visited set's stats line and a closing separator. On failure an error
//	line replaces the DONE block.
//
// Inputs:
//
//	ctx - Carries the trace span and cancellation.
//	f - Search configuration. Root and Checker are required.
//
// Outputs:
//
//	*Result - Matches, plus the path index in debug mode.
//	error - See Traverse.
//
// Example:
//
//	res, err := traverse.Find(ctx, traverse.FindOptions{
//	    Root:    node.Reflect(heap),
//	    Label:   "heap",
//	    Checker: traverse.MatchValue(1234),
//	})
func Find(ctx context.Context, f FindOptions) (*Result, error) {
	if f.Root == nil {
		return nil, ErrNoRoot
	}
	if f.Checker == nil {
		return nil, ErrNoChecker
	}

	log := f.Logger
	if f.Silent {
		log = logging.Nop()
	} else if log == nil {
		log = logging.Default()
	}
	opts := append(f.options(), WithLogger(log))

	label := f.Label
	if label == "" {
		label = DefaultLabel
	}

	log.Info(Separator)
	log.Info("LeakHelper START", "root", label)

	res, err := Traverse(ctx, f.Root, f.Checker, opts...)
	if err != nil {
		log.Info(Separator)
		return res, err
	}

	log.Info("LeakHelper DONE", "elapsed_ms", res.Duration.Milliseconds(), "matches", len(res.Matches))
	log.Info(res.Stats.String())
	log.Info(Separator)
	return res, nil
}
