// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit runs several traversals of one graph and compares them.
//
// Two workflows are provided:
//
//   - CompareStrategies walks the same graph once per visited-set
//     strategy and diffs every pair of path indices. Exact strategies
//     must agree; a non-empty diff points at a strategy bug.
//   - Take and Changes capture the reachable paths of a graph before and
//     after an operation and report what became reachable, what stopped
//     being reachable and where a different node now sits.
//
// # Thread Safety
//
// Strategy runs over one graph are sequential, since marker strategies
// stamp the graph they walk. TakeAll snapshots distinct graphs in
// parallel. Nothing in this package is safe for concurrent use with a
// graph that is being mutated.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/leaktrace/services/leak/diff"
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("leaktrace.audit")

// ErrNoStrategies is returned when CompareStrategies is given an empty
// strategy list.
var ErrNoStrategies = errors.New("no strategies to compare")

// Run is one traversal of a comparison.
type Run struct {
	// Strategy is the name the set was built from.
	Strategy string

	// Result is the debug-mode traversal result.
	Result *traverse.Result
}

// Pair is the comparison of two runs.
type Pair struct {
	Before string
	After  string

	// Paths diffs path hash to node identity, so a path reaching a
	// different node is reported as changed.
	Paths *diff.Result

	// Matches diffs the match path sets.
	Matches *diff.Result
}

// Agree reports whether both runs produced identical indices and matches.
func (p Pair) Agree() bool {
	return p.Paths.Empty() && p.Matches.Empty()
}

// Comparison holds every run and every pairwise diff.
type Comparison struct {
	Runs  []Run
	Pairs []Pair
}

// Agree reports whether every pair agrees.
func (c *Comparison) Agree() bool {
	for _, p := range c.Pairs {
		if !p.Agree() {
			return false
		}
	}
	return true
}

// Disagreements returns the pairs that do not agree.
func (c *Comparison) Disagreements() []Pair {
	var out []Pair
	for _, p := range c.Pairs {
		if !p.Agree() {
			out = append(out, p)
		}
	}
	return out
}

// CompareStrategies traverses root once per strategy and diffs the runs.
//
// Description:
//
//	Each run gets a fresh set from visited.New and is forced into debug
//	mode so its path index is populated. Runs happen one after another in
//	the given order. Marker strategies leave markers behind; the default
//	ignore rule keeps later runs from following them. Every pair (i, j)
//	with i < j is diffed.
//
// Inputs:
//
//	ctx - Passed to every traversal.
//	root - Graph root.
//	checker - Match predicate shared by all runs.
//	strategies - Names accepted by visited.New. Nil means visited.Strategies().
//	opts - Extra traversal options. WithSet and WithDebug are overridden.
//
// Outputs:
//
//	*Comparison - All runs and pairs.
//	error - ErrNoStrategies, visited.ErrUnknownStrategy, or the first
//	  traversal error annotated with its strategy.
func CompareStrategies(ctx context.Context, root node.Node, checker traverse.Checker, strategies []string, opts ...traverse.Option) (*Comparison, error) {
	if strategies == nil {
		strategies = visited.Strategies()
	}
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}

	ctx, span := tracer.Start(ctx, "leak.CompareStrategies")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("leak.strategies", strategies))

	cmp := &Comparison{Runs: make([]Run, 0, len(strategies))}
	for _, name := range strategies {
		set, err := visited.New(name)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		runOpts := append(append([]traverse.Option(nil), opts...), traverse.WithSet(set), traverse.WithDebug(true))
		res, err := traverse.Traverse(ctx, root, checker, runOpts...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("strategy %s: %w", name, err)
		}
		cmp.Runs = append(cmp.Runs, Run{Strategy: name, Result: res})
	}

	for i := 0; i < len(cmp.Runs); i++ {
		for j := i + 1; j < len(cmp.Runs); j++ {
			a, b := cmp.Runs[i], cmp.Runs[j]
			cmp.Pairs = append(cmp.Pairs, Pair{
				Before:  a.Strategy,
				After:   b.Strategy,
				Paths:   diff.Diff(a.Result.Nodes, b.Result.Nodes),
				Matches: diff.Diff(matchKeys(a.Result), matchKeys(b.Result)),
			})
		}
	}

	span.SetAttributes(attribute.Bool("leak.agree", cmp.Agree()))
	span.SetStatus(codes.Ok, "")
	return cmp, nil
}

func matchKeys(r *traverse.Result) map[string]struct{} {
	out := make(map[string]struct{}, len(r.Matches))
	for _, m := range r.Matches {
		out[m.Path.Hash()] = struct{}{}
	}
	return out
}

// Snapshot is the reachable state of a graph at one point in time.
type Snapshot struct {
	// ID uniquely identifies the snapshot.
	ID string

	// Name is a caller-chosen label such as "before".
	Name string

	// TakenAt is when the traversal finished.
	TakenAt time.Time

	// Paths indexes every reachable path by hash.
	Paths traverse.PathIndex

	// Nodes maps every path hash to the identity found there.
	Nodes map[string]any

	Stats visited.Stats
}

// Take records every path reachable from root.
//
// The traversal runs in debug mode with a checker that accepts nothing.
// opts may set the strategy, ignore rule, label or depth; WithDebug is
// overridden.
func Take(ctx context.Context, name string, root node.Node, opts ...traverse.Option) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "leak.Take")
	defer span.End()
	span.SetAttributes(attribute.String("leak.snapshot", name))

	runOpts := append(append([]traverse.Option(nil), opts...), traverse.WithDebug(true))
	res, err := traverse.Traverse(ctx, root, traverse.MatchNone(), runOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}

	span.SetAttributes(attribute.Int("leak.paths", len(res.Paths)))
	return &Snapshot{
		ID:      uuid.NewString(),
		Name:    name,
		TakenAt: time.Now(),
		Paths:   res.Paths,
		Nodes:   res.Nodes,
		Stats:   res.Stats,
	}, nil
}

// Graph names one root for TakeAll.
type Graph struct {
	Name string
	Root node.Node
}

// TakeAll snapshots several graphs in parallel.
//
// Description:
//
//	Each graph is walked on its own goroutine with the options returned by
//	a fresh call to options, so no visited set is shared. The first error
//	cancels the remaining walks.
//
// Inputs:
//
//	ctx - Cancels every walk.
//	graphs - Roots to snapshot. They must not share nodes.
//	options - Builds the options for one walk. Called once per graph.
//
// Outputs:
//
//	[]*Snapshot - One per graph, in input order.
//	error - The first options or Take error.
//
// Thread Safety: options is called from several goroutines.
func TakeAll(ctx context.Context, graphs []Graph, options func() ([]traverse.Option, error)) ([]*Snapshot, error) {
	snaps := make([]*Snapshot, len(graphs))
	g, gCtx := errgroup.WithContext(ctx)
	for i, gr := range graphs {
		i, gr := i, gr
		g.Go(func() error {
			opts, err := options()
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", gr.Name, err)
			}
			snap, err := Take(gCtx, gr.Name, gr.Root, opts...)
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// Changes diffs two snapshots.
//
// Description:
//
//	Added paths became reachable between the snapshots, removed paths
//	stopped being reachable and changed paths now reach a different node.
//	A nil before snapshot reports every path of after as added.
//
// Inputs:
//
//	before - Earlier snapshot. May be nil.
//	after - Later snapshot. Must not be nil.
//	opts - Passed to diff.Diff.
//
// Outputs:
//
//	*diff.Result - Never nil.
func Changes(before, after *Snapshot, opts ...diff.Option) *diff.Result {
	var prev map[string]any
	if before != nil {
		prev = before.Nodes
	}
	return diff.Diff(prev, after.Nodes, opts...)
}

// PathChanges diffs only which paths are reachable, not what they reach.
// Use it for snapshots of distinct graphs, such as two loads of the same
// serialized heap, where composite identities never coincide.
func PathChanges(before, after *Snapshot, opts ...diff.Option) *diff.Result {
	var prev traverse.PathIndex
	if before != nil {
		prev = before.Paths
	}
	return diff.Diff(diff.Keys(prev), diff.Keys(after.Paths), opts...)
}
