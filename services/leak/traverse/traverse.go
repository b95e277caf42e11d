// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package traverse walks a live object graph from a root and reports every
// path that leads to a node accepted by a checker.
//
// The walk never diverges: a visited set stops re-expansion of nodes
// reached along more than one route, an ignore rule prunes pathological
// substructures, and a depth ceiling turns anything that slips through
// into an error instead of an endless loop.
//
// # Order
//
// Two worklists are kept. Own attributes go to the primary list and, when
// prototype traversal is on, inherited attributes go to the secondary list,
// which is only drained once the primary list is empty. Both are FIFO for
// breadth-first order or LIFO for depth-first order.
//
// # Thread Safety
//
// A traversal runs synchronously on the calling goroutine. The graph must
// not be mutated concurrently, and a visited set must not be shared between
// concurrent traversals.
package traverse

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/leaktrace/pkg/logging"
	"github.com/AleutianAI/leaktrace/services/leak/ignore"
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/path"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
)

// Checker decides whether a node is a match. visited reports whether the
// node had already been reached along another route.
type Checker func(n node.Node, p path.Path, visited bool) bool

// Match is one discovered route to an accepted node.
type Match struct {
	Path path.Path
	Node node.Node
}

// PathIndex maps path hashes to paths.
type PathIndex map[string]path.Path

// Result holds the outcome of one traversal.
type Result struct {
	// Matches in discovery order. Each path appears at most once.
	Matches []Match

	// Paths indexes every visited path by hash. Debug mode only.
	Paths PathIndex

	// Nodes maps every visited path hash to the identity of the node found
	// there. Debug mode only.
	Nodes map[string]any

	// Stats is the visited set's summary.
	Stats visited.Stats

	// Visited counts worklist items that were not ignored.
	Visited int

	// Ignored counts worklist items skipped by the ignore rule.
	Ignored int

	// AccessErrors counts failed enumerations and attribute reads.
	AccessErrors int

	// DuplicatePaths counts items skipped because their path was already
	// indexed. Debug mode only.
	DuplicatePaths int

	// Duration is the wall-clock time of the walk.
	Duration time.Duration
}

// MatchPaths returns the paths of all matches.
func (r *Result) MatchPaths() []path.Path {
	out := make([]path.Path, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Path
	}
	return out
}

// item is one pending (node, path) pair.
type item struct {
	n node.Node
	p path.Path
}

// worklist is a queue or a stack of items.
type worklist struct {
	items []item
	head  int
	lifo  bool
}

func (w *worklist) push(it item) {
	w.items = append(w.items, it)
}

func (w *worklist) pop() (item, bool) {
	if w.head >= len(w.items) {
		return item{}, false
	}
	if w.lifo {
		last := len(w.items) - 1
		it := w.items[last]
		w.items[last] = item{}
		w.items = w.items[:last]
		return it, true
	}
	it := w.items[w.head]
	w.items[w.head] = item{}
	w.head++
	if w.head == len(w.items) {
		w.items = w.items[:0]
		w.head = 0
	}
	return it, true
}

// walker carries the state of one traversal.
type walker struct {
	opts      Options
	checker   Checker
	set       visited.Set
	ignore    ignore.Rule
	log       *logging.Logger
	res       *Result
	primary   worklist
	secondary worklist
}

// Traverse walks the graph reachable from root.
//
// Description:
//
//	Processes (node, path) pairs starting with (root, [label]). For each
//	pair, in order:
//	  1. Ignored nodes are skipped.
//	  2. In debug mode the path is indexed; an already indexed path is
//	     reported and skipped.
//	  3. The checker runs unless the node was visited before (it always
//	     runs with TraverseMultiple). Accepted nodes become matches.
//	  4. A path longer than MaxDepth aborts the walk with *DepthError.
//	  5. Visited nodes stop here.
//	  6. The node is added to the visited set and, if composite, its
//	     enumerable attributes plus the defined extra names are queued.
//
//	Failures to enumerate or read attributes are logged and the attribute
//	is treated as absent.
//
// Inputs:
//
//	ctx - Carries the trace span. Cancellation is checked every 256
//	  dequeues.
//	root - The node to start from. Required.
//	checker - The match predicate. Required.
//	opts - Functional options.
//
// Outputs:
//
//	*Result - Matches and counters. Returned, partially filled, even when
//	  the walk fails.
//	error - ErrNoRoot, ErrNoChecker, *DepthError or ErrCancelled. Nil when
//	  WithSwallowErrors is set and the walk itself failed.
//
// Thread Safety: Not safe for concurrent use with the same visited set.
func Traverse(ctx context.Context, root node.Node, checker Checker, opts ...Option) (*Result, error) {
	if root == nil {
		return nil, ErrNoRoot
	}
	if checker == nil {
		return nil, ErrNoChecker
	}

	o := buildOptions(opts)
	strategy := o.Set.Stats().Strategy

	ctx, span := startTraverseSpan(ctx, o, strategy)
	defer span.End()

	w := &walker{
		opts:      o,
		checker:   checker,
		set:       o.Set,
		ignore:    o.Ignore,
		log:       o.Logger,
		res:       &Result{},
		primary:   worklist{lifo: o.DFS},
		secondary: worklist{lifo: o.DFS},
	}
	if o.Debug {
		w.res.Paths = make(PathIndex)
		w.res.Nodes = make(map[string]any)
	}

	start := time.Now()
	err := w.run(ctx, root)
	w.res.Duration = time.Since(start)
	w.res.Stats = o.Set.Stats()

	setTraverseSpanResult(span, w.res, err)
	recordTraverseMetrics(ctx, strategy, w.res, err)

	if err != nil {
		w.log.Error("LeakHelper ERROR", "error", err)
		if o.SwallowErrors {
			return w.res, nil
		}
		return w.res, err
	}
	return w.res, nil
}

func (w *walker) run(ctx context.Context, root node.Node) error {
	w.primary.push(item{n: root, p: path.New(w.opts.Label)})

	for dequeued := 0; ; dequeued++ {
		if dequeued%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w after %d items: %w", ErrCancelled, dequeued, err)
			}
		}

		it, ok := w.primary.pop()
		if !ok {
			if it, ok = w.secondary.pop(); !ok {
				return nil
			}
		}
		if err := w.visit(it); err != nil {
			return err
		}
	}
}

func (w *walker) visit(it item) error {
	n, p := it.n, it.p

	if w.ignore(n, p) {
		w.res.Ignored++
		return nil
	}

	if w.opts.Debug {
		h := p.Hash()
		if _, dup := w.res.Paths[h]; dup {
			w.res.DuplicatePaths++
			w.log.Warn("LeakHelper duplicate path", "path", p.String())
			return nil
		}
		w.res.Paths[h] = p
		w.res.Nodes[h] = n.Identity()
	}
	w.res.Visited++

	seen := w.set.Contains(n, p)
	if (w.opts.TraverseMultiple || !seen) && w.checker(n, p, seen) {
		w.res.Matches = append(w.res.Matches, Match{Path: p, Node: n})
		w.log.Info("LeakHelper FOUND", "path", p.String())
	}

	if len(p) > w.opts.MaxDepth {
		return &DepthError{Path: p, Limit: w.opts.MaxDepth}
	}
	if seen {
		return nil
	}

	w.set.Add(n, p)
	if n.Kind() == node.KindComposite {
		w.expand(n, p)
	}
	return nil
}

// expand queues the attributes of n.
func (w *walker) expand(n node.Node, p path.Path) {
	keys, err := n.Keys()
	if err != nil {
		w.res.AccessErrors++
		w.log.Warn("LeakHelper enumeration failed", "path", p.String(), "error", err)
		keys = nil
	}

	names := make([]string, 0, len(keys)+len(w.opts.ExtraNames))
	listed := make(map[string]struct{}, len(keys)+len(w.opts.ExtraNames))
	for _, k := range keys {
		if _, dup := listed[k]; !dup {
			listed[k] = struct{}{}
			names = append(names, k)
		}
	}
	enumerated := len(names)
	for _, k := range w.opts.ExtraNames {
		if _, dup := listed[k]; !dup {
			listed[k] = struct{}{}
			names = append(names, k)
		}
	}

	for i, name := range names {
		own := n.HasOwn(name)
		if !own && !w.opts.TraversePrototypes {
			continue
		}

		child, err := n.Get(name)
		if err != nil {
			w.res.AccessErrors++
			w.log.Warn("LeakHelper attribute access failed", "path", p.Append(name).String(), "error", err)
			continue
		}
		if child == nil {
			child = node.Undefined
		}
		if i >= enumerated && !node.IsDefined(child) {
			continue
		}

		next := item{n: child, p: p.Append(name)}
		if own {
			w.primary.push(next)
		} else {
			w.secondary.push(next)
		}
	}
}
