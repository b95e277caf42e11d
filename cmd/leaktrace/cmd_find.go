// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/AleutianAI/leaktrace/pkg/ux"
	"github.com/AleutianAI/leaktrace/services/leak/config"
	"github.com/AleutianAI/leaktrace/services/leak/path"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/spf13/cobra"
)

func newFindCmd(rf *rootFlags) *cobra.Command {
	tf := &traversalFlags{}
	mf := &matchFlags{}
	var (
		jsonOutput bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "find GRAPH",
		Short: "Print the paths from the root to matching nodes",
		Long: `Walk the graph in GRAPH and print every path that reaches a matching node.

A node matches when it is a primitive equal to a --match-value, or when it
is reached through an attribute named by --match-key. Flags override the
configuration file.

Examples:
  leaktrace find heap.yaml --match-value 1234
  leaktrace find heap.yaml --match-key listener --multiple
  leaktrace find heap.yaml --match-value "'1234'" --strategy canary --json
  leaktrace find heap.yaml --match-key listener --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, args[0], rf, tf, mf, jsonOutput, watch)
		},
	}
	tf.register(cmd)
	mf.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "search again whenever GRAPH changes, until interrupted")
	return cmd
}

func runFind(cmd *cobra.Command, file string, rf *rootFlags, tf *traversalFlags, mf *matchFlags, jsonOutput, watch bool) error {
	checker, err := mf.checker(false)
	if err != nil {
		return err
	}
	cfg, err := rf.loadConfig(cmd, tf)
	if err != nil {
		return err
	}
	stop, err := startTelemetry(cmd, cfg)
	if err != nil {
		return err
	}
	defer stop()

	log := transcript(cmd, cfg, tf)
	if log != nil {
		defer log.Close()
	}

	search := func(ctx context.Context) error {
		root, err := loadGraph(file)
		if err != nil {
			return err
		}
		req, err := cfg.FindOptions(root, checker, log)
		if err != nil {
			return err
		}

		ctx, cancel := rf.context(ctx)
		defer cancel()
		res, err := traverse.Find(ctx, req)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), newFindReport(cfg.Label, res))
		}
		printFind(printer(cmd), cfg, res)
		return nil
	}

	if !watch {
		return search(cmd.Context())
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()
	p := printer(cmd)
	return watchFile(ctx, file, DefaultWatchDebounce,
		func() error { return search(ctx) },
		func(err error) { p.Error(err.Error()) },
	)
}

func printFind(p *ux.Printer, cfg *config.Config, res *traverse.Result) {
	paths := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		paths[i] = m.Path.String()
	}
	p.Paths(cfg.Label, paths)
	if cfg.Debug {
		p.Muted(fmt.Sprintf("%d distinct paths visited", len(res.Paths)))
	}
	p.Summary(ux.Summary{
		Matches:      len(res.Matches),
		Visited:      res.Visited,
		Ignored:      res.Ignored,
		AccessErrors: res.AccessErrors,
		Elapsed:      res.Duration,
		Stats:        res.Stats.String(),
	})
}

// =============================================================================
// JSON OUTPUT
// =============================================================================

type findReport struct {
	Root           string      `json:"root"`
	Matches        []matchJSON `json:"matches"`
	Visited        []string    `json:"visited,omitempty"`
	Stats          statsJSON   `json:"stats"`
	Nodes          int         `json:"nodes"`
	Ignored        int         `json:"ignored"`
	AccessErrors   int         `json:"access_errors"`
	DuplicatePaths int         `json:"duplicate_paths"`
	ElapsedMS      int64       `json:"elapsed_ms"`
}

type matchJSON struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

type statsJSON struct {
	Strategy string `json:"strategy"`
	Unique   int    `json:"unique"`
	Marked   int    `json:"marked"`
	Fallback int    `json:"fallback"`
	Buckets  int    `json:"buckets,omitempty"`
	Unknown  int    `json:"unknown,omitempty"`
}

func newFindReport(label string, res *traverse.Result) findReport {
	r := findReport{
		Root:    label,
		Matches: make([]matchJSON, len(res.Matches)),
		Stats: statsJSON{
			Strategy: res.Stats.Strategy,
			Unique:   res.Stats.Unique,
			Marked:   res.Stats.Marked,
			Fallback: res.Stats.Fallback,
			Buckets:  res.Stats.Buckets,
			Unknown:  res.Stats.Unknown,
		},
		Nodes:          res.Visited,
		Ignored:        res.Ignored,
		AccessErrors:   res.AccessErrors,
		DuplicatePaths: res.DuplicatePaths,
		ElapsedMS:      res.Duration.Milliseconds(),
	}
	for i, m := range res.Matches {
		r.Matches[i] = matchJSON{Path: m.Path.String(), Hash: m.Path.Hash()}
	}
	if len(res.Paths) > 0 {
		hashes := make([]string, 0, len(res.Paths))
		for h := range res.Paths {
			hashes = append(hashes, h)
		}
		sort.Strings(hashes)
		r.Visited = make([]string, len(hashes))
		for i, h := range hashes {
			r.Visited[i] = path.Display(h)
		}
	}
	return r
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}
