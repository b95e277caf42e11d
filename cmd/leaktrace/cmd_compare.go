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
	"errors"
	"fmt"

	"github.com/AleutianAI/leaktrace/pkg/ux"
	"github.com/AleutianAI/leaktrace/services/leak/audit"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
	"github.com/spf13/cobra"
)

var errStrategiesDisagree = errors.New("visited-set strategies disagree")

func newCompareCmd(rf *rootFlags) *cobra.Command {
	tf := &traversalFlags{}
	mf := &matchFlags{}
	var strategies []string

	cmd := &cobra.Command{
		Use:   "compare GRAPH",
		Short: "Check that every visited-set strategy agrees",
		Long: `Walk GRAPH once per visited-set strategy, recording every visited path,
and diff each pair of runs. Exact strategies must produce identical path
indices; a difference is printed as a unified diff and exits non-zero.

Examples:
  leaktrace compare heap.yaml
  leaktrace compare heap.yaml --match-value 1234 --strategies canary,bucket`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args[0], rf, tf, mf, strategies)
		},
	}
	tf.register(cmd)
	mf.register(cmd)
	cmd.Flags().StringSliceVar(&strategies, "strategies", visited.Strategies(), "strategies to run, in order")
	return cmd
}

func runCompare(cmd *cobra.Command, file string, rf *rootFlags, tf *traversalFlags, mf *matchFlags, strategies []string) error {
	checker, err := mf.checker(true)
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
	root, err := loadGraph(file)
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	if log := transcript(cmd, cfg, tf); log != nil {
		defer log.Close()
		opts = append(opts, traverse.WithLogger(log))
	} else {
		opts = append(opts, traverse.WithSilent())
	}

	ctx, cancel := rf.context(cmd.Context())
	defer cancel()

	cmp, err := audit.CompareStrategies(ctx, root, checker, strategies, opts...)
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}

	p := printer(cmd)
	p.Title(fmt.Sprintf("%d strategies, %d pairs", len(cmp.Runs), len(cmp.Pairs)))
	for _, r := range cmp.Runs {
		p.Muted(fmt.Sprintf("%-10s %d paths, %d matches, %s", r.Strategy, len(r.Result.Paths), len(r.Result.Matches), r.Result.Stats))
	}

	rows := make([]ux.Agreement, len(cmp.Pairs))
	for i, pair := range cmp.Pairs {
		rows[i] = ux.Agreement{
			Before:  pair.Before,
			After:   pair.After,
			Agree:   pair.Agree(),
			Details: fmt.Sprintf("paths %s; matches %s", pair.Paths, pair.Matches),
		}
	}
	p.Agreements(rows)

	if cmp.Agree() {
		p.Success("all strategies agree")
		return nil
	}
	for _, pair := range cmp.Disagreements() {
		unified, err := pair.Paths.Unified(pair.Before, pair.After)
		if err != nil {
			return err
		}
		p.Diff(unified)
	}
	return errStrategiesDisagree
}
