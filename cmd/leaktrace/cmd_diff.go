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

	"github.com/AleutianAI/leaktrace/pkg/logging"
	"github.com/AleutianAI/leaktrace/services/leak/audit"
	"github.com/AleutianAI/leaktrace/services/leak/config"
	"github.com/AleutianAI/leaktrace/services/leak/diff"
	"github.com/AleutianAI/leaktrace/services/leak/path"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/spf13/cobra"
)

var errPathsChanged = errors.New("reachable paths changed")

func newDiffCmd(rf *rootFlags) *cobra.Command {
	tf := &traversalFlags{}
	var (
		ignored      []string
		failOnChange bool
	)

	cmd := &cobra.Command{
		Use:   "diff BEFORE AFTER",
		Short: "Show which paths appeared or vanished between two graphs",
		Long: `Record every path reachable in BEFORE and in AFTER and print the
difference as a unified diff of the sorted path lists.

Examples:
  leaktrace diff before.yaml after.yaml
  leaktrace diff before.yaml after.yaml --ignore-path root/cache --fail-on-change`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, args[0], args[1], rf, tf, ignored, failOnChange)
		},
	}
	tf.register(cmd)
	cmd.Flags().StringArrayVar(&ignored, "ignore-path", nil, "path hash (root/a/b) to leave out of the diff (repeatable)")
	cmd.Flags().BoolVar(&failOnChange, "fail-on-change", false, "exit non-zero when the path sets differ")
	return cmd
}

func runDiff(cmd *cobra.Command, beforeFile, afterFile string, rf *rootFlags, tf *traversalFlags, ignored []string, failOnChange bool) error {
	if err := validateIgnorePaths(ignored); err != nil {
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

	graphs := make([]audit.Graph, 0, 2)
	for _, file := range []string{beforeFile, afterFile} {
		root, err := loadGraph(file)
		if err != nil {
			return err
		}
		graphs = append(graphs, audit.Graph{Name: file, Root: root})
	}

	ctx, cancel := rf.context(cmd.Context())
	defer cancel()

	snaps, err := audit.TakeAll(ctx, graphs, func() ([]traverse.Option, error) {
		return snapshotOptions(cfg, log)
	})
	if err != nil {
		return err
	}
	before, after := snaps[0], snaps[1]

	res := audit.PathChanges(before, after, diff.WithIgnore(ignored...))
	return reportPathChanges(cmd, res, beforeFile, afterFile, len(after.Paths), failOnChange)
}

// reportPathChanges prints res as a unified diff. total is the path count
// shown when nothing changed.
func reportPathChanges(cmd *cobra.Command, res *diff.Result, beforeName, afterName string, total int, failOnChange bool) error {
	p := printer(cmd)
	if res.Empty() {
		p.Success(fmt.Sprintf("same %d reachable paths", total))
		return nil
	}

	unified, err := res.Unified(beforeName, afterName)
	if err != nil {
		return err
	}
	p.Diff(unified)
	p.Info(res.String())
	if failOnChange {
		return errPathsChanged
	}
	return nil
}

// validateIgnorePaths rejects --ignore-path values that are not path
// hashes.
func validateIgnorePaths(ignored []string) error {
	for _, h := range ignored {
		if _, err := path.FromHash(h); err != nil {
			return fmt.Errorf("--ignore-path %q: %w", h, err)
		}
	}
	return nil
}

// snapshotOptions builds fresh options for one snapshot. Visited sets
// are single use, so each snapshot needs its own.
func snapshotOptions(cfg *config.Config, log *logging.Logger) ([]traverse.Option, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	if log != nil {
		return append(opts, traverse.WithLogger(log)), nil
	}
	return append(opts, traverse.WithSilent()), nil
}
