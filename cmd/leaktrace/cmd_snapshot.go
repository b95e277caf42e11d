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
	"fmt"
	"time"

	"github.com/AleutianAI/leaktrace/services/leak/audit"
	"github.com/AleutianAI/leaktrace/services/leak/config"
	"github.com/AleutianAI/leaktrace/services/leak/diff"
	"github.com/AleutianAI/leaktrace/services/leak/store"
	"github.com/spf13/cobra"
)

// snapshotFlags are shared by the snapshot subcommands.
type snapshotFlags struct {
	dir string
}

func newSnapshotCmd(rf *rootFlags) *cobra.Command {
	sf := &snapshotFlags{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save reachable path sets and compare graphs against them",
		Long: `Keep named baselines of the paths reachable in a graph.

A baseline records every path reachable from the root. Later graphs can be
compared against it to see which references appeared or went away.

Subcommands:
  save  - Record the reachable paths of a graph under a name
  list  - List saved baselines
  diff  - Compare a graph against a saved baseline
  rm    - Delete a saved baseline`,
	}
	cmd.PersistentFlags().StringVar(&sf.dir, "store", "", "baseline store directory (default from config, ~/.leaktrace/snapshots)")

	cmd.AddCommand(
		newSnapshotSaveCmd(rf, sf),
		newSnapshotListCmd(rf, sf),
		newSnapshotDiffCmd(rf, sf),
		newSnapshotRmCmd(rf, sf),
	)
	return cmd
}

// openStore opens the configured baseline store.
func (sf *snapshotFlags) openStore(cfg *config.Config) (*store.Store, error) {
	if sf.dir != "" {
		cfg.Store.Dir = sf.dir
	}
	return store.Open(cfg.SnapshotStore(nil))
}

func newSnapshotSaveCmd(rf *rootFlags, sf *snapshotFlags) *cobra.Command {
	tf := &traversalFlags{}
	cmd := &cobra.Command{
		Use:   "save NAME GRAPH",
		Short: "Record the reachable paths of a graph under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rf.loadConfig(cmd, tf)
			if err != nil {
				return err
			}
			stop, err := startTelemetry(cmd, cfg)
			if err != nil {
				return err
			}
			defer stop()

			snap, err := takeSnapshot(cmd, rf, tf, cfg, args[0], args[1])
			if err != nil {
				return err
			}

			st, err := sf.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Save(cmd.Context(), snap); err != nil {
				return err
			}
			printer(cmd).Success(fmt.Sprintf("saved %s: %d paths (%s)", snap.Name, len(snap.Paths), snap.ID))
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

func newSnapshotListCmd(rf *rootFlags, sf *snapshotFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rf.loadConfig(cmd, &traversalFlags{})
			if err != nil {
				return err
			}
			st, err := sf.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			p := printer(cmd)
			if len(entries) == 0 {
				p.Muted("no saved baselines")
				return nil
			}
			for _, e := range entries {
				p.Info(fmt.Sprintf("%s\t%d\t%s\t%s", e.Name, e.Paths, e.TakenAt.Format(time.RFC3339), e.ID))
			}
			return nil
		},
	}
}

func newSnapshotDiffCmd(rf *rootFlags, sf *snapshotFlags) *cobra.Command {
	tf := &traversalFlags{}
	var (
		ignored      []string
		failOnChange bool
	)
	cmd := &cobra.Command{
		Use:   "diff NAME GRAPH",
		Short: "Compare a graph against a saved baseline",
		Long: `Record the paths reachable in GRAPH and print what changed since the
baseline NAME was saved. Use the same --label as when saving, since the
root label is part of every path.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			st, err := sf.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			baseline, err := st.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			after, err := takeSnapshot(cmd, rf, tf, cfg, args[1], args[1])
			if err != nil {
				return err
			}
			res := audit.PathChanges(baseline, after, diff.WithIgnore(ignored...))
			return reportPathChanges(cmd, res, baseline.Name, args[1], len(after.Paths), failOnChange)
		},
	}
	tf.register(cmd)
	cmd.Flags().StringArrayVar(&ignored, "ignore-path", nil, "path hash (root/a/b) to leave out of the diff (repeatable)")
	cmd.Flags().BoolVar(&failOnChange, "fail-on-change", false, "exit non-zero when the path sets differ")
	return cmd
}

func newSnapshotRmCmd(rf *rootFlags, sf *snapshotFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a saved baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rf.loadConfig(cmd, &traversalFlags{})
			if err != nil {
				return err
			}
			st, err := sf.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			printer(cmd).Success("deleted " + args[0])
			return nil
		},
	}
}

// takeSnapshot loads file and records its reachable paths under name.
func takeSnapshot(cmd *cobra.Command, rf *rootFlags, tf *traversalFlags, cfg *config.Config, name, file string) (*audit.Snapshot, error) {
	root, err := loadGraph(file)
	if err != nil {
		return nil, err
	}
	log := transcript(cmd, cfg, tf)
	if log != nil {
		defer log.Close()
	}
	opts, err := snapshotOptions(cfg, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := rf.context(cmd.Context())
	defer cancel()
	return audit.Take(ctx, name, root, opts...)
}
