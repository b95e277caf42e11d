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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AleutianAI/leaktrace/pkg/logging"
	"github.com/AleutianAI/leaktrace/pkg/telemetry"
	"github.com/AleutianAI/leaktrace/pkg/ux"
	"github.com/AleutianAI/leaktrace/services/leak/config"
	"github.com/AleutianAI/leaktrace/services/leak/object"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// MaxGraphFileSize is the largest graph file accepted (16MB).
const MaxGraphFileSize = 16 * 1024 * 1024

const telemetryShutdownTimeout = 5 * time.Second

var (
	errNoMatcher   = errors.New("at least one of --match-value or --match-key is required")
	errGraphTooBig = errors.New("graph file too large")
)

// =============================================================================
// FLAGS
// =============================================================================

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath    string
	output        string
	timeout       time.Duration
	traceExporter string
	metricsFile   string
}

// traversalFlags override configuration keys when set.
type traversalFlags struct {
	strategy   string
	label      string
	dfs        bool
	multiple   bool
	prototypes bool
	maxDepth   int
	debug      bool
	silent     bool
	swallow    bool
}

func (tf *traversalFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&tf.strategy, "strategy", "", "visited-set strategy: canary, identifier, bucket or linear")
	f.StringVar(&tf.label, "label", "", "root segment of reported paths")
	f.BoolVar(&tf.dfs, "dfs", false, "walk depth-first instead of breadth-first")
	f.BoolVar(&tf.multiple, "multiple", false, "report every route to a match, not only the first")
	f.BoolVar(&tf.prototypes, "prototypes", false, "follow inherited attributes")
	f.IntVar(&tf.maxDepth, "max-depth", 0, "path-length ceiling (default from config, 100)")
	f.BoolVar(&tf.debug, "debug", false, "record every visited path")
	f.BoolVar(&tf.silent, "silent", false, "suppress the search transcript")
	f.BoolVar(&tf.swallow, "swallow-errors", false, "report a failed traversal without a non-zero exit")
}

// apply copies explicitly set flags over cfg and revalidates it.
func (tf *traversalFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("strategy") {
		cfg.Strategy = tf.strategy
	}
	if f.Changed("label") {
		cfg.Label = tf.label
	}
	if f.Changed("dfs") {
		cfg.Order = "bfs"
		if tf.dfs {
			cfg.Order = "dfs"
		}
	}
	if f.Changed("multiple") {
		cfg.TraverseMultiple = tf.multiple
	}
	if f.Changed("prototypes") {
		cfg.TraversePrototypes = tf.prototypes
	}
	if f.Changed("max-depth") {
		cfg.MaxDepth = tf.maxDepth
	}
	if f.Changed("debug") {
		cfg.Debug = tf.debug
	}
	if f.Changed("swallow-errors") {
		cfg.SwallowErrors = tf.swallow
	}
	return cfg.Validate()
}

// matchFlags select the checker.
type matchFlags struct {
	values []string
	keys   []string
}

func (mf *matchFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&mf.values, "match-value", nil, "match primitives equal to this YAML scalar (repeatable)")
	f.StringArrayVar(&mf.keys, "match-key", nil, "match nodes reached through this attribute name (repeatable)")
}

// checker combines every requested matcher. With none requested it
// returns errNoMatcher unless optional is set, in which case nothing
// matches.
func (mf *matchFlags) checker(optional bool) (traverse.Checker, error) {
	var checkers []traverse.Checker
	for _, v := range mf.values {
		checkers = append(checkers, traverse.MatchValue(parseScalar(v)))
	}
	for _, k := range mf.keys {
		checkers = append(checkers, traverse.MatchAttribute(k))
	}
	switch {
	case len(checkers) == 0 && optional:
		return traverse.MatchNone(), nil
	case len(checkers) == 0:
		return nil, errNoMatcher
	case len(checkers) == 1:
		return checkers[0], nil
	}
	return traverse.MatchAny(checkers...), nil
}

// parseScalar reads s as a YAML scalar so "1234" matches the number and
// "'1234'" the string. Anything unparsable is taken literally.
func parseScalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return s
	}
	return v
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}

	root := &cobra.Command{
		Use:   "leaktrace",
		Short: "Find the paths that keep a node of an object graph reachable",
		Long: `leaktrace walks an object graph from its root and reports every path
that reaches a node you are looking for, so you can see exactly which
reference is keeping it alive.

Graphs are YAML documents. Anchors and aliases create shared and cyclic
references; __proto__, __hidden__, __frozen__, __host__, __class__ and
__guarded__ keys describe prototypes and special attributes.

Subcommands:
  find     - Print the paths from the root to matching nodes
  compare  - Check that every visited-set strategy agrees
  diff     - Show which paths appeared or vanished between two graphs
  snapshot - Save reachable path sets and compare graphs against them
  version  - Print the version`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if rf.output != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(rf.output))
			} else {
				ux.InitPersonality()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&rf.configPath, "config", "", "configuration file (default $"+config.EnvPath+")")
	pf.StringVar(&rf.output, "output", "", "output style: standard, minimal or machine (default $"+ux.EnvOutput+")")
	pf.DurationVar(&rf.timeout, "timeout", 0, "abort traversals after this long (0 disables)")
	pf.StringVar(&rf.traceExporter, "trace-exporter", "", "span exporter: none, stdout or otlp (default $OTEL_TRACES_EXPORTER)")
	pf.StringVar(&rf.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	root.AddCommand(newFindCmd(rf), newCompareCmd(rf), newDiffCmd(rf), newSnapshotCmd(rf), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leaktrace %s\n", Version)
		},
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func (rf *rootFlags) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if rf.timeout > 0 {
		return context.WithTimeout(parent, rf.timeout)
	}
	return context.WithCancel(parent)
}

// loadConfig reads the configured file and applies flag overrides.
func (rf *rootFlags) loadConfig(cmd *cobra.Command, tf *traversalFlags) (*config.Config, error) {
	cfg, err := config.Load(config.Locate(rf.configPath))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if rf.traceExporter != "" {
		cfg.Telemetry.TraceExporter = rf.traceExporter
	}
	if rf.metricsFile != "" {
		cfg.Telemetry.MetricsFile = rf.metricsFile
	}
	if err := tf.apply(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startTelemetry installs the configured exporters. The returned func
// flushes them and must be called before the command returns.
func startTelemetry(cmd *cobra.Command, cfg *config.Config) (func(), error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Init(ctx, cfg.TelemetrySettings(Version, cmd.ErrOrStderr()))
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			printer(cmd).Warning(fmt.Sprintf("telemetry shutdown: %v", err))
		}
	}, nil
}

// transcript returns the diagnostic sink, or nil when silenced.
func transcript(cmd *cobra.Command, cfg *config.Config, tf *traversalFlags) *logging.Logger {
	if tf.silent {
		return nil
	}
	return cfg.Logger(cmd.ErrOrStderr())
}

// loadGraph parses a YAML graph file.
func loadGraph(file string) (*object.Object, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("stat graph: %w", err)
	}
	if info.Size() > MaxGraphFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", errGraphTooBig, info.Size(), MaxGraphFileSize)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading graph: %w", err)
	}
	root, err := object.LoadYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return root, nil
}

func printer(cmd *cobra.Command) *ux.Printer {
	return ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
}
