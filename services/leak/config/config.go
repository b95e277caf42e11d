// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads leaktrace configuration.
//
// Configuration is YAML. An embedded defaults file supplies every key; a
// user file overrides only the keys it names. The merged result is
// validated with struct tags before it is turned into traversal options.
//
// Thread Safety:
//
//	Config values are plain data. Concurrent reads are safe; callers must
//	not mutate a Config shared between goroutines.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/AleutianAI/leaktrace/pkg/logging"
	"github.com/AleutianAI/leaktrace/pkg/telemetry"
	"github.com/AleutianAI/leaktrace/services/leak/ignore"
	"github.com/AleutianAI/leaktrace/services/leak/node"
	"github.com/AleutianAI/leaktrace/services/leak/path"
	"github.com/AleutianAI/leaktrace/services/leak/store"
	"github.com/AleutianAI/leaktrace/services/leak/traverse"
	"github.com/AleutianAI/leaktrace/services/leak/visited"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxYAMLFileSize is the largest configuration file accepted (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// EnvPath names the environment variable consulted by Locate.
	EnvPath = "LEAKTRACE_CONFIG"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultsYAML []byte

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigTooLarge is returned when a file exceeds MaxYAMLFileSize.
	ErrConfigTooLarge = errors.New("configuration file too large")
)

// =============================================================================
// Validator
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("regexp", validateRegexp)
	_ = validate.RegisterValidation("pathhash", validatePathHash)
}

func validateRegexp(fl validator.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

func validatePathHash(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	_, err := path.FromHash(s)
	return err == nil
}

// =============================================================================
// Types
// =============================================================================

// Config is the full leaktrace configuration.
type Config struct {
	Label              string   `yaml:"label" validate:"required,max=256"`
	Strategy           string   `yaml:"strategy" validate:"oneof=canary identifier bucket linear"`
	Fallback           string   `yaml:"fallback" validate:"oneof=bucket linear"`
	Order              string   `yaml:"order" validate:"oneof=bfs dfs"`
	MaxDepth           int      `yaml:"max_depth" validate:"gte=1,lte=10000"`
	TraverseMultiple   bool     `yaml:"traverse_multiple"`
	TraversePrototypes bool     `yaml:"traverse_prototypes"`
	Debug              bool     `yaml:"debug"`
	SwallowErrors      bool     `yaml:"swallow_errors"`
	ExtraNames         []string `yaml:"extra_names" validate:"dive,required"`

	Ignore    IgnoreConfig    `yaml:"ignore"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Store     StoreConfig     `yaml:"store"`
}

// IgnoreConfig selects the ignore rules.
type IgnoreConfig struct {
	// Defaults enables ignore.Defaults().
	Defaults bool `yaml:"defaults"`

	// Segments are regular expressions matched against the final path
	// segment.
	Segments []string `yaml:"segments" validate:"dive,required,regexp"`

	// Prefixes are path hashes below which nothing is visited.
	Prefixes []string `yaml:"prefixes" validate:"dive,pathhash"`

	// HasAll lists attribute name groups. A composite node with a truthy
	// value for every name of a group is skipped.
	HasAll [][]string `yaml:"has_all" validate:"dive,min=1,dive,required"`
}

// LogConfig configures the diagnostic sink.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects trace and metric exporters. Empty values defer
// to the OTEL_* environment variables.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`

	// MetricsFile receives a Prometheus textfile when the run ends.
	MetricsFile string `yaml:"metrics_file"`
}

// StoreConfig locates the snapshot baseline store.
type StoreConfig struct {
	Dir        string `yaml:"dir" validate:"required"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := decode(&Config{}, defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded defaults: %v", err))
	}
	return cfg
}

// Parse overlays data on the defaults and validates the result.
//
// Description:
//
//	Keys absent from data keep their default. Lists given in data replace
//	the default list. Unknown keys are rejected. An empty document yields
//	the defaults.
//
// Inputs:
//
//	data - YAML document. At most MaxYAMLFileSize bytes.
//
// Outputs:
//
//	*Config - Validated configuration.
//	error - ErrConfigTooLarge, a YAML error, or ErrInvalidConfig.
func Parse(data []byte) (*Config, error) {
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, len(data), MaxYAMLFileSize)
	}
	cfg, err := decode(Default(), data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a configuration file. An empty path yields the
// defaults.
func Load(file string) (*Config, error) {
	if file == "" {
		return Default(), nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	return cfg, nil
}

// Locate returns the configuration path to use: flag if set, otherwise
// the LEAKTRACE_CONFIG environment variable, otherwise "".
func Locate(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvPath)
}

func decode(into *Config, data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return into, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

// NewSet builds a fresh visited set for one traversal. Marker strategies
// get the configured fallback.
func (c *Config) NewSet() (visited.Set, error) {
	fallback, err := visited.New(c.Fallback)
	if err != nil {
		return nil, fmt.Errorf("%w: fallback: %v", ErrInvalidConfig, err)
	}
	set, err := visited.New(c.Strategy, visited.WithFallback(fallback))
	if err != nil {
		return nil, fmt.Errorf("%w: strategy: %v", ErrInvalidConfig, err)
	}
	return set, nil
}

// IgnoreRule composes the configured ignore rules.
func (c *Config) IgnoreRule() (ignore.Rule, error) {
	var rules []ignore.Rule
	if c.Ignore.Defaults {
		rules = append(rules, ignore.Defaults()...)
	}
	for _, expr := range c.Ignore.Segments {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v", ErrInvalidConfig, expr, err)
		}
		rules = append(rules, ignore.Segment(re))
	}
	for _, h := range c.Ignore.Prefixes {
		p, err := path.FromHash(h)
		if err != nil {
			return nil, fmt.Errorf("%w: prefix %q: %v", ErrInvalidConfig, h, err)
		}
		rules = append(rules, ignore.Prefix(p))
	}
	for _, names := range c.Ignore.HasAll {
		rules = append(rules, ignore.HasAll(names...))
	}
	if len(rules) == 0 {
		return ignore.None(), nil
	}
	return ignore.Compose(rules...), nil
}

// Logger builds the diagnostic sink. A nil out writes to stderr.
func (c *Config) Logger(out io.Writer) *logging.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.New(logging.Config{
		Level:   level,
		Service: "leaktrace",
		JSON:    c.Log.JSON,
		Output:  out,
		LogDir:  c.Log.Dir,
	})
}

// TelemetrySettings layers the telemetry section over
// telemetry.DefaultConfig(). Stdout exporters write to out.
func (c *Config) TelemetrySettings(version string, out io.Writer) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Output = out
	if c.Telemetry.TraceExporter != "" {
		tc.TraceExporter = c.Telemetry.TraceExporter
	}
	if c.Telemetry.MetricExporter != "" {
		tc.MetricExporter = c.Telemetry.MetricExporter
	}
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	tc.MetricsFile = c.Telemetry.MetricsFile
	return tc
}

// SnapshotStore returns the store configuration. BadgerDB messages go to
// log when it is not nil.
func (c *Config) SnapshotStore(log *logging.Logger) store.Config {
	return store.Config{
		Path:       logging.ExpandPath(c.Store.Dir),
		SyncWrites: c.Store.SyncWrites,
		Logger:     log,
	}
}

// Options converts the configuration to traversal options. Each call
// builds a fresh visited set, so the options serve exactly one traversal.
//
// The logger is not included; pair the result with WithLogger or
// WithSilent.
func (c *Config) Options() ([]traverse.Option, error) {
	set, err := c.NewSet()
	if err != nil {
		return nil, err
	}
	rule, err := c.IgnoreRule()
	if err != nil {
		return nil, err
	}
	return []traverse.Option{
		traverse.WithSet(set),
		traverse.WithIgnore(rule),
		traverse.WithLabel(c.Label),
		traverse.WithDFS(c.Order == "dfs"),
		traverse.WithMaxDepth(c.MaxDepth),
		traverse.WithTraverseMultiple(c.TraverseMultiple),
		traverse.WithTraversePrototypes(c.TraversePrototypes),
		traverse.WithDebug(c.Debug),
		traverse.WithSwallowErrors(c.SwallowErrors),
		traverse.WithExtraNames(c.ExtraNames...),
	}, nil
}

// FindOptions fills a search request for root and checker from the
// configuration. The transcript goes to log; a nil log means silent.
func (c *Config) FindOptions(root node.Node, checker traverse.Checker, log *logging.Logger) (traverse.FindOptions, error) {
	set, err := c.NewSet()
	if err != nil {
		return traverse.FindOptions{}, err
	}
	rule, err := c.IgnoreRule()
	if err != nil {
		return traverse.FindOptions{}, err
	}
	return traverse.FindOptions{
		Root:               root,
		Label:              c.Label,
		Checker:            checker,
		Set:                set,
		Ignore:             rule,
		Logger:             log,
		Silent:             log == nil,
		Debug:              c.Debug,
		DFS:                c.Order == "dfs",
		TraverseMultiple:   c.TraverseMultiple,
		TraversePrototypes: c.TraversePrototypes,
		MaxDepth:           c.MaxDepth,
		ExtraNames:         append([]string{}, c.ExtraNames...),
		SwallowErrors:      c.SwallowErrors,
	}, nil
}
