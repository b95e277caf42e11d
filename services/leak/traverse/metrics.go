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
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for traversals.
var (
	tracer = otel.Tracer("leaktrace.traverse")
	meter  = otel.Meter("leaktrace.traverse")
)

// OTel instruments for traversals.
var (
	traverseLatency metric.Float64Histogram
	traverseTotal   metric.Int64Counter
	nodesVisited    metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	traversalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaktrace_traversals_total",
		Help: "Traversals by strategy and outcome",
	}, []string{"strategy", "outcome"})

	matchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaktrace_matches_total",
		Help: "Matching paths reported across all traversals",
	})

	accessErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaktrace_attribute_access_errors_total",
		Help: "Attribute enumerations or reads that failed and were skipped",
	})
)

// initMetrics initializes the OTel instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		traverseLatency, err = meter.Float64Histogram(
			"leaktrace_traverse_duration_seconds",
			metric.WithDescription("Duration of traversals"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traverseTotal, err = meter.Int64Counter(
			"leaktrace_traverse_total",
			metric.WithDescription("Total number of traversals"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesVisited, err = meter.Int64Histogram(
			"leaktrace_traverse_nodes_visited",
			metric.WithDescription("Worklist items processed per traversal"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// outcome classifies a traversal error for metric labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDepthExceeded):
		return "depth_exceeded"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

// recordTraverseMetrics records metrics for a finished traversal.
func recordTraverseMetrics(ctx context.Context, strategy string, res *Result, err error) {
	traversalsTotal.WithLabelValues(strategy, outcome(err)).Inc()
	matchesTotal.Add(float64(len(res.Matches)))
	accessErrorsTotal.Add(float64(res.AccessErrors))

	if initErr := initMetrics(); initErr != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome(err)),
	)
	traverseLatency.Record(ctx, res.Duration.Seconds(), attrs)
	traverseTotal.Add(ctx, 1, attrs)
	nodesVisited.Record(ctx, int64(res.Visited), attrs)
}

// startTraverseSpan creates a span for one traversal.
func startTraverseSpan(ctx context.Context, o Options, strategy string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "leak.Traverse",
		trace.WithAttributes(
			attribute.String("leak.label", o.Label),
			attribute.String("leak.strategy", strategy),
			attribute.Bool("leak.dfs", o.DFS),
			attribute.Bool("leak.traverse_multiple", o.TraverseMultiple),
			attribute.Bool("leak.traverse_prototypes", o.TraversePrototypes),
			attribute.Int("leak.max_depth", o.MaxDepth),
		),
	)
}

// setTraverseSpanResult sets the result attributes on a traversal span.
func setTraverseSpanResult(span trace.Span, res *Result, err error) {
	span.SetAttributes(
		attribute.Int("leak.matches", len(res.Matches)),
		attribute.Int("leak.visited", res.Visited),
		attribute.Int("leak.ignored", res.Ignored),
		attribute.Int("leak.access_errors", res.AccessErrors),
		attribute.Int("leak.unique", res.Stats.Unique),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
