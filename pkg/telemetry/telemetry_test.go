// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg := DefaultConfig()
	assert.Equal(t, "leaktrace", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)

	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	assert.Equal(t, ExporterStdout, DefaultConfig().TraceExporter)
}

func TestInit_NilContext(t *testing.T) {
	var ctx context.Context
	_, err := Init(ctx, Config{TraceExporter: ExporterNone})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "jaeger-thrift"})
	require.ErrorIs(t, err, ErrUnknownExporter)
	assert.Contains(t, err.Error(), "unknown exporter type")

	_, err = Init(context.Background(), Config{MetricExporter: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_StdoutTraces(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		ServiceName:   "leaktrace-test",
		TraceExporter: ExporterStdout,
		Output:        &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("leaktrace.test").Start(context.Background(), "leak.TestSpan")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "leak.TestSpan")
	assert.Contains(t, buf.String(), "leaktrace-test")
}

func TestInit_MetricsFile(t *testing.T) {
	reg := prometheus.NewRegistry()
	runs := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "leaktrace_test_runs_total",
		Help: "Test counter.",
	})
	runs.Inc()

	file := filepath.Join(t.TempDir(), "leaktrace.prom")
	shutdown, err := Init(context.Background(), Config{
		MetricExporter: ExporterPrometheus,
		Registerer:     reg,
		Gatherer:       reg,
		MetricsFile:    file,
	})
	require.NoError(t, err)

	counter, err := otel.Meter("leaktrace.test").Int64Counter("leaktrace.test.nodes")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "leaktrace_test_runs_total 1")
	assert.Contains(t, string(data), "leaktrace_test_nodes_total")
}

func TestInit_MetricsFileWithoutExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "leaktrace_test_gauge", Help: "Test gauge."}).Set(2)

	file := filepath.Join(t.TempDir(), "leaktrace.prom")
	shutdown, err := Init(context.Background(), Config{Gatherer: reg, MetricsFile: file})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "leaktrace_test_gauge 2")
}
