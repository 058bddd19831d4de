// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry wires the OpenTelemetry SDK for gitsentry.
//
// OTel is the abstraction layer: callers use otel.Tracer() and
// otel.Meter() directly and backends are swapped through configuration.
// Metrics default to a Prometheus /metrics endpoint; traces are off
// unless an OTLP endpoint or stdout export is configured.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// ErrNilContext is returned when Init is called without a context.
var ErrNilContext = errors.New("telemetry: nil context")

// Config controls which exporters Init sets up.
type Config struct {
	// ServiceName identifies this process in traces and metrics.
	ServiceName string

	// ServiceVersion is the build version string.
	ServiceVersion string

	// PrometheusMetrics exposes metrics for scraping via MetricsHandler.
	PrometheusMetrics bool

	// OTLPEndpoint sends traces over OTLP gRPC when non-empty, e.g.
	// "localhost:4317". Connections are insecure; this is a local
	// desktop tool.
	OTLPEndpoint string

	// StdoutExport pretty-prints metrics and traces to stdout instead.
	StdoutExport bool
}

// Init initializes the OTel tracer and meter providers.
//
// # Outputs
//
//   - shutdown: Must be called on exit to flush exporters.
//   - error: Non-nil if any exporter fails to initialize.
//
// Thread Safety: Call once at application startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
		return nil
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if tp, err := initTracer(ctx, cfg, res); err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	} else if tp != nil {
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if mp, err := initMeter(cfg, res); err != nil {
		return nil, fmt.Errorf("init meter: %w", err)
	} else if mp != nil {
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}

// initTracer returns a TracerProvider, or nil when tracing is off.
func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch {
	case cfg.OTLPEndpoint != "":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	case cfg.StdoutExport:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

// prometheusHandler stores the Prometheus exporter's HTTP handler.
// Access via MetricsHandler().
var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// MetricsHandler returns the /metrics handler, or nil when the
// Prometheus exporter is not enabled.
//
// Thread Safety: Safe for concurrent use.
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}

// initMeter returns a MeterProvider, or nil when metrics are off.
func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch {
	case cfg.PrometheusMetrics:
		// The OTel prometheus exporter registers with the default
		// prometheus registry, so promhttp.Handler() includes our
		// instruments.
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		prometheusHandlerMu.Lock()
		prometheusHandler = promhttp.Handler()
		prometheusHandlerMu.Unlock()

		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case cfg.StdoutExport:
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, nil
	}
}
