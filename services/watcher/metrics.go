// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for watcher operations.
var (
	tracer = otel.Tracer("gitsentry.watcher")
	meter  = otel.Meter("gitsentry.watcher")
)

// Metrics for watcher operations.
var (
	watcherEvents      metric.Int64Counter
	commitsRecorded    metric.Int64Counter
	escalationsTotal   metric.Int64Counter
	resolveDuration    metric.Float64Histogram
	actionsEnqueued    metric.Int64Counter
	listenerBroadcasts metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		watcherEvents, err = meter.Int64Counter(
			"watcher_events_total",
			metric.WithDescription("Total number of filesystem events that passed the git allow-list"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commitsRecorded, err = meter.Int64Counter(
			"watcher_commits_recorded_total",
			metric.WithDescription("Total number of commits accepted into the ledger"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		escalationsTotal, err = meter.Int64Counter(
			"watcher_escalations_total",
			metric.WithDescription("Total number of desktop notification escalations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolveDuration, err = meter.Float64Histogram(
			"git_resolve_duration_seconds",
			metric.WithDescription("Duration of git HEAD resolution after a filesystem event"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		actionsEnqueued, err = meter.Int64Counter(
			"watcher_actions_enqueued_total",
			metric.WithDescription("Total number of action requests enqueued from notifications"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		listenerBroadcasts, err = meter.Int64Counter(
			"watcher_listener_broadcasts_total",
			metric.WithDescription("Total number of listener broadcasts"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordWatcherEvent records one allow-listed filesystem event.
func recordWatcherEvent(ctx context.Context, repo string) {
	if err := initMetrics(); err != nil {
		return
	}
	watcherEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("repo", repo)),
	)
}

// recordCommitRecorded records one accepted ledger insertion.
func recordCommitRecorded(ctx context.Context, repo string) {
	if err := initMetrics(); err != nil {
		return
	}
	commitsRecorded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("repo", repo)),
	)
}

// recordEscalation records one notification escalation.
func recordEscalation(ctx context.Context, repo string) {
	if err := initMetrics(); err != nil {
		return
	}
	escalationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("repo", repo)),
	)
}

// recordResolveDuration records how long git HEAD resolution took.
func recordResolveDuration(ctx context.Context, duration time.Duration, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	resolveDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("ok", ok)),
	)
}

// recordActionEnqueued records one enqueued action request.
func recordActionEnqueued(ctx context.Context, kind ActionKind) {
	if err := initMetrics(); err != nil {
		return
	}
	actionsEnqueued.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", string(kind))),
	)
}

// recordListenerBroadcast records one listener broadcast.
func recordListenerBroadcast(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	listenerBroadcasts.Add(ctx, 1)
}

// startWatcherSpan creates a span for a watcher operation.
func startWatcherSpan(ctx context.Context, operation, repo string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Watcher."+operation,
		trace.WithAttributes(
			attribute.String("watcher.operation", operation),
			attribute.String("watcher.repo", repo),
		),
	)
}
