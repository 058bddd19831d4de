// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gitsentry/gitsentry/services/watcher"
	"github.com/gitsentry/gitsentry/services/watcher/gitcli"
	"github.com/gitsentry/gitsentry/services/watcher/notify"
	"github.com/gitsentry/gitsentry/services/watcher/storage/kv"
	"github.com/gitsentry/gitsentry/services/watcher/telemetry"
)

var watchCmd = &cobra.Command{
	Use:   "watch [repository...]",
	Short: "Watch repositories and escalate new commits",
	Long: `Starts one filesystem watch per repository (configured ones plus any
given as arguments), records observed commits into the ledger, and runs
the poll loop that consumes notification actions. Runs until interrupted.`,
	RunE: runWatch,
}

// actionOutput is the JSON line emitted to stdout for each consumed
// action request. The surrounding desktop tooling reads these to open
// the matching dialog.
type actionOutput struct {
	Kind            string   `json:"kind"`
	RepositoryPath  string   `json:"repository_path"`
	RepositoryLabel string   `json:"repository_label"`
	Branch          string   `json:"branch,omitempty"`
	TargetBranches  []string `json:"target_branches,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:       "gitsentry",
			ServiceVersion:    version,
			PrometheusMetrics: cfg.Telemetry.MetricsAddr != "",
			OTLPEndpoint:      cfg.Telemetry.OTLPEndpoint,
			StdoutExport:      cfg.Telemetry.StdoutExport,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	store, err := kv.OpenConfig(kv.Config{
		Path:       cfg.StorePath(),
		SyncWrites: true,
		Logger:     logger.Slog(),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	// Rehydrate before any watch begins so the escalation baseline
	// separates persisted history from this session's commits.
	ledger := watcher.NewLedger(cfg.LedgerCapacity, store, logger)
	baseline := ledger.Len()
	logger.Info("ledger loaded", "commits", baseline, "capacity", cfg.LedgerCapacity)

	platform := notify.NewPlatformNotifier(cfg.AppName, logger)
	defer func() { _ = platform.Close() }()
	primary, fallback := notifierRoles(platform)

	queue := watcher.NewActionRequestQueue()
	escalator := watcher.NewEscalator(baseline, primary, fallback, queue, logger)
	resolver := gitcli.NewResolver()
	svc := watcher.NewService(ledger, escalator, queue, resolver, logger)
	defer svc.StopAll()

	watched := 0
	for _, repo := range cfg.Repositories {
		if err := svc.AddRepository(repo.Path, repo.Label); err != nil {
			logger.Error("cannot watch configured repository",
				"path", repo.Path, "error", err)
			continue
		}
		watched++
	}
	for _, path := range args {
		if err := svc.AddRepository(path, filepath.Base(path)); err != nil {
			return fmt.Errorf("cannot watch %s: %w", path, err)
		}
		watched++
	}
	if watched == 0 {
		return errors.New("no repositories to watch; configure some or pass paths")
	}

	history := kv.NewBranchHistory(store)
	g, ctx := errgroup.WithContext(ctx)

	if handler := telemetry.MetricsHandler(); handler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		srv := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: mux}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Telemetry.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return pollActions(ctx, svc, resolver, history)
	})

	logger.Info("gitsentry running", "repositories", watched,
		"poll_interval", cfg.PollInterval.Std())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gitsentry stopped")
	return nil
}

// notifierRoles assigns the platform notifier to the escalation role it
// can fill. Only an interactive notifier can carry action buttons and be
// the primary; a non-interactive one serves as the best-effort fallback
// instead, so platforms without a notification server still get a plain
// toast rather than silence.
func notifierRoles(platform notify.Notifier) (primary, fallback notify.Notifier) {
	if platform != nil && platform.Interactive() {
		return platform, notify.NewBeeepNotifier()
	}
	return nil, platform
}

// pollActions drains the action queue on the configured interval and
// emits one JSON line per consumed request.
func pollActions(ctx context.Context, svc *watcher.Service, resolver *gitcli.Resolver, history *kv.BranchHistory) error {
	ticker := time.NewTicker(cfg.PollInterval.Std())
	defer ticker.Stop()

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, req := range svc.DrainActionRequests() {
			logger.Info("action request",
				"kind", req.Kind, "repo", req.RepositoryPath, "branch", req.Branch)

			out := actionOutput{
				Kind:            string(req.Kind),
				RepositoryPath:  req.RepositoryPath,
				RepositoryLabel: req.RepositoryLabel,
				Branch:          req.Branch,
			}

			if req.Kind == watcher.ActionCreateMergeRequest {
				if err := history.Record(req.Branch); err != nil {
					logger.Warn("branch history update failed", "error", err)
				}
				// Seed the merge-request dialog's target choices.
				branches, err := resolver.RemoteBranches(ctx, req.RepositoryPath)
				if err != nil {
					logger.Warn("remote branch listing failed",
						"repo", req.RepositoryPath, "error", err)
				} else {
					out.TargetBranches = branches
				}
			}

			if err := enc.Encode(out); err != nil {
				logger.Warn("action output failed", "error", err)
			}
		}
	}
}
