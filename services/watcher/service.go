// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/gitsentry/gitsentry/pkg/logging"
	"github.com/gitsentry/gitsentry/services/watcher/gitcli"
)

// Service is the façade over the watcher subsystem: it owns one
// RepoEventSource per watched repository and wires each delivery through
// ledger, escalator and listener registry.
//
// # Description
//
// AddRepository/RemoveRepository manage the watched set; Commits,
// ClearCommits, Subscribe, Unsubscribe and DrainActionRequests are the
// host's read and control surface. The composition root must construct
// at most one Service per process.
//
// # Thread Safety
//
// Safe for concurrent use. Source shutdown happens outside the handle
// lock, so removal never deadlocks against an in-flight delivery.
type Service struct {
	resolver  *gitcli.Resolver
	ledger    *Ledger
	registry  *ListenerRegistry
	escalator *Escalator
	queue     *ActionRequestQueue
	log       *logging.Logger

	mu      sync.Mutex
	sources map[string]*RepoEventSource
}

// NewService wires the façade. ledger, escalator and queue must be the
// same instances the escalator was built around; resolver may be nil for
// the default.
func NewService(ledger *Ledger, escalator *Escalator, queue *ActionRequestQueue, resolver *gitcli.Resolver, log *logging.Logger) *Service {
	if resolver == nil {
		resolver = gitcli.NewResolver()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Service{
		resolver:  resolver,
		ledger:    ledger,
		registry:  NewListenerRegistry(log),
		escalator: escalator,
		queue:     queue,
		log:       log,
		sources:   make(map[string]*RepoEventSource),
	}
}

// AddRepository starts watching the repository at path under the given
// label. If the path is already watched, the old watch is stopped and a
// fresh one started, picking up a changed label.
//
// # Outputs
//
//   - error: ErrNotARepository if path has no git metadata, or the
//     filesystem watch failure that prevented startup.
func (s *Service) AddRepository(path, label string) error {
	canon := canonicalPath(path)

	src, err := NewRepoEventSource(canon, label, s.resolver, s.handleCommit, s.log)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.sources[canon]
	s.sources[canon] = src
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	if err := src.Start(); err != nil {
		s.mu.Lock()
		if s.sources[canon] == src {
			delete(s.sources, canon)
		}
		s.mu.Unlock()
		return err
	}

	s.log.Info("watching repository", "path", canon, "label", label)
	return nil
}

// RemoveRepository stops the watch for path and forgets it. Unknown
// paths are a no-op; calling twice behaves as calling once.
func (s *Service) RemoveRepository(path string) {
	canon := canonicalPath(path)

	s.mu.Lock()
	src := s.sources[canon]
	delete(s.sources, canon)
	s.mu.Unlock()

	if src == nil {
		return
	}
	src.Stop()
	s.log.Info("stopped watching repository", "path", canon)
}

// Repositories returns a snapshot of the watched set.
func (s *Service) Repositories() []RepoHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]RepoHandle, 0, len(s.sources))
	for _, src := range s.sources {
		handles = append(handles, RepoHandle{
			Path:         src.Path(),
			Label:        src.Label(),
			LastSeenHash: src.LastSeenHash(),
			WatchActive:  true,
		})
	}
	return handles
}

// handleCommit is the single delivery path from every source. Runs on
// the source's watch goroutine.
func (s *Service) handleCommit(commit CommitRecord) {
	ctx, span := startWatcherSpan(context.Background(), "HandleCommit", commit.RepositoryPath)
	defer span.End()

	// The post-insert size comes out of the same critical section as the
	// insertion; reading Len separately could race a concurrent Clear and
	// misclassify freshness.
	size, inserted := s.ledger.Record(commit)
	if !inserted {
		// Known from a prior session or another source's chatter.
		return
	}
	recordCommitRecorded(ctx, commit.RepositoryLabel)

	fresh := s.escalator.Evaluate(commit, size)

	recordListenerBroadcast(ctx)
	s.registry.Broadcast(s.ledger.Snapshot(), fresh)
}

// Commits returns a point-in-time copy of the ledger, newest first.
func (s *Service) Commits() []CommitRecord {
	return s.ledger.Snapshot()
}

// ClearCommits empties the ledger, persists the empty state and tells
// listeners the history changed.
func (s *Service) ClearCommits() {
	s.ledger.Clear()
	s.registry.Broadcast(s.ledger.Snapshot(), false)
}

// Subscribe registers a listener under id. Subscribing an id twice is a
// no-op.
func (s *Service) Subscribe(id string, fn Listener) {
	s.registry.Subscribe(id, fn)
}

// Unsubscribe removes the listener registered under id, if any.
func (s *Service) Unsubscribe(id string) {
	s.registry.Unsubscribe(id)
}

// DrainActionRequests atomically removes and returns every pending
// action request. The host polls this on a short fixed interval.
func (s *Service) DrainActionRequests() []ActionRequest {
	return s.queue.DrainAll()
}

// StopAll stops every watch. Idempotent; safe to call from shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	stopping := make([]*RepoEventSource, 0, len(s.sources))
	for _, src := range s.sources {
		stopping = append(stopping, src)
	}
	s.sources = make(map[string]*RepoEventSource)
	s.mu.Unlock()

	for _, src := range stopping {
		src.Stop()
	}
	if len(stopping) > 0 {
		s.log.Info("stopped all repository watches", "count", len(stopping))
	}
}

// canonicalPath normalizes a repository path for use as the handle key.
// Symlinks are resolved when possible so two spellings of one working
// tree collapse to a single watch.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
