// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gitsentry/gitsentry/pkg/logging"
	"github.com/gitsentry/gitsentry/pkg/validation"
	"github.com/gitsentry/gitsentry/services/watcher/notify"
)

// maxNotificationSubject bounds the commit subject shown in a toast.
const maxNotificationSubject = 50

// Escalator decides, for each accepted ledger insertion, whether the
// commit is genuinely new to this session and, if so, surfaces an
// interactive desktop notification for it.
//
// # Freshness
//
// The baseline is the number of records rehydrated from disk before any
// watch began. A commit is "genuinely new" when the ledger has grown past
// that baseline. This is a counting rule, not a per-commit flag: it is
// correct for the common append-only session but can misclassify after a
// mid-session Clear followed by re-insertion. Kept as-is deliberately;
// see DESIGN.md.
//
// # Action callbacks
//
// The notification binds the CommitRecord by value, so the callback is
// self-contained no matter when the platform fires it. Callbacks run on
// the notification transport's goroutine: they only validate, construct
// an ActionRequest, and enqueue it. Malformed actions (detached HEAD,
// missing repository path) are dropped with a log line and never reach
// the host.
type Escalator struct {
	baseline int
	primary  notify.Notifier
	fallback notify.Notifier
	queue    *ActionRequestQueue
	log      *logging.Logger
}

// NewEscalator creates an Escalator armed with the given baseline.
// primary may be nil or non-interactive; fallback may be nil. queue must
// not be nil.
func NewEscalator(baseline int, primary, fallback notify.Notifier, queue *ActionRequestQueue, log *logging.Logger) *Escalator {
	if log == nil {
		log = logging.Default()
	}
	return &Escalator{
		baseline: baseline,
		primary:  primary,
		fallback: fallback,
		queue:    queue,
		log:      log,
	}
}

// Baseline returns the rehydrated-record count captured at startup.
func (e *Escalator) Baseline() int {
	return e.baseline
}

// Evaluate is called after every accepted ledger insertion with the
// ledger's new size. It returns the freshness flag for the listener
// broadcast and escalates when the commit is genuinely new.
func (e *Escalator) Evaluate(commit CommitRecord, ledgerSize int) bool {
	fresh := ledgerSize > e.baseline
	if fresh {
		e.escalate(commit)
	}
	return fresh
}

// escalate shows the notification for commit. Failures degrade: primary
// interactive first, then the non-interactive fallback, then silence.
func (e *Escalator) escalate(commit CommitRecord) {
	recordEscalation(context.Background(), commit.RepositoryLabel)

	title := "New commit - " + commit.RepositoryLabel
	body := truncate(commit.Message, maxNotificationSubject) + "\nAuthor: " + commit.Author

	if e.primary != nil && e.primary.Interactive() {
		n := notify.Notification{
			Title: title,
			Body:  body,
			Actions: []notify.Action{
				{Key: string(ActionViewDetails), Label: "View details"},
				{Key: string(ActionCreateMergeRequest), Label: "Create MR"},
			},
		}
		err := e.primary.Send(n, func(actionKey string) {
			e.handleAction(actionKey, commit)
		})
		if err == nil {
			return
		}
		e.log.Warn("interactive notification failed, falling back",
			"repo", commit.RepositoryPath, "error", err)
	}

	if e.fallback == nil {
		return
	}
	// Best effort, no actions; failures are swallowed entirely.
	if err := e.fallback.Send(notify.Notification{Title: title, Body: body}, nil); err != nil {
		e.log.Debug("fallback notification failed", "error", err)
	}
}

// handleAction runs on the notification transport's goroutine.
func (e *Escalator) handleAction(actionKey string, commit CommitRecord) {
	switch ActionKind(actionKey) {
	case ActionViewDetails:
		e.queue.Enqueue(ActionRequest{
			ID:              uuid.NewString(),
			Kind:            ActionViewDetails,
			RepositoryPath:  commit.RepositoryPath,
			RepositoryLabel: commit.RepositoryLabel,
			CreatedAt:       time.Now(),
		})
		recordActionEnqueued(context.Background(), ActionViewDetails)

	case ActionCreateMergeRequest:
		if commit.RepositoryPath == "" {
			e.log.Warn("dropping merge-request action without repository path", "hash", commit.Hash)
			return
		}
		if err := validation.ValidateBranch(commit.Branch); err != nil {
			e.log.Warn("dropping merge-request action with unusable branch",
				"repo", commit.RepositoryPath, "hash", commit.Hash, "error", err)
			return
		}
		e.queue.Enqueue(ActionRequest{
			ID:              uuid.NewString(),
			Kind:            ActionCreateMergeRequest,
			RepositoryPath:  commit.RepositoryPath,
			Branch:          commit.Branch,
			RepositoryLabel: commit.RepositoryLabel,
			CreatedAt:       time.Now(),
		})
		recordActionEnqueued(context.Background(), ActionCreateMergeRequest)

	default:
		e.log.Debug("ignoring unknown notification action", "action", actionKey)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
