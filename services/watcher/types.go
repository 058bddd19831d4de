// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watcher detects new commits in watched Git working trees.
//
// # Description
//
// Each watched repository gets a RepoEventSource: a goroutine blocked on
// filesystem events from the repository's git directory. When a relevant
// ref file changes, the source resolves the current HEAD commit and hands
// a CommitRecord to the Service, which deduplicates it into the Ledger,
// decides whether to escalate a desktop notification, and broadcasts the
// updated history to subscribed listeners. User actions taken on a
// notification are captured as ActionRequests and drained by the host
// application on a short polling interval.
//
// # Thread Safety
//
// The Service and every component it composes are safe for concurrent use.
// Notification action callbacks run on whatever goroutine the platform
// notification transport uses; they only construct values and enqueue them.
package watcher

import (
	"errors"
	"time"
)

// DetachedHead is the reserved branch-name sentinel meaning "not on any
// branch". Git reports it from `rev-parse --abbrev-ref HEAD` when HEAD
// does not point at a ref. Action-producing operations reject it.
const DetachedHead = "HEAD"

// ErrNotARepository is returned by AddRepository when the path has no
// recognizable git metadata directory.
var ErrNotARepository = errors.New("path is not a git repository")

// CommitRecord is one observed commit on one branch of one repository.
//
// Hash is the full commit SHA and the unique key: two records with the
// same hash are the same commit regardless of other field differences.
// The JSON tags define the persisted ledger format.
type CommitRecord struct {
	// Hash is the full commit SHA. Immutable once recorded.
	Hash string `json:"hash"`

	// Message is the commit subject line.
	Message string `json:"message"`

	// Author is the commit author name.
	Author string `json:"author"`

	// Date is the author date as git prints it (ISO-ish, author-local).
	Date string `json:"date"`

	// RepositoryLabel is the user-facing workspace name, not the
	// filesystem folder name.
	RepositoryLabel string `json:"repository_label"`

	// RepositoryPath is the absolute working-tree path; the stable
	// identity of the repository.
	RepositoryPath string `json:"repository_path"`

	// Branch is the current branch name, or DetachedHead.
	Branch string `json:"branch"`
}

// OnBranch reports whether the record was taken on a real branch.
func (c CommitRecord) OnBranch() bool {
	return c.Branch != "" && c.Branch != DetachedHead
}

// ActionKind identifies what the user asked for from a notification.
type ActionKind string

const (
	// ActionCreateMergeRequest asks the host to open the merge-request
	// creation dialog seeded from the commit's repository and branch.
	ActionCreateMergeRequest ActionKind = "create-merge-request"

	// ActionViewDetails asks the host to open the commit history panel.
	// Requests of this kind carry no branch.
	ActionViewDetails ActionKind = "view-details"
)

// ActionRequest is a deferred user intent captured from a notification
// action callback. The callback thread only constructs the value and
// enqueues it; the host consumes it exactly once via DrainActionRequests.
type ActionRequest struct {
	// ID is a unique identifier for tracing a request through logs.
	ID string

	// Kind says what the user asked for.
	Kind ActionKind

	// RepositoryPath is the absolute path of the repository the commit
	// belongs to.
	RepositoryPath string

	// Branch is the branch to seed the merge-request form with. Never
	// DetachedHead; empty for ActionViewDetails.
	Branch string

	// RepositoryLabel is the user-facing workspace name.
	RepositoryLabel string

	// CreatedAt is when the callback fired.
	CreatedAt time.Time
}

// RepoHandle describes one watched repository as the Service tracks it.
// Snapshot type: Repositories returns copies, never live internal state.
type RepoHandle struct {
	// Path is the canonicalized absolute working-tree path (the map key).
	Path string

	// Label is the display name; renamable independently of Path.
	Label string

	// LastSeenHash is the hash of the last commit delivered for this
	// repository, or "" before the first delivery.
	LastSeenHash string

	// WatchActive reports whether the filesystem watch is running.
	WatchActive bool
}
