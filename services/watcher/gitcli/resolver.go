// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitcli shells out to the git porcelain for the few read-only
// queries the watcher needs: current branch, latest commit, and remote
// branch listing. All calls are synchronous, bounded by a per-command
// timeout, and scoped to a working directory.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DetachedHead is what `git rev-parse --abbrev-ref HEAD` prints when the
// repository is not on any branch.
const DetachedHead = "HEAD"

// logFormat asks git for hash, subject, author and author date in one
// query, separated by a character that cannot appear in a SHA.
const logFormat = "%H|%s|%an|%ai"

// ErrNoCommits is returned when the repository has no commits yet.
var ErrNoCommits = errors.New("repository has no commits")

// Commit is the latest commit on a ref as git reports it.
type Commit struct {
	Hash    string
	Subject string
	Author  string
	Date    string
	Branch  string
}

// Resolver runs git commands against working directories.
//
// # Thread Safety
//
// Safe for concurrent use; each call spawns an independent subprocess.
type Resolver struct {
	// gitPath is the binary to invoke, normally "git".
	gitPath string

	// timeout bounds each subprocess. A hung git invocation stalls only
	// the calling goroutine, never the whole process.
	timeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGitPath overrides the git binary path. Used by tests.
func WithGitPath(path string) Option {
	return func(r *Resolver) { r.gitPath = path }
}

// WithTimeout overrides the per-command timeout (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// NewResolver creates a Resolver with defaults suitable for background use.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		gitPath: "git",
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentBranch resolves the branch name for the working tree at dir.
//
// # Outputs
//
//   - string: The branch name, or DetachedHead when HEAD is detached.
//   - error: Non-nil if git fails (missing repo, lock contention, timeout).
func (r *Resolver) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := r.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "" || branch == DetachedHead {
		return DetachedHead, nil
	}
	return branch, nil
}

// HeadCommit resolves the latest commit on the current HEAD of dir with a
// single log query. The Branch field is filled from CurrentBranch; if
// branch resolution fails the commit is still returned with Branch set to
// DetachedHead, matching the failover behavior the watcher wants.
//
// # Outputs
//
//   - Commit: Hash, subject, author, author date and branch.
//   - error: Non-nil if the log query fails or produces no usable output.
func (r *Resolver) HeadCommit(ctx context.Context, dir string) (Commit, error) {
	out, err := r.run(ctx, dir, "log", "-1", "--pretty="+logFormat)
	if err != nil {
		return Commit{}, err
	}

	line := strings.TrimSpace(out)
	if line == "" {
		return Commit{}, ErrNoCommits
	}

	// SplitN keeps '|' characters inside the subject out of trouble for
	// the first field; subjects containing '|' lose their tail into the
	// author field, which the original tooling accepted too.
	parts := strings.SplitN(line, "|", 4)
	if len(parts) < 4 {
		return Commit{}, fmt.Errorf("unexpected git log output %q", line)
	}

	branch, err := r.CurrentBranch(ctx, dir)
	if err != nil {
		branch = DetachedHead
	}

	return Commit{
		Hash:    parts[0],
		Subject: parts[1],
		Author:  parts[2],
		Date:    parts[3],
		Branch:  branch,
	}, nil
}

// RemoteBranches fetches from origin and lists remote branches, stripped
// of the "origin/" prefix. Used to seed the merge-request form's target
// branch choices.
//
// # Outputs
//
//   - []string: Remote branch names, e.g. ["main", "qa/r5-s1"].
//   - error: Non-nil if fetch or listing fails.
func (r *Resolver) RemoteBranches(ctx context.Context, dir string) ([]string, error) {
	if _, err := r.run(ctx, dir, "fetch", "origin"); err != nil {
		return nil, fmt.Errorf("fetch origin: %w", err)
	}

	out, err := r.run(ctx, dir, "branch", "-r", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("list remote branches: %w", err)
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.Contains(name, "HEAD") {
			continue
		}
		branches = append(branches, strings.TrimPrefix(name, "origin/"))
	}
	return branches, nil
}

// IsRepository reports whether dir looks like a git working tree to git
// itself (covers both .git directories and worktree .git files).
func (r *Resolver) IsRepository(ctx context.Context, dir string) bool {
	out, err := r.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// run executes one git command with the configured timeout and returns
// stdout. Stderr is folded into the returned error.
func (r *Resolver) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.gitPath, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %s: %w", args[0], msg, err)
	}
	return stdout.String(), nil
}
