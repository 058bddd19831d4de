// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gitsentry/gitsentry/pkg/logging"
	"github.com/gitsentry/gitsentry/services/watcher/gitcli"
)

// CommitHandler receives each newly resolved commit from a source.
// Called from the source's watch goroutine; implementations must be
// quick or dispatch their own work.
type CommitHandler func(commit CommitRecord)

// RepoEventSource watches one repository's git control directory and
// reports HEAD movement as CommitRecords.
//
// # Description
//
// Subscribes to filesystem events under the git directory (worktree
// `.git`-file indirection resolved) and filters them against a fixed
// allow-list: the HEAD pointer, files under refs/heads, the HEAD reflog
// and files under logs/refs. Relevant events trigger a git resolution of
// the current branch and latest commit; the resolved record is delivered
// to the handler only when its hash differs from the last hash this
// source delivered.
//
// The last-hash check only suppresses redundant delivery on filesystem
// chatter. Whether a commit is new to the application is decided
// upstream by the ledger and escalator.
//
// # Thread Safety
//
// Start must be called once. Stop is idempotent and safe to call
// concurrently with an in-flight delivery; at most one more delivery may
// race through.
type RepoEventSource struct {
	repoPath string
	label    string
	gitDir   string
	resolver *gitcli.Resolver
	handler  CommitHandler
	log      *logging.Logger

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	lastHash string
	started  bool

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewRepoEventSource validates that repoPath holds a git repository and
// prepares a source for it. The watch does not begin until Start.
//
// # Inputs
//
//   - repoPath: Absolute path to the working tree.
//   - label: User-facing workspace name carried into every CommitRecord.
//   - resolver: git query collaborator; nil gets a default Resolver.
//   - handler: Receives resolved commits. Must not be nil.
//
// # Outputs
//
//   - *RepoEventSource: Ready-to-start source.
//   - error: ErrNotARepository if repoPath has no git metadata.
func NewRepoEventSource(repoPath, label string, resolver *gitcli.Resolver, handler CommitHandler, log *logging.Logger) (*RepoEventSource, error) {
	gitDir, err := resolveGitDir(repoPath)
	if err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = gitcli.NewResolver()
	}
	if log == nil {
		log = logging.Default()
	}
	return &RepoEventSource{
		repoPath: repoPath,
		label:    label,
		gitDir:   gitDir,
		resolver: resolver,
		handler:  handler,
		log:      log.With("repo", repoPath),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching and seeds the last-seen hash from the current
// HEAD without delivering it. Returns an error if the filesystem watch
// cannot be established; calling Start twice is an error-free no-op.
func (s *RepoEventSource) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(s.gitDir); err != nil {
		_ = watcher.Close()
		return err
	}
	s.addRefWatches()

	// Establish the baseline hash. A failure here (empty repo, transient
	// lock) leaves it unset so the first real event delivers.
	if commit, err := s.resolver.HeadCommit(context.Background(), s.repoPath); err == nil {
		s.mu.Lock()
		s.lastHash = commit.Hash
		s.mu.Unlock()
	}

	s.wg.Add(1)
	go s.run()

	s.log.Debug("repository watch started", "git_dir", s.gitDir)
	return nil
}

// addRefWatches registers the ref and reflog directories, recursively,
// so ref updates for hierarchical branch names (feature/x) are seen.
func (s *RepoEventSource) addRefWatches() {
	for _, sub := range []string{
		filepath.Join("refs", "heads"),
		"logs",
		filepath.Join("logs", "refs"),
	} {
		root := filepath.Join(s.gitDir, sub)
		if _, err := os.Stat(root); err != nil {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if werr := s.watcher.Add(path); werr != nil {
				s.log.Debug("failed to watch git subdirectory",
					"path", path, "error", werr)
			}
			return nil
		})
		if err != nil {
			s.log.Debug("failed to walk git subdirectory",
				"path", root, "error", err)
		}
	}
}

// run is the watch goroutine.
func (s *RepoEventSource) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("filesystem watch error", "error", err)

		case <-s.done:
			return
		}
	}
}

// handleEvent filters one raw filesystem event and, when relevant,
// resolves and delivers the current commit.
func (s *RepoEventSource) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	rel, err := filepath.Rel(s.gitDir, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// New directories under the watched roots (hierarchical branch
	// names) need their own watch before their files matter.
	if event.Op&fsnotify.Create != 0 {
		if info, serr := os.Stat(event.Name); serr == nil && info.IsDir() {
			if strings.HasPrefix(rel, "refs/heads/") || strings.HasPrefix(rel, "logs/refs/") {
				if werr := s.watcher.Add(event.Name); werr != nil {
					s.log.Debug("failed to watch new git subdirectory",
						"path", event.Name, "error", werr)
				}
			}
			return
		}
	}

	if !relevantGitPath(rel) {
		return
	}

	ctx := context.Background()
	recordWatcherEvent(ctx, s.label)

	start := time.Now()
	commit, err := s.resolver.HeadCommit(ctx, s.repoPath)
	recordResolveDuration(ctx, time.Since(start), err == nil)
	if err != nil {
		// Transient: index.lock contention, mid-rewrite refs. The next
		// event will retry.
		s.log.Debug("head resolution failed, dropping event",
			"path", event.Name, "error", err)
		return
	}

	s.mu.Lock()
	if commit.Hash == s.lastHash {
		s.mu.Unlock()
		return
	}
	s.lastHash = commit.Hash
	s.mu.Unlock()

	s.handler(CommitRecord{
		Hash:            commit.Hash,
		Message:         commit.Subject,
		Author:          commit.Author,
		Date:            commit.Date,
		RepositoryLabel: s.label,
		RepositoryPath:  s.repoPath,
		Branch:          commit.Branch,
	})
}

// relevantGitPath reports whether a path relative to the git directory
// is on the allow-list of HEAD-movement indicators.
func relevantGitPath(rel string) bool {
	switch {
	case rel == "HEAD":
		return true
	case rel == "logs/HEAD":
		return true
	case strings.HasPrefix(rel, "refs/heads/"):
		return true
	case strings.HasPrefix(rel, "logs/refs/"):
		return true
	}
	return false
}

// LastSeenHash returns the hash most recently delivered (or seeded) by
// this source, or "" if none yet.
func (s *RepoEventSource) LastSeenHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// Label returns the user-facing workspace name.
func (s *RepoEventSource) Label() string { return s.label }

// Path returns the watched working tree path.
func (s *RepoEventSource) Path() string { return s.repoPath }

// Stop halts the watch and joins the goroutine. Safe to call multiple
// times and from multiple goroutines.
func (s *RepoEventSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
	})
	s.wg.Wait()
}

// resolveGitDir locates the git control directory for a working tree.
// Worktrees have a .git file containing "gitdir: <path>" instead of a
// directory; the reference is resolved, relative paths against repoPath.
func resolveGitDir(repoPath string) (string, error) {
	gitPath := filepath.Join(repoPath, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", ErrNotARepository
	}
	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", ErrNotARepository
	}
	line := strings.TrimSpace(string(content))
	const prefix = "gitdir: "
	if !strings.HasPrefix(line, prefix) {
		return "", ErrNotARepository
	}
	dir := strings.TrimSpace(line[len(prefix):])
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoPath, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", ErrNotARepository
	}
	return dir, nil
}
