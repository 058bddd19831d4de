// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitsentry/gitsentry/pkg/logging"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

// initRepo creates a git repository with one commit and returns its path.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitRun(t, dir, "init")
	gitRun(t, dir, "config", "user.email", "alice@example.com")
	gitRun(t, dir, "config", "user.name", "alice")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644))
	gitRun(t, dir, "add", "README.md")
	gitRun(t, dir, "commit", "-m", "initial commit")
	return dir
}

func commitFile(t *testing.T, dir, name, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name+"\n"), 0644))
	gitRun(t, dir, "add", name)
	gitRun(t, dir, "commit", "-m", message)
}

// collectCommits returns a handler feeding a channel.
func collectCommits() (CommitHandler, chan CommitRecord) {
	ch := make(chan CommitRecord, 16)
	return func(c CommitRecord) { ch <- c }, ch
}

func waitForCommit(t *testing.T, ch chan CommitRecord) CommitRecord {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for commit delivery")
		return CommitRecord{}
	}
}

func assertNoCommit(t *testing.T, ch chan CommitRecord) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected commit delivery: %s", c.Hash)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestNewRepoEventSource_NotARepository(t *testing.T) {
	handler, _ := collectCommits()
	_, err := NewRepoEventSource(t.TempDir(), "x", nil, handler, logging.Discard())
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestResolveGitDir_Directory(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	gitDir, err := resolveGitDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".git"), gitDir)
}

func TestResolveGitDir_WorktreeFile(t *testing.T) {
	requireGit(t)
	main := initRepo(t)
	wt := filepath.Join(t.TempDir(), "wt")
	gitRun(t, main, "worktree", "add", "-b", "feature/wt", wt)

	gitDir, err := resolveGitDir(wt)
	require.NoError(t, err)
	info, err := os.Stat(gitDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveGitDir_MalformedGitFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("not a pointer\n"), 0644))

	_, err := resolveGitDir(dir)
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestRelevantGitPath(t *testing.T) {
	for rel, want := range map[string]bool{
		"HEAD":                      true,
		"logs/HEAD":                 true,
		"refs/heads/main":           true,
		"refs/heads/feature/x":      true,
		"logs/refs/heads/main":      true,
		"index":                     false,
		"config":                    false,
		"FETCH_HEAD":                false,
		"refs/remotes/origin/main":  false,
		"objects/ab/cdef":           false,
		"hooks/pre-commit":          false,
	} {
		assert.Equal(t, want, relevantGitPath(rel), rel)
	}
}

func TestRepoEventSource_DeliversNewCommit(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	handler, ch := collectCommits()

	src, err := NewRepoEventSource(dir, "proj", nil, handler, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	// The commit present at start is the seed, not news.
	assertNoCommit(t, ch)

	commitFile(t, dir, "a.txt", "add a")
	got := waitForCommit(t, ch)

	assert.Len(t, got.Hash, 40)
	assert.Equal(t, "add a", got.Message)
	assert.Equal(t, "alice", got.Author)
	assert.Equal(t, "proj", got.RepositoryLabel)
	assert.Equal(t, dir, got.RepositoryPath)
	assert.NotEqual(t, DetachedHead, got.Branch)
}

func TestRepoEventSource_SuppressesDuplicateHash(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	handler, ch := collectCommits()

	src, err := NewRepoEventSource(dir, "proj", nil, handler, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	commitFile(t, dir, "a.txt", "add a")
	first := waitForCommit(t, ch)

	// Touching HEAD without moving it is filesystem chatter.
	head := filepath.Join(dir, ".git", "HEAD")
	content, err := os.ReadFile(head)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(head, content, 0644))

	assertNoCommit(t, ch)
	assert.Equal(t, first.Hash, src.LastSeenHash())
}

func TestRepoEventSource_SequentialCommits(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	handler, ch := collectCommits()

	src, err := NewRepoEventSource(dir, "proj", nil, handler, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	commitFile(t, dir, "a.txt", "add a")
	first := waitForCommit(t, ch)
	commitFile(t, dir, "b.txt", "add b")
	second := waitForCommit(t, ch)

	assert.NotEqual(t, first.Hash, second.Hash)
	assert.Equal(t, "add b", second.Message)
}

func TestRepoEventSource_StopIdempotent(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	handler, _ := collectCommits()

	src, err := NewRepoEventSource(dir, "proj", nil, handler, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, src.Start())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src.Stop()
		}()
	}
	wg.Wait()
	src.Stop()
}

func TestRepoEventSource_StartTwice(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	handler, _ := collectCommits()

	src, err := NewRepoEventSource(dir, "proj", nil, handler, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	assert.NoError(t, src.Start())
}
