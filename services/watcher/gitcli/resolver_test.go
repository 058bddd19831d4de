// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitcli

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// initRepo creates a git repository with one commit and returns its path.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	run("init")
	run("config", "user.email", "alice@example.com")
	run("config", "user.name", "alice")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644))
	run("add", "README.md")
	run("commit", "-m", "initial commit")

	return dir
}

func commitFile(t *testing.T, dir, name, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name+"\n"), 0644))
	for _, args := range [][]string{
		{"add", name},
		{"commit", "-m", message},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
}

func TestResolver_CurrentBranch(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	r := NewResolver()

	branch, err := r.CurrentBranch(context.Background(), dir)
	require.NoError(t, err)
	assert.Contains(t, []string{"main", "master"}, branch)
}

func TestResolver_CurrentBranch_Detached(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	r := NewResolver()

	cmd := exec.Command("git", "checkout", "--detach", "HEAD")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	branch, err := r.CurrentBranch(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, DetachedHead, branch)
}

func TestResolver_HeadCommit(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	r := NewResolver()

	commit, err := r.HeadCommit(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, commit.Hash, 40)
	assert.Equal(t, "initial commit", commit.Subject)
	assert.Equal(t, "alice", commit.Author)
	assert.NotEmpty(t, commit.Date)
	assert.Contains(t, []string{"main", "master"}, commit.Branch)
}

func TestResolver_HeadCommit_SubjectWithSeparator(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	r := NewResolver()

	commitFile(t, dir, "a.txt", "fix: handle a|b case")

	commit, err := r.HeadCommit(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, commit.Hash, 40)
	assert.Contains(t, commit.Subject, "fix: handle a")
}

func TestResolver_HeadCommit_NotARepo(t *testing.T) {
	requireGit(t)
	r := NewResolver()

	_, err := r.HeadCommit(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestResolver_IsRepository(t *testing.T) {
	requireGit(t)
	r := NewResolver()

	assert.True(t, r.IsRepository(context.Background(), initRepo(t)))
	assert.False(t, r.IsRepository(context.Background(), t.TempDir()))
}

func TestResolver_Timeout(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	r := NewResolver(WithTimeout(time.Nanosecond))

	_, err := r.HeadCommit(context.Background(), dir)
	assert.Error(t, err)
}

func TestResolver_RemoteBranches(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	// Use a second local repo as "origin" so no network is involved.
	remote := initRepo(t)
	cmd := exec.Command("git", "remote", "add", "origin", remote)
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	r := NewResolver()
	branches, err := r.RemoteBranches(context.Background(), dir)
	require.NoError(t, err)
	require.NotEmpty(t, branches)
	assert.Contains(t, []string{"main", "master"}, branches[0])
}
