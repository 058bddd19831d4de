// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitsentry/gitsentry/pkg/logging"
	"github.com/gitsentry/gitsentry/services/watcher"
	"github.com/gitsentry/gitsentry/services/watcher/notify"
)

func TestNotifierRoles_InteractivePlatform(t *testing.T) {
	platform := notify.NewFake(true)

	primary, fallback := notifierRoles(platform)
	assert.Same(t, platform, primary)
	require.NotNil(t, fallback)
	assert.False(t, fallback.Interactive())
}

func TestNotifierRoles_NonInteractivePlatform(t *testing.T) {
	platform := notify.NewFake(false)

	primary, fallback := notifierRoles(platform)
	assert.Nil(t, primary)
	assert.Same(t, platform, fallback)
}

func TestNotifierRoles_NilPlatform(t *testing.T) {
	primary, fallback := notifierRoles(nil)
	assert.Nil(t, primary)
	assert.Nil(t, fallback)
}

// A platform without an interactive notification server must still
// produce a plain toast for a genuinely new commit, not silence.
func TestNotifierRoles_DegradedPlatformStillNotifies(t *testing.T) {
	platform := notify.NewFake(false)
	primary, fallback := notifierRoles(platform)

	queue := watcher.NewActionRequestQueue()
	esc := watcher.NewEscalator(0, primary, fallback, queue, logging.Discard())

	commit := watcher.CommitRecord{
		Hash:            "a1b2c3d4",
		Message:         "Fix flaky retry backoff",
		Author:          "Dev One",
		RepositoryLabel: "core",
		RepositoryPath:  "/src/core",
		Branch:          "feature/backoff",
	}
	require.True(t, esc.Evaluate(commit, 1))

	sent := platform.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "New commit - core", sent[0].Title)
	// Degraded toasts carry no action buttons.
	assert.Empty(t, sent[0].Actions)
}
