// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitsentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.LedgerCapacity)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval.Std())
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app_name: sentry-dev
data_dir: /tmp/sentry
ledger_capacity: 25
poll_interval: 250ms
repositories:
  - path: /src/core
    label: core
  - path: /src/tooling
logging:
  level: debug
  json: true
telemetry:
  enabled: true
  metrics_addr: localhost:9464
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sentry-dev", cfg.AppName)
	assert.Equal(t, 25, cfg.LedgerCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval.Std())
	require.Len(t, cfg.Repositories, 2)
	assert.Equal(t, "core", cfg.Repositories[0].Label)
	// Label defaults to the final path element.
	assert.Equal(t, "tooling", cfg.Repositories[1].Label)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join("/tmp/sentry", "logs"), cfg.Logging.Dir)
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/sentry
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gitsentry", cfg.AppName)
	assert.Equal(t, 100, cfg.LedgerCapacity)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval.Std())
}

func TestWrittenDefaultFileIsHumanEditable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gitsentry.yaml")
	require.NoError(t, writeDefault(path))

	// The generated file carries the duration in unit form, not raw
	// nanoseconds.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval: 500ms")
	assert.NotContains(t, string(data), "500000000")

	// It loads back unchanged.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval.Std())
}

func TestLoadRejectsGarbledPollInterval(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/sentry
poll_interval: fast
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadCapacity(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/sentry
ledger_capacity: 0
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadLevel(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/sentry
logging:
  level: loud
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsTinyPollInterval(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/sentry
poll_interval: 1ms
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsRepositoryWithoutPath(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/sentry
repositories:
  - label: floating
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestStorePathExpandsTilde(t *testing.T) {
	cfg := Default()
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".gitsentry", "store"), cfg.StorePath())
}
