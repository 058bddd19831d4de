// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gitsentry/gitsentry/pkg/logging"
	"github.com/gitsentry/gitsentry/services/watcher/config"
)

var (
	cfg    config.Config
	logger *logging.Logger

	configPath string
	logLevel   string
	jsonLogs   bool

	rootCmd = &cobra.Command{
		Use:   "gitsentry",
		Short: "Watch git repositories and escalate new commits to desktop notifications",
		Long: `gitsentry watches the git control directory of each configured
repository. New commits are recorded into a persistent, deduplicated
ledger and surfaced as interactive desktop notifications whose actions
(view details, create merge request) are queued for the run loop.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.gitsentry/gitsentry.yaml, created on first run)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "force JSON log output on stderr")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(branchesCmd)
}

// setup loads the configuration and builds the process logger before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	// Pipes get JSON, terminals get text, unless overridden.
	useJSON := cfg.Logging.JSON || jsonLogs ||
		!isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())

	logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(level),
		LogDir:  cfg.LogDir(),
		Service: "gitsentry",
		JSON:    useJSON,
	})
	return nil
}
