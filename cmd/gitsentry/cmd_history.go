// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitsentry/gitsentry/services/watcher"
	"github.com/gitsentry/gitsentry/services/watcher/storage/kv"
)

var (
	historyJSON bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show the persisted commit ledger",
		Long: `Prints the commit ledger, newest first. The store is locked by a
running watch; run this while the watcher is stopped.`,
		RunE: runHistory,
	}

	historyClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Empty the persisted commit ledger",
		RunE:  runHistoryClear,
	}

	branchesCmd = &cobra.Command{
		Use:   "branches",
		Short: "Show the recorded merge-request branch history",
		RunE:  runBranches,
	}
)

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "emit the ledger as JSON")
	historyCmd.AddCommand(historyClearCmd)
}

func openStore() (*kv.Store, error) {
	return kv.OpenConfig(kv.Config{
		Path:   cfg.StorePath(),
		Logger: logger.Slog(),
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ledger := watcher.NewLedger(cfg.LedgerCapacity, store, logger)
	commits := ledger.Snapshot()

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(commits)
	}

	if len(commits) == 0 {
		fmt.Println("ledger is empty")
		return nil
	}
	for _, c := range commits {
		fmt.Printf("%.8s  %-20s %-15s %s\n", c.Hash, c.RepositoryLabel, c.Branch, c.Message)
	}
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ledger := watcher.NewLedger(cfg.LedgerCapacity, store, logger)
	n := ledger.Len()
	ledger.Clear()
	fmt.Printf("cleared %d commits\n", n)
	return nil
}

func runBranches(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	names, err := kv.NewBranchHistory(store).Load()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no branch history")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
