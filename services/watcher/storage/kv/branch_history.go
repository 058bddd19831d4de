// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package kv

// maxBranchHistory bounds the branch-name history list.
const maxBranchHistory = 50

// BranchHistory persists the branch names the user has created merge
// requests from, newest first, under BranchHistoryKey. The merge-request
// form offers these as quick picks.
type BranchHistory struct {
	store *Store
}

// NewBranchHistory wraps a Store with branch-history accessors.
func NewBranchHistory(store *Store) *BranchHistory {
	return &BranchHistory{store: store}
}

// Load returns the persisted history, newest first. A missing key yields
// an empty list, not an error.
func (h *BranchHistory) Load() ([]string, error) {
	var names []string
	if _, err := h.store.GetJSON(BranchHistoryKey, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Record moves name to the front of the history, dropping any earlier
// occurrence and truncating to the bound.
func (h *BranchHistory) Record(name string) error {
	if name == "" {
		return nil
	}

	names, err := h.Load()
	if err != nil {
		return err
	}

	updated := make([]string, 0, len(names)+1)
	updated = append(updated, name)
	for _, n := range names {
		if n != name {
			updated = append(updated, n)
		}
	}
	if len(updated) > maxBranchHistory {
		updated = updated[:maxBranchHistory]
	}

	return h.store.PutJSON(BranchHistoryKey, updated)
}

// Clear empties the persisted history.
func (h *BranchHistory) Clear() error {
	return h.store.PutJSON(BranchHistoryKey, []string{})
}
