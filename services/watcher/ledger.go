// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"sync"

	"github.com/gitsentry/gitsentry/pkg/logging"
	"github.com/gitsentry/gitsentry/services/watcher/storage/kv"
)

// DefaultLedgerCapacity bounds the ledger when no capacity is configured.
const DefaultLedgerCapacity = 100

// LedgerStore is the slice of the key-value store the ledger needs.
// *kv.Store satisfies it.
type LedgerStore interface {
	GetJSON(key string, v any) (bool, error)
	PutJSON(key string, v any) error
}

// Ledger is the single authoritative, deduplicated, capacity-bounded,
// persisted history of observed commits across all watched repositories.
//
// # Description
//
// Records are kept newest first. Uniqueness is enforced on the commit
// hash: a hash already anywhere in the ledger is rejected. Every accepted
// Record and every Clear persists the full contents under kv.LedgerKey;
// a failed write is logged and swallowed, leaving the in-memory ledger
// authoritative for the running process.
//
// # Thread Safety
//
// Safe for concurrent use. Record serializes its read-check-insert-persist
// sequence under one mutex, so no two Record calls interleave.
type Ledger struct {
	mu       sync.Mutex
	commits  []CommitRecord
	byHash   map[string]struct{}
	capacity int
	store    LedgerStore
	log      *logging.Logger
}

// NewLedger creates a Ledger and rehydrates it from store before any
// repository watch begins. capacity <= 0 selects DefaultLedgerCapacity.
// store may be nil, which disables persistence (tests).
func NewLedger(capacity int, store LedgerStore, log *logging.Logger) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	if log == nil {
		log = logging.Default()
	}

	l := &Ledger{
		byHash:   make(map[string]struct{}),
		capacity: capacity,
		store:    store,
		log:      log,
	}
	l.load()
	return l
}

// Record inserts commit at the head unless its hash is already present.
// The returned size is taken inside the same critical section as the
// insertion, so callers deriving state from it never race a concurrent
// Record or Clear.
//
// # Outputs
//
//   - int: The ledger size after the call, post-eviction.
//   - bool: True if the commit was inserted; false for duplicates.
func (l *Ledger) Record(commit CommitRecord) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.byHash[commit.Hash]; seen {
		return len(l.commits), false
	}

	l.commits = append([]CommitRecord{commit}, l.commits...)
	l.byHash[commit.Hash] = struct{}{}

	// Evict the oldest entries beyond capacity.
	if len(l.commits) > l.capacity {
		for _, evicted := range l.commits[l.capacity:] {
			delete(l.byHash, evicted.Hash)
		}
		l.commits = l.commits[:l.capacity]
	}

	l.persistLocked()
	return len(l.commits), true
}

// Snapshot returns a point-in-time copy, newest first. Callers must not
// assume it updates live.
func (l *Ledger) Snapshot() []CommitRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CommitRecord, len(l.commits))
	copy(out, l.commits)
	return out
}

// Len returns the current number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commits)
}

// Capacity returns the configured bound.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// Clear empties the ledger and persists the empty state.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.commits = nil
	l.byHash = make(map[string]struct{})
	l.persistLocked()
}

// load rehydrates the persisted ledger, bounded to capacity.
func (l *Ledger) load() {
	if l.store == nil {
		return
	}

	var persisted []CommitRecord
	ok, err := l.store.GetJSON(kv.LedgerKey, &persisted)
	if err != nil {
		l.log.Warn("failed to load persisted commit ledger", "error", err)
		return
	}
	if !ok {
		return
	}

	if len(persisted) > l.capacity {
		persisted = persisted[:l.capacity]
	}
	for _, c := range persisted {
		if _, seen := l.byHash[c.Hash]; seen {
			continue
		}
		l.commits = append(l.commits, c)
		l.byHash[c.Hash] = struct{}{}
	}
}

// persistLocked writes the full current contents under the ledger key.
// Caller holds l.mu. Failures are logged, never surfaced; the in-memory
// state stays authoritative.
func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}

	snapshot := make([]CommitRecord, len(l.commits))
	copy(snapshot, l.commits)
	if err := l.store.PutJSON(kv.LedgerKey, snapshot); err != nil {
		l.log.Warn("failed to persist commit ledger", "error", err, "entries", len(snapshot))
	}
}
