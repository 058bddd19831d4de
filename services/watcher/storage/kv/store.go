// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package kv provides the local key-value persistence the watcher needs,
// backed by BadgerDB.
//
// The watcher stores two things, each under one fixed logical key: the
// commit ledger and the branch-name history. Badger gives crash-safe
// writes (a partial write never corrupts previously committed data) and
// an in-memory mode that keeps tests off the disk.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const (
	// LedgerKey is the fixed key the commit ledger persists under.
	LedgerKey = "commit-ledger"

	// BranchHistoryKey is the fixed key for the branch-name history the
	// merge-request form reuses. Kept separate from the ledger.
	BranchHistoryKey = "new-branch-history"
)

// Store is a thin, domain-keyed wrapper over a Badger database.
//
// # Thread Safety
//
// Safe for concurrent use; Badger serializes transactions internally.
type Store struct {
	db       *badger.DB
	path     string
	inMemory bool
}

// Config holds Store configuration.
type Config struct {
	// Path is the database directory. Created if missing. Ignored when
	// InMemory is set.
	Path string

	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool

	// SyncWrites forces fsync on every commit. On for persistent stores.
	SyncWrites bool

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// Open opens a persistent Store at path with durable defaults.
func Open(path string) (*Store, error) {
	return OpenConfig(Config{Path: path, SyncWrites: true})
}

// OpenInMemory opens a Store that keeps everything in RAM. Data is lost
// on Close; intended for tests.
func OpenInMemory() (*Store, error) {
	return OpenConfig(Config{InMemory: true})
}

// OpenConfig opens a Store with explicit configuration.
func OpenConfig(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &Store{db: db, path: cfg.Path, inMemory: cfg.InMemory}, nil
}

// Get returns the value stored under key. The second return is false when
// the key has never been written.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// GetJSON unmarshals the value under key into v. Returns false when the
// key has never been written; v is left untouched in that case.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	data, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON marshals v and stores it under key.
func (s *Store) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(key, data)
}

// Close flushes and closes the underlying database. Safe to call once.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store directory, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// InMemory reports whether the store is RAM-only.
func (s *Store) InMemory() bool {
	return s.inMemory
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
