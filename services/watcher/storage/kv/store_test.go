// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGet(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("absent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put("k", []byte("v")))

	got, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestStore_Delete(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("k", []byte("v")))
	require.NoError(t, store.Delete("k"))
	require.NoError(t, store.Delete("k")) // absent key is a no-op

	_, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_JSONRoundTrip(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	type record struct {
		Hash   string `json:"hash"`
		Branch string `json:"branch"`
	}

	in := []record{{Hash: "h2", Branch: "main"}, {Hash: "h1", Branch: "dev"}}
	require.NoError(t, store.PutJSON(LedgerKey, in))

	var out []record
	ok, err := store.GetJSON(LedgerKey, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestStore_GetJSON_Missing(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	var out []string
	ok, err := store.GetJSON("never-written", &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put("k", []byte("survives")))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("survives"), got)
}

func TestBranchHistory(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	hist := NewBranchHistory(store)

	names, err := hist.Load()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, hist.Record("feature/a"))
	require.NoError(t, hist.Record("feature/b"))
	require.NoError(t, hist.Record("feature/a")) // moves to front, no dup

	names, err = hist.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"feature/a", "feature/b"}, names)

	require.NoError(t, hist.Clear())
	names, err = hist.Load()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBranchHistory_EmptyNameIgnored(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	hist := NewBranchHistory(store)
	require.NoError(t, hist.Record(""))

	names, err := hist.Load()
	require.NoError(t, err)
	assert.Empty(t, names)
}
