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
)

// Listener receives the updated commit history after each accepted
// insertion or clear. fresh is true when the change is a genuinely new
// commit observed this session, false for replays and clears. The
// snapshot is the listener's to keep; it never mutates.
type Listener func(snapshot []CommitRecord, fresh bool)

// ListenerRegistry is a thread-safe set of history listeners keyed by a
// caller-chosen identifier.
//
// # Description
//
// Go functions are not comparable, so registration is keyed by string:
// subscribing an id twice replaces nothing (first registration wins) and
// unsubscribing an unknown id is a no-op. Mutating the registry during a
// Broadcast is safe; the broadcast already in progress keeps its view.
type ListenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string]Listener
	log       *logging.Logger
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry(log *logging.Logger) *ListenerRegistry {
	if log == nil {
		log = logging.Default()
	}
	return &ListenerRegistry{
		listeners: make(map[string]Listener),
		log:       log,
	}
}

// Subscribe registers fn under id. Subscribing an already-registered id
// is a no-op, preserving the original callback.
func (r *ListenerRegistry) Subscribe(id string, fn Listener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.listeners[id]; exists {
		return
	}
	r.listeners[id] = fn
}

// Unsubscribe removes the listener registered under id. Unknown ids are
// a no-op.
func (r *ListenerRegistry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, id)
}

// Len returns the number of registered listeners.
func (r *ListenerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Broadcast invokes every currently registered listener with snapshot and
// fresh. A panicking listener is logged and skipped; it never prevents
// delivery to the rest and never surfaces to the caller. Listeners added
// or removed while a broadcast runs are not reflected in that broadcast.
func (r *ListenerRegistry) Broadcast(snapshot []CommitRecord, fresh bool) {
	r.mu.RLock()
	targets := make(map[string]Listener, len(r.listeners))
	for id, fn := range r.listeners {
		targets[id] = fn
	}
	r.mu.RUnlock()

	for id, fn := range targets {
		r.invoke(id, fn, snapshot, fresh)
	}
}

func (r *ListenerRegistry) invoke(id string, fn Listener, snapshot []CommitRecord, fresh bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("commit listener panicked", "listener", id, "panic", rec)
		}
	}()
	fn(snapshot, fresh)
}
