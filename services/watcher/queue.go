// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import "sync"

// ActionRequestQueue hands user intents captured on notification callback
// goroutines over to the host application's polling loop.
//
// # Description
//
// The queue is unbounded: requests are rare (one per notification button
// press) and the host drains on a short fixed interval, so growth is not
// a practical hazard. Enqueue and DrainAll are each atomic; a request is
// never lost and never returned twice. An Enqueue racing a DrainAll lands
// either in that drain's result or in the next one.
//
// # Thread Safety
//
// Safe for concurrent use.
type ActionRequestQueue struct {
	mu       sync.Mutex
	requests []ActionRequest
}

// NewActionRequestQueue creates an empty queue.
func NewActionRequestQueue() *ActionRequestQueue {
	return &ActionRequestQueue{}
}

// Enqueue appends request.
func (q *ActionRequestQueue) Enqueue(request ActionRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, request)
}

// DrainAll atomically removes and returns everything currently queued, in
// enqueue order. Returns nil when the queue is empty.
func (q *ActionRequestQueue) DrainAll() []ActionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.requests
	q.requests = nil
	return drained
}

// Len returns the number of queued requests.
func (q *ActionRequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}
