// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import "sync"

// Fake is an in-memory Notifier for tests. It records every sent
// notification and lets the test fire action callbacks as if the user
// had clicked a button.
type Fake struct {
	mu          sync.Mutex
	interactive bool
	sent        []Notification
	callbacks   []ActionFunc
	sendErr     error
	closed      bool
}

// NewFake creates a Fake. interactive controls what Interactive reports.
func NewFake(interactive bool) *Fake {
	return &Fake{interactive: interactive}
}

// FailWith makes subsequent Send calls return err.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// Interactive reports the configured mode.
func (f *Fake) Interactive() bool { return f.interactive }

// Send records n and keeps onAction for ClickAction.
func (f *Fake) Send(n Notification, onAction ActionFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, n)
	f.callbacks = append(f.callbacks, onAction)
	return nil
}

// Close marks the notifier closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Sent returns a copy of every recorded notification.
func (f *Fake) Sent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.sent))
	copy(out, f.sent)
	return out
}

// ClickAction fires the action callback of the i-th sent notification,
// as the platform would on a button press. No-op if no callback was
// registered.
func (f *Fake) ClickAction(i int, actionKey string) {
	f.mu.Lock()
	var fn ActionFunc
	if i >= 0 && i < len(f.callbacks) {
		fn = f.callbacks[i]
	}
	f.mu.Unlock()

	if fn != nil {
		fn(actionKey)
	}
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var _ Notifier = (*Fake)(nil)
