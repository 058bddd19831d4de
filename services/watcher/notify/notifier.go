// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify abstracts desktop notifications for the watcher.
//
// The preferred mechanism is the freedesktop notification D-Bus service,
// which supports action buttons and invokes a callback when the user
// clicks one. When no notification server is reachable the watcher falls
// back to a best-effort, non-interactive toast via beeep. Absence of the
// preferred mechanism is detected up front at construction so the caller
// can wire the degraded path once.
//
// Action callbacks run on the transport's own goroutine. Implementations
// make no guarantee about which goroutine that is; callers must not touch
// UI-owning state from inside a callback.
package notify

// Action is one named button on a notification.
type Action struct {
	// Key is the opaque identifier handed back to the action callback.
	Key string

	// Label is the user-visible button text.
	Label string
}

// Notification is the content of one desktop notification.
type Notification struct {
	Title   string
	Body    string
	Actions []Action
}

// ActionFunc is invoked with the Key of the clicked action. It may run on
// any goroutine.
type ActionFunc func(actionKey string)

// Notifier delivers desktop notifications.
type Notifier interface {
	// Interactive reports whether Actions are delivered and onAction can
	// ever fire. Non-interactive notifiers silently drop both.
	Interactive() bool

	// Send displays the notification. For interactive notifiers onAction
	// is invoked when the user clicks an action button; it may be nil.
	Send(n Notification, onAction ActionFunc) error

	// Close releases transport resources. Safe to call multiple times.
	Close() error
}
