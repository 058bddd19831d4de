// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"github.com/gen2brain/beeep"

	"github.com/gitsentry/gitsentry/pkg/logging"
)

// BeeepNotifier is the degraded, non-interactive fallback: a best-effort
// toast with no action buttons. It never blocks the caller meaningfully
// and its failures are expected to be swallowed upstream.
type BeeepNotifier struct{}

// NewBeeepNotifier creates the fallback notifier.
func NewBeeepNotifier() *BeeepNotifier {
	return &BeeepNotifier{}
}

// Interactive returns false: actions are dropped and onAction never fires.
func (b *BeeepNotifier) Interactive() bool { return false }

// Send displays a plain toast. Actions and onAction are ignored.
func (b *BeeepNotifier) Send(n Notification, _ ActionFunc) error {
	return beeep.Notify(n.Title, n.Body, "")
}

// Close is a no-op.
func (b *BeeepNotifier) Close() error { return nil }

// NewPlatformNotifier returns the best notifier the platform offers: the
// interactive D-Bus notifier when a notification server is reachable,
// otherwise the beeep fallback.
func NewPlatformNotifier(appName string, log *logging.Logger) Notifier {
	d, err := NewDBusNotifier(appName, log)
	if err != nil {
		if log != nil {
			log.Warn("interactive notifications unavailable, using fallback", "error", err)
		}
		return NewBeeepNotifier()
	}
	return d
}
