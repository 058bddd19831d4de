// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"fmt"
	"sync"

	esiq "github.com/esiqveland/notify"
	"github.com/godbus/dbus/v5"

	"github.com/gitsentry/gitsentry/pkg/logging"
)

// DBusNotifier sends interactive notifications through the freedesktop
// notification service on the session bus.
//
// # Thread Safety
//
// Safe for concurrent use. Action signals arrive on the bus goroutine;
// the registered ActionFunc is invoked there, so callbacks must stay
// cheap and must never block on the sender.
type DBusNotifier struct {
	appName  string
	conn     *dbus.Conn
	notifier esiq.Notifier
	log      *logging.Logger

	mu      sync.Mutex
	pending map[uint32]ActionFunc
	closed  bool
}

// NewDBusNotifier connects to the session bus and subscribes to action
// signals. A connection error means no notification server is reachable;
// callers should fall back to a non-interactive notifier.
func NewDBusNotifier(appName string, log *logging.Logger) (*DBusNotifier, error) {
	if log == nil {
		log = logging.Default()
	}

	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("authenticate session bus: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session bus hello: %w", err)
	}

	d := &DBusNotifier{
		appName: appName,
		conn:    conn,
		log:     log,
		pending: make(map[uint32]ActionFunc),
	}

	notifier, err := esiq.New(conn,
		esiq.WithOnAction(d.onAction),
		esiq.WithOnClosed(d.onClosed),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe notification signals: %w", err)
	}
	d.notifier = notifier

	return d, nil
}

// Interactive always returns true; construction fails when the service
// is unreachable.
func (d *DBusNotifier) Interactive() bool { return true }

// Send displays n and remembers onAction until the notification is
// closed or an action fires.
func (d *DBusNotifier) Send(n Notification, onAction ActionFunc) error {
	actions := make([]esiq.Action, 0, len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, esiq.Action{Key: a.Key, Label: a.Label})
	}

	id, err := d.notifier.SendNotification(esiq.Notification{
		AppName:       d.appName,
		Summary:       n.Title,
		Body:          n.Body,
		Actions:       actions,
		ExpireTimeout: esiq.ExpireTimeoutSetByNotificationServer,
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	if onAction != nil {
		d.mu.Lock()
		d.pending[id] = onAction
		d.mu.Unlock()
	}
	return nil
}

// Close drops pending callbacks and tears down the bus connection. Safe
// to call multiple times.
func (d *DBusNotifier) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.pending = make(map[uint32]ActionFunc)
	d.mu.Unlock()

	if err := d.notifier.Close(); err != nil {
		d.conn.Close()
		return fmt.Errorf("close notifier: %w", err)
	}
	return d.conn.Close()
}

// onAction runs on the bus goroutine when the user clicks a button.
func (d *DBusNotifier) onAction(signal *esiq.ActionInvokedSignal) {
	d.mu.Lock()
	fn, ok := d.pending[signal.ID]
	delete(d.pending, signal.ID)
	d.mu.Unlock()

	if !ok {
		d.log.Debug("action for unknown notification", "id", signal.ID, "action", signal.ActionKey)
		return
	}
	fn(signal.ActionKey)
}

// onClosed forgets the callback for dismissed notifications.
func (d *DBusNotifier) onClosed(signal *esiq.NotificationClosedSignal) {
	d.mu.Lock()
	delete(d.pending, signal.ID)
	d.mu.Unlock()
}
