package domain

import (
	"context"
	"time"
)

// NotificationLevel classifies a user-facing notification.
type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
	NotificationInfo    NotificationLevel = "info"
)

// Notification is a transient, dismissible message surfaced to the dashboard.
// Every recoverable failure path in the data-fetch and mutation flows ends in
// one of these instead of an error escaping the layer.
type Notification struct {
	ID      string            `json:"id"`
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// Notifier delivers notifications to connected dashboard clients.
type Notifier interface {
	Notify(ctx context.Context, level NotificationLevel, message string)
}

// Broadcaster pushes a named event with a JSON-serializable payload to every
// connected dashboard client.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any)
}
