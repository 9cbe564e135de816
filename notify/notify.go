// Package notify defines the delivery notification boundary.
//
// Notifiers publish a small JSON event after a voice message has been
// delivered, so downstream systems (chat bots, dashboards) can react
// without polling a mailbox. Notification is best-effort: a failed
// publish is logged by the caller and never affects the HTTP response.
package notify

import "context"

// MessageDeliveredEvent is the payload published after a successful delivery.
type MessageDeliveredEvent struct {
	EventType  string `json:"event_type"` // always "message_delivered"
	MessageID  string `json:"message_id"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	Recipient  string `json:"recipient"`
	Backend    string `json:"backend"` // smtp, api, mediastore
	Timestamp  string `json:"timestamp"` // RFC 3339
	DurationMs int64  `json:"duration_ms"`
}

// Notifier publishes delivery events to a downstream system.
type Notifier interface {
	// Publish sends a delivery event downstream.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *MessageDeliveredEvent) error

	// Close releases notifier resources.
	Close() error
}
