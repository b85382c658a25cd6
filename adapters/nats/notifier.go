// Package nats publishes delivery status events to NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/coregx/relay"
	"github.com/coregx/relay/model"
)

// Notifier implements relay.NotificationService by publishing status events
// as JSON onto per-outcome NATS subjects:
//
//	<prefix>.delivered
//	<prefix>.failed
//
// Consumers subscribe to "<prefix>.>" for the full status feed.
type Notifier struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNotifier creates a Notifier over an established NATS connection.
// The subject prefix defaults to "relay.status" when empty.
func NewNotifier(conn *nats.Conn, subjectPrefix string) (*Notifier, error) {
	if conn == nil {
		return nil, relay.NewError(relay.ErrCodeConfiguration, "nats connection is required")
	}
	if subjectPrefix == "" {
		subjectPrefix = "relay.status"
	}
	return &Notifier{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// NotifyDelivered publishes a sent or delivered status event.
func (n *Notifier) NotifyDelivered(_ context.Context, event model.StatusEvent) error {
	return n.publish(n.subjectPrefix+".delivered", event)
}

// NotifyFailed publishes a failed or malformed status event.
func (n *Notifier) NotifyFailed(_ context.Context, event model.StatusEvent) error {
	return n.publish(n.subjectPrefix+".failed", event)
}

func (n *Notifier) publish(subject string, event model.StatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
