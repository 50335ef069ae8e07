// Package realtime fans change events out to a user's open connections.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventMessageCreated      = "message.created"
	EventConversationRead    = "conversation.read"
	EventNotificationCreated = "notification.created"
	EventSync                = "sync"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

func NewEvent(typ string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", typ, err)
	}
	return Event{Type: typ, Data: raw, At: time.Now().UTC()}, nil
}

// Broker delivers events addressed to a user. Delivery is best effort:
// a subscriber that falls behind loses events rather than blocking
// publishers.
type Broker interface {
	Publish(ctx context.Context, userID string, event Event) error
	// Subscribe returns the event channel and a cancel func that must be
	// called to release the subscription. The channel closes after cancel
	// or when ctx ends.
	Subscribe(ctx context.Context, userID string) (<-chan Event, func())
}

const subscriberBuffer = 32
