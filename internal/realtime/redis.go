package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
)

// RedisBroker publishes on one pub/sub channel per user so every API
// replica can serve any user's stream.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func channelFor(userID string) string {
	return "moai:user:" + userID
}

func (b *RedisBroker) Publish(ctx context.Context, userID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan Event, func()) {
	ctx, stop := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(ctx, channelFor(userID))
	out := make(chan Event, subscriberBuffer)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = pubsub.Close()
		})
	}

	// Wait for the subscription to be acknowledged so events published right
	// after Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		logging.Logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("realtime: subscribe failed")
		cancel()
		close(out)
		return out, cancel
	}

	go func() {
		defer close(out)
		defer cancel()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logging.Logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("realtime: drop malformed event")
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()
	return out, cancel
}
