package casehub

import (
	"arbiter/backend/internal/models"
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Subscriber opens the shared case-event subscription.
type Subscriber interface {
	SubscribeCaseEvents(ctx context.Context) *redis.PubSub
}

// StartPubSubListener forwards events published by any server instance to
// the Run loop until ctx is done.
func (m *Manager) StartPubSubListener(ctx context.Context, sub Subscriber) {
	pubsub := sub.SubscribeCaseEvents(ctx)
	go func() {
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt models.CaseEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					m.logger.Warn("undecodable case event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case m.EventsCh <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}
