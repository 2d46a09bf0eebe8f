package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/skillforge/skillforge-engine/internal/infrastructure/messaging"
)

// EventBusPubSub adapts the go-redis client to the event bus's Pub/Sub
// needs, so the cross-instance bus shares the cache's connection pool.
type EventBusPubSub struct {
	client *redis.Client
}

// NewEventBusPubSub wraps the cache's client for event fan-out.
func NewEventBusPubSub(cache *Cache) *EventBusPubSub {
	return &EventBusPubSub{client: cache.Client()}
}

// Publish sends one payload to the channel.
func (p *EventBusPubSub) Publish(ctx context.Context, channel, payload string) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Subscribe streams channel messages until the context is cancelled. The
// returned channel closes when the subscription ends.
func (p *EventBusPubSub) Subscribe(ctx context.Context, channel string) (<-chan messaging.PubSubMessage, error) {
	sub := p.client.Subscribe(ctx, channel)
	// Confirm the subscription before handing back the stream.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan messaging.PubSubMessage)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.PubSubMessage{Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
