package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

func quietBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
		Logger:        logger.New(logger.Options{Output: io.Discard}),
	}
}

func awardEvent(userID string, newTotal int) shared.Event {
	return shared.NewXPAwardedEvent(userID, "tx-1", 50, newTotal, "lesson_completion", "l1")
}

func TestInMemoryEventBus_PublishToSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())

	var got []shared.Event
	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(e shared.Event) error {
		got = append(got, e)
		return nil
	}))

	assert.NoError(t, bus.Publish(awardEvent("user-1", 150)))
	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 150)))

	assert.Len(t, got, 1)
	assert.Equal(t, shared.EventXPAwarded, got[0].EventType())
	assert.Equal(t, "user-1", got[0].AggregateID())
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())

	count := 0
	assert.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		count++
		return nil
	}))

	assert.NoError(t, bus.Publish(awardEvent("user-1", 150)))
	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 150)))

	assert.Equal(t, 2, count)
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())

	second := false
	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(e shared.Event) error {
		return errors.New("boom")
	}))
	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(e shared.Event) error {
		second = true
		return nil
	}))

	assert.NoError(t, bus.Publish(awardEvent("user-1", 150)))
	assert.True(t, second)
}

func TestInMemoryEventBus_NilChecks(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())

	assert.Error(t, bus.Subscribe(shared.EventXPAwarded, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestInMemoryEventBus_Close(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())
	assert.NoError(t, bus.Close())
	assert.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(awardEvent("user-1", 150)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_AsyncDeliveryDrainsOnClose(t *testing.T) {
	cfg := quietBusConfig()
	cfg.AsyncMode = true
	cfg.WorkerPoolSize = 2
	bus := NewInMemoryEventBus(cfg)

	var mu sync.Mutex
	count := 0
	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(e shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 5; i++ {
		assert.NoError(t, bus.Publish(awardEvent("user-1", 150+i)))
	}
	assert.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

func TestEventBusMetrics(t *testing.T) {
	bus := NewInMemoryEventBus(quietBusConfig())

	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error { return nil }))
	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error { return errors.New("boom") }))
	assert.NoError(t, bus.Publish(awardEvent("user-1", 150)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
}

// fakePubSub is an in-process stand-in for the Redis Pub/Sub channel.
type fakePubSub struct {
	mu        sync.Mutex
	published []string
	incoming  chan PubSubMessage
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{incoming: make(chan PubSubMessage, 16)}
}

func (f *fakePubSub) Publish(_ context.Context, _ string, payload string) error {
	f.mu.Lock()
	f.published = append(f.published, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakePubSub) Subscribe(context.Context, string) (<-chan PubSubMessage, error) {
	return f.incoming, nil
}

func (f *fakePubSub) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func quietRedisBus(t *testing.T, ps *fakePubSub, instanceID string) *RedisEventBus {
	t.Helper()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:     ps,
		InstanceID: instanceID,
		Local:      quietBusConfig(),
		Logger:     logger.New(logger.Options{Output: io.Discard}),
	})
	assert.NoError(t, err)
	return bus
}

func TestRedisEventBus_MirrorsPublishesToChannel(t *testing.T) {
	ps := newFakePubSub()
	bus := quietRedisBus(t, ps, "instance-a")
	defer bus.Close()

	local := 0
	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error {
		local++
		return nil
	}))

	assert.NoError(t, bus.Publish(awardEvent("user-1", 150)))
	assert.Equal(t, 1, local)
	assert.Equal(t, 1, ps.publishedCount())

	var env eventEnvelope
	assert.NoError(t, json.Unmarshal([]byte(ps.published[0]), &env))
	assert.Equal(t, "instance-a", env.InstanceID)
	assert.Equal(t, shared.EventXPAwarded, env.EventType)
	assert.Equal(t, "user-1", env.AggregateID)
}

func TestRedisEventBus_DeliversRemoteEvents(t *testing.T) {
	ps := newFakePubSub()
	bus := quietRedisBus(t, ps, "instance-a")
	defer bus.Close()

	got := make(chan shared.Event, 1)
	assert.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(e shared.Event) error {
		got <- e
		return nil
	}))

	remote, err := json.Marshal(eventEnvelope{
		InstanceID:  "instance-b",
		EventType:   shared.EventXPAwarded,
		AggregateID: "user-2",
		OccurredAt:  time.Now().UTC(),
		Payload:     map[string]interface{}{"user_id": "user-2", "new_total": float64(300)},
	})
	assert.NoError(t, err)
	ps.incoming <- PubSubMessage{Payload: string(remote)}

	select {
	case e := <-got:
		assert.Equal(t, "user-2", e.AggregateID())
		assert.Equal(t, "user-2", e.Payload()["user_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("remote event was not delivered")
	}
}

func TestRedisEventBus_SkipsOwnEnvelopes(t *testing.T) {
	ps := newFakePubSub()
	bus := quietRedisBus(t, ps, "instance-a")

	count := 0
	var mu sync.Mutex
	assert.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	// Echo the bus's own envelope back, as Redis Pub/Sub does.
	assert.NoError(t, bus.Publish(awardEvent("user-1", 150)))
	ps.incoming <- PubSubMessage{Payload: ps.published[0]}

	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
