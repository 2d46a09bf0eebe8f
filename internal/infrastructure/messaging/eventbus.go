// Package messaging delivers committed domain events to in-process
// subscribers. The in-memory bus serves a single instance; the Redis bus
// fans events out to every instance over Pub/Sub. Delivery is at-most-once
// and best-effort: the authoritative state is already committed before
// anything is published.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// ErrEventBusClosed is returned for publish or subscribe on a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig configures the in-memory bus.
type InMemoryEventBusConfig struct {
	// AsyncMode delivers through a worker pool instead of inline.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async deliveries (default 10).
	WorkerPoolSize int

	Logger *logger.Logger

	// EnableMetrics tracks publish and handler counters.
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns the production defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// InMemoryEventBus routes events to subscribers within one process.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	catchAll []shared.EventHandler
	closed   bool

	async   bool
	slots   chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup

	log     *logger.Logger
	metrics *EventBusMetrics
}

// NewInMemoryEventBus creates a bus from the given configuration.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}

	bus := &InMemoryEventBus{
		byType:  make(map[shared.EventType][]shared.EventHandler),
		async:   cfg.AsyncMode,
		slots:   make(chan struct{}, cfg.WorkerPoolSize),
		closeCh: make(chan struct{}),
		log:     cfg.Logger.With(logger.Component("event_bus")),
	}
	if cfg.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}
	return bus
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.byType[eventType] = append(b.byType[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.catchAll = append(b.catchAll, handler)
	return nil
}

// Publish delivers an event to its subscribers. Handler errors are logged
// and do not stop delivery to the remaining handlers.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.byType[event.EventType()])+len(b.catchAll))
	handlers = append(handlers, b.byType[event.EventType()]...)
	handlers = append(handlers, b.catchAll...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}
	if b.metrics != nil {
		b.metrics.recordPublish()
	}

	for _, handler := range handlers {
		if b.async {
			b.deliverAsync(event, handler)
			continue
		}
		if err := b.deliver(event, handler); err != nil {
			b.log.Error("event handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
	return nil
}

// deliverAsync runs one delivery on the worker pool. Close waits for every
// in-flight delivery before returning.
func (b *InMemoryEventBus) deliverAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		select {
		case b.slots <- struct{}{}:
			defer func() { <-b.slots }()
		case <-b.closeCh:
			return
		}

		if err := b.deliver(event, handler); err != nil {
			b.log.Error("async event handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}()
}

func (b *InMemoryEventBus) deliver(event shared.Event, handler shared.EventHandler) error {
	start := time.Now()
	err := handler(event)
	if b.metrics != nil {
		b.metrics.recordExecution(time.Since(start), err == nil)
	}
	return err
}

// Close stops accepting events and drains in-flight async deliveries.
// Closing twice is a no-op.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns the bus counters, or nil when disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// Wraps the in-memory bus and mirrors every published event onto a Redis
// Pub/Sub channel, so projection subscribers on other instances see awards
// committed here. Remote events carry an instance tag to skip self-echo.
// ══════════════════════════════════════════════════════════════════════════════

// PubSubClient is the slice of Redis the bus needs.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan PubSubMessage, error)
}

// PubSubMessage is one message received from the channel.
type PubSubMessage struct {
	Payload string
	Err     error
}

// RedisEventBusConfig configures the Redis-backed bus.
type RedisEventBusConfig struct {
	Client PubSubClient

	// Channel is the Pub/Sub channel name (default "skillforge:events").
	Channel string

	// InstanceID tags published envelopes so this instance skips its own
	// messages; generated when empty.
	InstanceID string

	// Local configures the wrapped in-memory bus.
	Local InMemoryEventBusConfig

	Logger *logger.Logger
}

// RedisEventBus fans events out across instances over Redis Pub/Sub.
type RedisEventBus struct {
	client     PubSubClient
	local      *InMemoryEventBus
	channel    string
	instanceID string
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRedisEventBus creates the bus and starts its subscription loop.
func NewRedisEventBus(cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "skillforge:events"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:     cfg.Client,
		local:      NewInMemoryEventBus(cfg.Local),
		channel:    cfg.Channel,
		instanceID: cfg.InstanceID,
		log:        cfg.Logger.With(logger.Component("redis_event_bus")),
		ctx:        ctx,
		cancel:     cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", bus.channel, err)
	}

	bus.wg.Add(1)
	go bus.receive(messages)
	return bus, nil
}

// Subscribe registers a handler for one event type on the local bus.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event on the local bus.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish delivers locally and mirrors the event onto the channel. A Redis
// publish failure is logged; local delivery still happens, so a degraded
// Redis costs cross-instance fan-out, never in-process projection.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrEventBusClosed
	}
	b.mu.Unlock()

	data, err := json.Marshal(eventEnvelope{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channel, string(data)); err != nil {
		b.log.Warn("cross-instance publish dropped", logger.Err(err))
	}
	return b.local.Publish(event)
}

// receive replays remote envelopes into the local bus.
func (b *RedisEventBus) receive(messages <-chan PubSubMessage) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.log.Warn("pubsub receive error", logger.Err(msg.Err))
				continue
			}

			var env eventEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("dropping malformed envelope", logger.Err(err))
				continue
			}
			if env.InstanceID == b.instanceID {
				continue
			}
			if err := b.local.Publish(env.event()); err != nil {
				b.log.Warn("remote event delivery failed", logger.Err(err))
			}
		}
	}
}

// Close stops the subscription loop and closes the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.local.Close()
}

// Metrics returns the local bus counters.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.local.Metrics()
}

// eventEnvelope is the wire form of an event on the Pub/Sub channel.
type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

func (e eventEnvelope) event() shared.Event {
	return remoteEvent{env: e}
}

// remoteEvent rehydrates an envelope for local handlers.
type remoteEvent struct {
	env eventEnvelope
}

func (e remoteEvent) EventType() shared.EventType     { return e.env.EventType }
func (e remoteEvent) AggregateID() string             { return e.env.AggregateID }
func (e remoteEvent) OccurredAt() time.Time           { return e.env.OccurredAt }
func (e remoteEvent) Payload() map[string]interface{} { return e.env.Payload }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts publishes and handler executions.
type EventBusMetrics struct {
	mu            sync.Mutex
	published     int64
	executions    int64
	successes     int64
	totalDuration time.Duration
}

// NewEventBusMetrics creates a zeroed counter set.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{}
}

func (m *EventBusMetrics) recordPublish() {
	m.mu.Lock()
	m.published++
	m.mu.Unlock()
}

func (m *EventBusMetrics) recordExecution(d time.Duration, success bool) {
	m.mu.Lock()
	m.executions++
	m.totalDuration += d
	if success {
		m.successes++
	}
	m.mu.Unlock()
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
}

// Snapshot returns a consistent copy of the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := EventBusMetricsSnapshot{
		TotalPublished:     m.published,
		TotalHandlerExecs:  m.executions,
		HandlerSuccessRate: 1.0,
	}
	if m.executions > 0 {
		snap.HandlerSuccessRate = float64(m.successes) / float64(m.executions)
		snap.AverageHandlerDuration = m.totalDuration / time.Duration(m.executions)
	}
	return snap
}
