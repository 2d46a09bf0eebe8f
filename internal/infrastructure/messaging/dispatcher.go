package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT DISPATCHER
// Sits between the event bus and the projection handlers: named handlers,
// retry with exponential backoff, and a dead-letter queue for deliveries
// that exhaust their retries. Everything behind the dispatcher is
// best-effort; a dead-lettered event never affects committed state.
// ══════════════════════════════════════════════════════════════════════════════

// RetryConfig bounds the redelivery loop for a failing handler.
type RetryConfig struct {
	// MaxRetries - redeliveries after the initial attempt.
	MaxRetries int

	// InitialBackoff and MaxBackoff bound the delay between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BackoffMultiplier grows the delay each attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the production retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Middleware wraps handler execution; applied in registration order.
type Middleware func(next shared.EventHandler) shared.EventHandler

// RecoveryMiddleware converts a handler panic into an error so the retry
// and dead-letter machinery see it like any other failure.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panicked: %v", r)
					log.Error("recovered handler panic",
						logger.String("event_type", string(event.EventType())),
						logger.Err(err),
					)
				}
			}()
			return next(event)
		}
	}
}

// registration is one named handler bound to an event type.
type registration struct {
	name    string
	handler shared.EventHandler
	async   bool
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Bus is the subscriber the dispatcher attaches to on Start.
	Bus shared.EventSubscriber

	Retry RetryConfig

	// DeadLetterCapacity bounds the parked-entry queue (default 100).
	DeadLetterCapacity int

	Logger *logger.Logger
}

// Dispatcher routes bus events to registered handlers with retries.
type Dispatcher struct {
	bus   shared.EventSubscriber
	retry RetryConfig
	dlq   *DeadLetterQueue
	log   *logger.Logger

	mu          sync.RWMutex
	handlers    map[shared.EventType][]registration
	middlewares []Middleware
	started     bool

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher from the given configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.DeadLetterCapacity <= 0 {
		cfg.DeadLetterCapacity = 100
	}

	return &Dispatcher{
		bus:      cfg.Bus,
		retry:    cfg.Retry,
		dlq:      NewDeadLetterQueue(cfg.DeadLetterCapacity),
		log:      cfg.Logger.With(logger.Component("dispatcher")),
		handlers: make(map[shared.EventType][]registration),
	}
}

// RegisterSync binds a handler that runs inline during Dispatch.
func (d *Dispatcher) RegisterSync(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.register(eventType, name, handler, false)
}

// Register binds a handler that runs on its own goroutine per event.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.register(eventType, name, handler, true)
}

func (d *Dispatcher) register(eventType shared.EventType, name string, handler shared.EventHandler, async bool) error {
	if name == "" {
		return errors.New("handler name is required")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, reg := range d.handlers[eventType] {
		if reg.name == name {
			return fmt.Errorf("handler %q already registered for %s", name, eventType)
		}
	}
	d.handlers[eventType] = append(d.handlers[eventType], registration{
		name:    name,
		handler: handler,
		async:   async,
	})
	return nil
}

// Use appends a middleware. Must be called before Start.
func (d *Dispatcher) Use(mw Middleware) {
	d.mu.Lock()
	d.middlewares = append(d.middlewares, mw)
	d.mu.Unlock()
}

// Start attaches the dispatcher to the bus; every published event flows
// through Dispatch from then on.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("dispatcher already started")
	}
	d.started = true
	d.mu.Unlock()

	return d.bus.SubscribeAll(func(event shared.Event) error {
		return d.Dispatch(event)
	})
}

// Stop waits for in-flight async handlers to finish.
func (d *Dispatcher) Stop() {
	d.wg.Wait()
}

// Dispatch delivers one event to every handler registered for its type.
// Sync handler failures are reported after all handlers ran; async
// failures only reach the log and the dead-letter queue.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	d.mu.RLock()
	regs := d.handlers[event.EventType()]
	d.mu.RUnlock()

	var firstErr error
	for _, reg := range regs {
		if reg.async {
			d.wg.Add(1)
			go func(reg registration) {
				defer d.wg.Done()
				_ = d.execute(reg, event)
			}(reg)
			continue
		}
		if err := d.execute(reg, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// execute runs one handler through the middleware chain with retries,
// parking the event in the dead-letter queue when retries run out.
func (d *Dispatcher) execute(reg registration, event shared.Event) error {
	d.mu.RLock()
	handler := reg.handler
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		handler = d.middlewares[i](handler)
	}
	d.mu.RUnlock()

	var lastErr error
	for attempt := 0; attempt <= d.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.backoff(attempt))
		}

		lastErr = handler(event)
		if lastErr == nil {
			return nil
		}
		d.log.Warn("event handler attempt failed",
			logger.String("handler", reg.name),
			logger.String("event_type", string(event.EventType())),
			logger.Int("attempt", attempt+1),
			logger.Err(lastErr),
		)
	}

	d.dlq.Add(DeadLetterEntry{
		HandlerName: reg.name,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		Attempts:    d.retry.MaxRetries + 1,
		LastError:   lastErr.Error(),
		FailedAt:    time.Now().UTC(),
	})
	d.log.Error("event handler exhausted retries, dead-lettered",
		logger.String("handler", reg.name),
		logger.String("event_type", string(event.EventType())),
	)
	return fmt.Errorf("handler %s exhausted retries: %w", reg.name, lastErr)
}

// backoff returns the delay before the given attempt (1-based).
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * d.retry.BackoffMultiplier)
		if delay >= d.retry.MaxBackoff {
			return d.retry.MaxBackoff
		}
	}
	if delay > d.retry.MaxBackoff {
		return d.retry.MaxBackoff
	}
	return delay
}

// DeadLetterQueue exposes the parked entries for inspection.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.dlq
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD-LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry records one delivery that exhausted its retries.
type DeadLetterEntry struct {
	HandlerName string
	EventType   shared.EventType
	AggregateID string
	Attempts    int
	LastError   string
	FailedAt    time.Time
}

// DeadLetterQueue is a bounded FIFO of failed deliveries. At capacity the
// oldest entry is evicted.
type DeadLetterQueue struct {
	mu       sync.Mutex
	entries  []DeadLetterEntry
	capacity int
}

// NewDeadLetterQueue creates a queue holding at most capacity entries.
func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	if capacity <= 0 {
		capacity = 100
	}
	return &DeadLetterQueue{capacity: capacity}
}

// Add appends an entry, evicting the oldest when full.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.capacity {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// Entries returns a copy of the queue, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the number of parked entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear discards every entry.
func (q *DeadLetterQueue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}
