package messaging

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
	"github.com/alem-hub/achievement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// Routes events to named handlers through middleware, retries transient
// failures with backoff and parks exhausted events in a dead letter queue.
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps a handler.
type Middleware func(shared.EventHandler) shared.EventHandler

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// Retrier retries handler errors it considers transient.
	Retrier *retry.Retrier

	// DeadLetterSize bounds the dead letter queue (0 disables it).
	DeadLetterSize int

	Logger *zap.Logger
}

// DefaultDispatcherConfig retries fact source outages three times.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(500*time.Millisecond),
			retry.WithMaxDelay(5*time.Second),
			retry.WithRetryIf(shared.IsRetryable),
		),
		DeadLetterSize: 1000,
	}
}

// Dispatcher subscribes handlers on an event bus.
type Dispatcher struct {
	bus         shared.EventSubscriber
	middlewares []Middleware
	retrier     *retry.Retrier
	deadLetterQ *DeadLetterQueue
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher on top of bus.
func NewDispatcher(bus shared.EventSubscriber, config DispatcherConfig) *Dispatcher {
	if config.Retrier == nil {
		config.Retrier = retry.New(retry.WithMaxAttempts(1))
	}
	log := logger.OrNop(config.Logger).With(logger.Component("dispatcher"))
	d := &Dispatcher{
		bus:     bus,
		retrier: config.Retrier,
		logger:  log,
	}
	if config.DeadLetterSize > 0 {
		d.deadLetterQ = NewDeadLetterQueue(config.DeadLetterSize)
	}
	d.Use(RecoveryMiddleware(log), LoggingMiddleware(log))
	return d
}

// Use appends middleware. Middleware added later runs closer to the handler.
func (d *Dispatcher) Use(middlewares ...Middleware) {
	d.middlewares = append(d.middlewares, middlewares...)
}

// Register subscribes a named handler for eventType.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	wrapped := handler
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		wrapped = d.middlewares[i](wrapped)
	}
	return d.bus.Subscribe(eventType, func(event shared.Event) error {
		return d.dispatch(name, event, wrapped)
	})
}

func (d *Dispatcher) dispatch(name string, event shared.Event, handler shared.EventHandler) error {
	err := d.retrier.Do(context.Background(), func(context.Context) error {
		return handler(event)
	})
	if err == nil {
		return nil
	}

	d.logger.Error("event handler failed",
		zap.String("handler", name),
		zap.String("event_type", string(event.EventType())),
		zap.String("aggregate_id", event.AggregateID()),
		zap.Error(err),
	)
	if d.deadLetterQ != nil {
		d.deadLetterQ.Add(DeadLetterEntry{
			Handler:  name,
			Event:    event,
			Err:      err,
			FailedAt: time.Now().UTC(),
		})
	}
	return err
}

// DeadLetterQueue returns the dead letter queue, or nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryMiddleware converts handler panics into ErrHandlerPanic.
func RecoveryMiddleware(log *zap.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic",
						zap.String("event_type", string(event.EventType())),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs handler latency at debug level.
func LoggingMiddleware(log *zap.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			log.Debug("event handled",
				zap.String("event_type", string(event.EventType())),
				logger.Latency(time.Since(start)),
				zap.Bool("ok", err == nil),
			)
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is an event whose handler gave up.
type DeadLetterEntry struct {
	Handler  string
	Event    shared.Event
	Err      error
	FailedAt time.Time
}

// DeadLetterQueue keeps the most recent failures, dropping the oldest.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a bounded queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, evicting the oldest when full.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queue.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the number of entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}
