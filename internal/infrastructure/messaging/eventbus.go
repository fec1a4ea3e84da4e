// Package messaging delivers domain events: an in-memory bus for handlers in
// this process and a Redis Pub/Sub bus that carries fact events between the
// host application and engine instances.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers of this process.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *zap.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on the worker pool instead of the caller.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async handlers.
	WorkerPoolSize int

	Logger *zap.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}
	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     logger.OrNop(config.Logger).With(logger.Component("event_bus")),
		metrics:    &EventBusMetrics{},
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. In sync mode handler
// errors are logged and the first one is returned.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.metrics.published.Add(1)
	if len(handlers) == 0 {
		return nil
	}

	if b.asyncMode {
		for _, handler := range handlers {
			b.executeAsync(event, handler)
		}
		return nil
	}

	var first error
	for _, handler := range handlers {
		if err := b.execute(event, handler); err != nil {
			b.logger.Error("handler error", zap.String("event_type", string(event.EventType())), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		if err := b.execute(event, handler); err != nil {
			b.logger.Error("async handler error", zap.String("event_type", string(event.EventType())), zap.Error(err))
		}
	}()
}

// execute runs one handler and turns a panic into ErrHandlerPanic.
func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		b.metrics.record(time.Since(start), err == nil)
	}()
	return handler(event)
}

// Close stops accepting events and waits for running handlers.
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
	b.logger.Info("event bus closed", zap.Any("metrics", b.metrics.Snapshot()))
	return nil
}

// Metrics returns the bus counters.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the subset of Redis the bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, error)
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName is the Pub/Sub channel (default: "facts").
	ChannelName string

	// InstanceID filters out this instance's own messages.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig

	Logger *zap.Logger
}

// RedisEventBus publishes through Redis Pub/Sub and delivers every message,
// local or remote, through a local bus.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// NewRedisEventBus subscribes to the channel and starts the listener.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "facts"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		logger:      logger.OrNop(config.Logger).With(logger.Component("redis_event_bus")),
		ctx:         ctx,
		cancel:      cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", bus.channelName, err)
	}
	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()
	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends the event to Redis and to local handlers. A Redis failure is
// logged; local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := json.Marshal(eventEnvelope{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(b.ctx, b.channelName, data); err != nil {
		b.logger.Error("failed to publish to redis", zap.String("event_type", string(event.EventType())), zap.Error(err))
	}
	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", zap.Error(msg.Err))
				continue
			}
			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	event, instanceID, err := DecodeEvent([]byte(msg.Payload))
	if err != nil {
		b.logger.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if instanceID == b.instanceID {
		return
	}
	if err := b.localBus.Publish(event); err != nil {
		b.logger.Error("failed to process remote event", zap.Error(err))
	}
}

// Close stops the listener and drains the local bus.
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
	return b.localBus.Close()
}

// Metrics returns the local bus counters.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// ══════════════════════════════════════════════════════════════════════════════
// GO-REDIS ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// GoRedisClient adapts a go-redis client to RedisClient.
type GoRedisClient struct {
	client goredis.UniversalClient
}

// NewGoRedisClient wraps a go-redis client.
func NewGoRedisClient(client goredis.UniversalClient) *GoRedisClient {
	return &GoRedisClient{client: client}
}

// Publish implements RedisClient.
func (c *GoRedisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.client.Publish(ctx, channel, payload).Err()
}

// Subscribe implements RedisClient. The returned channel closes when ctx ends.
func (c *GoRedisClient) Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, error) {
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		defer pubsub.Close()
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id,omitempty"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// DecodeEvent parses a Pub/Sub message published by this bus or by the host
// application, which omits instance_id.
func DecodeEvent(data []byte) (shared.Event, string, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, "", fmt.Errorf("unmarshal event: %w", err)
	}
	if envelope.EventType == "" {
		return nil, "", errors.New("event_type is required")
	}
	if envelope.OccurredAt.IsZero() {
		return nil, "", errors.New("occurred_at is required")
	}
	return &reconstructedEvent{
		eventType:   envelope.EventType,
		aggregateID: envelope.AggregateID,
		occurredAt:  envelope.OccurredAt,
		payload:     envelope.Payload,
	}, envelope.InstanceID, nil
}

// reconstructedEvent is an event rebuilt from a Pub/Sub message.
type reconstructedEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *reconstructedEvent) EventType() shared.EventType     { return e.eventType }
func (e *reconstructedEvent) AggregateID() string             { return e.aggregateID }
func (e *reconstructedEvent) OccurredAt() time.Time           { return e.occurredAt }
func (e *reconstructedEvent) Payload() map[string]interface{} { return e.payload }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts bus activity.
type EventBusMetrics struct {
	published atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	totalNs   atomic.Int64
}

func (m *EventBusMetrics) record(d time.Duration, ok bool) {
	if ok {
		m.succeeded.Add(1)
	} else {
		m.failed.Add(1)
	}
	m.totalNs.Add(int64(d))
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	Published   int64         `json:"published"`
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	s := EventBusMetricsSnapshot{
		Published: m.published.Load(),
		Succeeded: m.succeeded.Load(),
		Failed:    m.failed.Load(),
	}
	if n := s.Succeeded + s.Failed; n > 0 {
		s.AvgDuration = time.Duration(m.totalNs.Load() / n)
	}
	return s
}
