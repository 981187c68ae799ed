// Package event is the in-process bus the monitor publishes client events
// and job outcomes on.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one message on the bus.
type Event struct {
	Topic     string
	Device    string // device id the event concerns
	Timestamp time.Time
	Payload   any // type depends on topic
}

// Handler processes events. Handlers run in the publisher's goroutine and
// should return quickly.
type Handler func(ctx context.Context, e Event)

// Bus dispatches events synchronously to topic and catch-all subscribers.
// A panicking handler is logged and does not affect the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	all      []entry
	nextID   uint64
	logger   *zap.Logger
}

type entry struct {
	id      uint64
	handler Handler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]entry),
		logger:   logger,
	}
}

// Publish delivers e to every handler of e.Topic, then to every catch-all
// handler. A zero Timestamp is set to now.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]entry, 0, len(b.handlers[e.Topic])+len(b.all))
	targets = append(targets, b.handlers[e.Topic]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, t := range targets {
		b.safeCall(ctx, t.handler, e)
	}
}

// Subscribe registers handler for topic and returns a function that
// removes it.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], entry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[topic] = remove(b.handlers[topic], id)
	}
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.all = append(b.all, entry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

func remove(entries []entry, id uint64) []entry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}

func (b *Bus) safeCall(ctx context.Context, handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", e.Topic),
				zap.String("device", e.Device),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, e)
}

// DebugLog returns a handler that writes every event to logger at debug
// level. Payloads are left out; subscribers log what they need.
func DebugLog(logger *zap.Logger) Handler {
	return func(_ context.Context, e Event) {
		if ce := logger.Check(zap.DebugLevel, "event"); ce != nil {
			ce.Write(
				zap.String("topic", e.Topic),
				zap.String("device", e.Device),
				zap.Time("at", e.Timestamp),
			)
		}
	}
}
