// Package event provides the in-memory bus that fans scan and registry
// lifecycle events out to subscribers, the WebSocket hub among them.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics published by the core components.
const (
	TopicScanStarted      = "scan.started"
	TopicScanProgress     = "scan.progress"
	TopicScanCompleted    = "scan.completed"
	TopicRegistryReloaded = "registry.reloaded"
)

// Event is one bus message. Payload is topic-specific and must be
// JSON-serializable so it can cross the WebSocket boundary.
type Event struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Handler receives events. Handlers must not block for long; slow
// consumers should hand off to their own goroutine.
type Handler func(ctx context.Context, event Event)

// Bus is an in-memory publish/subscribe fanout. Publish is synchronous,
// PublishAsync dispatches each handler in its own goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	allSubs  []handlerEntry
	nextID   uint64
	logger   *zap.Logger
}

type handlerEntry struct {
	id      uint64
	handler Handler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]handlerEntry),
		logger:   logger.Named("event"),
	}
}

// Publish dispatches an event synchronously to all matching handlers.
// A zero timestamp is filled in.
func (b *Bus) Publish(ctx context.Context, event Event) {
	for _, h := range b.matching(event.Topic) {
		b.safeCall(ctx, h.handler, b.stamped(event))
	}
}

// PublishAsync dispatches an event without waiting for handlers.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	for _, h := range b.matching(event.Topic) {
		go b.safeCall(ctx, h.handler, b.stamped(event))
	}
}

func (b *Bus) stamped(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

func (b *Bus) matching(topic string) []handlerEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]handlerEntry, 0, len(b.handlers[topic])+len(b.allSubs))
	out = append(out, b.handlers[topic]...)
	out = append(out, b.allSubs...)
	return out
}

// Subscribe registers a handler for one topic and returns an unsubscribe
// function.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[topic]
		for i, e := range entries {
			if e.id == id {
				b.handlers[topic] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.allSubs = append(b.allSubs, handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.allSubs {
			if e.id == id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				return
			}
		}
	}
}

// safeCall shields the bus from panicking handlers.
func (b *Bus) safeCall(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r))
		}
	}()
	handler(ctx, event)
}
