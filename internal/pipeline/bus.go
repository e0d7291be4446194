package pipeline

import (
	"sync"

	"ppewatch/internal/violation"
)

// EventHandler receives violation events published on the bus.
type EventHandler interface {
	OnViolation(e violation.Event)
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(e violation.Event)

// OnViolation calls f.
func (f EventHandlerFunc) OnViolation(e violation.Event) { f(e) }

// EventBus provides pub/sub for violation events. Handlers run
// synchronously in publish order; channel subscribers get best-effort
// delivery and drop when full.
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	channel chan violation.Event
	handler EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for all violation events.
// Returns an unsubscribe function.
func (b *EventBus) Subscribe(handler EventHandler) func() {
	sub := &eventSubscription{handler: handler}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a buffered channel of violation events and an
// unsubscribe function that also closes the channel.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan violation.Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan violation.Event, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish sends a violation event to all subscribers.
func (b *EventBus) Publish(e violation.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.handler != nil {
			sub.handler.OnViolation(e)
		} else if sub.channel != nil {
			select {
			case sub.channel <- e:
			default:
				// Channel full, skip this event
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
