package events

import (
	"sync"
)

// Handler receives a published Event. A handler that panics is isolated
// by Publish: it never prevents other subscribers for
// the same event type from being invoked.
type Handler func(Event)

// Unsubscribe removes the handler it was returned for. Calling it more
// than once is a no-op.
type Unsubscribe func()

// Bus is an in-process publish/subscribe primitive. Subscriber lists are
// copy-on-write: Publish reads an immutable snapshot taken under lock, so
// handlers invoked during Publish never block concurrent Subscribe or
// Unsubscribe calls, and a handler that subscribes or unsubscribes from
// within itself cannot corrupt the in-flight snapshot.
type Bus struct {
	mu          sync.Mutex
	subscribers map[EventType][]*subscription
	nextID      uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]*subscription)}
}

// Subscribe registers handler to be invoked for every Event of the given
// type, in registration order relative to other subscribers of that type.
// The returned Unsubscribe removes the handler.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{id: id, handler: handler}

	existing := b.subscribers[eventType]
	next := make([]*subscription, len(existing), len(existing)+1)
	copy(next, existing)
	next = append(next, sub)
	b.subscribers[eventType] = next
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.subscribers[eventType]
	next := make([]*subscription, 0, len(existing))
	for _, sub := range existing {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	if len(next) == 0 {
		delete(b.subscribers, eventType)
		return
	}
	b.subscribers[eventType] = next
}

// Publish invokes every subscriber registered for event.Type, in
// registration order. A handler that panics is recovered silently; Publish
// guarantees the panic does not abort the remaining handlers or propagate
// to the publisher. Handlers that need to report their own failures should
// do so through their own logger, not by relying on Publish to surface it.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := b.subscribers[event.Type]
	b.mu.Unlock()

	for _, sub := range subs {
		invokeHandler(sub.handler, event)
	}
}

func invokeHandler(handler Handler, event Event) {
	defer func() {
		_ = recover()
	}()
	handler(event)
}

// SubscriberCount reports how many handlers are currently registered for
// eventType. Intended for diagnostics/metrics surfaces, not control flow.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[eventType])
}
