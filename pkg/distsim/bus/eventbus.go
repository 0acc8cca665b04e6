// Package bus implements the typed publish/subscribe event fan-out used to
// feed metrics, logging and visualization from the messaging port and the
// simulation engine.
package bus

import (
	"sync"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// Listener receives published events. A listener must not assume it runs on
// any particular goroutine, and a panic inside one must never reach the
// publisher nor stop delivery to other listeners.
type Listener func(event types.SimulationEvent)

// Subscription identifies one registration, returned by Subscribe so the
// exact same registration (not just "a listener for this type") can be
// removed later.
type Subscription struct {
	id       uint64
	evtType  types.EventType
}

type subscriber struct {
	id       uint64
	listener Listener
}

// EventBus is a per-simulation, typed pub/sub hub. There is no
// process-global instance: each simulation owns its own EventBus, so no
// event from one simulation can ever reach a listener registered against
// another.
//
// Publish is synchronous to the calling goroutine: it invokes every
// subscribed listener in registration order before returning, isolating
// listener panics so they can't propagate to the publisher or prevent
// delivery to the remaining listeners. Because Publish blocks the calling
// goroutine until delivery completes, publish order from any single
// publisher goroutine is automatically preserved for every listener
// subscribed to those event types.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[types.EventType][]subscriber
	nextID      uint64
}

// New creates an empty EventBus.
func New() *EventBus {
	return &EventBus{
		subscribers: make(map[types.EventType][]subscriber),
	}
}

// Subscribe registers listener for events of the given type. The same
// listener value may be subscribed more than once; each registration is
// independent and has its own Subscription handle. Safe for concurrent use.
func (b *EventBus) Subscribe(evtType types.EventType, listener Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[evtType] = append(b.subscribers[evtType], subscriber{id: id, listener: listener})
	return Subscription{id: id, evtType: evtType}
}

// Unsubscribe removes a single registration. Double-unsubscribe, or
// unsubscribing an id that never existed, is a no-op. Unsubscribing in the
// middle of an in-flight Publish may or may not affect that publication;
// every subsequent Publish will never reach the removed listener.
func (b *EventBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subscribers[sub.evtType]
	for i, s := range list {
		if s.id == sub.id {
			b.subscribers[sub.evtType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every listener currently subscribed to
// event.Type, in registration order. A listener that panics is isolated:
// the panic is recovered and delivery continues to the remaining
// listeners.
func (b *EventBus) Publish(event types.SimulationEvent) {
	b.mu.RLock()
	// Copy the slice header under the lock so a concurrent
	// Subscribe/Unsubscribe can't race with the iteration below; the
	// subscriber structs themselves are never mutated in place.
	list := append([]subscriber(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	for _, s := range list {
		b.deliver(s.listener, event)
	}
}

func (b *EventBus) deliver(listener Listener, event types.SimulationEvent) {
	defer func() {
		recover()
	}()
	listener(event)
}
