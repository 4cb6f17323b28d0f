package event

import (
	"reflect"
	"sync"
)

type queued struct {
	typ reflect.Type
	ev  any
}

// Bus is a double-buffered event bus. Events emitted in tick N are delivered
// in tick N+1, in emission order. SwapBuffers and DispatchAll run once per
// tick from the event system.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []queued
	back     []queued
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]any)}
}

// Emit queues an event into the back buffer (delivered next tick).
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.back = append(b.back, queued{typ: t, ev: event})
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// Pending returns the number of events waiting for the next swap.
func (b *Bus) Pending() int { return len(b.back) }

// DispatchAll delivers all front-buffer events to their subscribed handlers.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.front {
		for _, h := range b.handlers[q.typ] {
			reflect.ValueOf(h).Call([]reflect.Value{reflect.ValueOf(q.ev)})
		}
	}
}
