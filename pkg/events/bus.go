package events

import "sync"

// Listener receives every event published on a [Bus]. Listeners must not
// block; long work should be handed off to another goroutine.
type Listener func(Event)

// Bus fans events out to registered listeners in registration order.
// It is safe for concurrent use; reads dominate writes.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	closed    bool
}

// NewBus creates an empty bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn for all subsequent events.
func (b *Bus) Subscribe(fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Emit delivers e to every listener synchronously. A closed bus drops
// events; a destroyed client emits nothing further.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	closed := b.closed
	ls := b.listeners
	b.mu.RUnlock()
	if closed {
		return
	}
	for _, fn := range ls {
		fn(e)
	}
}

// Close stops all future deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
