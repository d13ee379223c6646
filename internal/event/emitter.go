// Package event provides generic event fan-out.
package event

import "sync"

// Emitter delivers events to registered handlers. The zero value is ready to
// use.
type Emitter[E any] struct {
	// +checklocks:mu
	handlers map[uint64]func(E)
	// +checklocks:mu
	next uint64
	mu   sync.RWMutex
}

// OnEvent registers handler and returns a function that removes it.
// Handlers are called synchronously, in no particular order.
func (e *Emitter[E]) OnEvent(handler func(E)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[uint64]func(E))
	}
	id := e.next
	e.next++
	e.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.handlers, id)
			e.mu.Unlock()
		})
	}
}

// Emit sends event to every handler registered before the call.
// Handlers may register or cancel handlers while being called.
// Must not be called with lock held.
func (e *Emitter[E]) Emit(event E) {
	e.mu.RLock()
	handlers := make([]func(E), 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Len returns the number of registered handlers.
func (e *Emitter[E]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}
