package events

import (
	"slices"
	"sync"
)

// Handler receives one emitted value.
type Handler[T any] func(T)

// Bus is a small named-event emitter. Handlers run synchronously on the
// emitting goroutine, so they must not block.
type Bus[T any] struct {
	mu       sync.RWMutex
	next     int
	handlers map[string]map[int]Handler[T]
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{handlers: map[string]map[int]Handler[T]{}}
}

// On registers h for name and returns a function that removes it.
func (b *Bus[T]) On(name string, h Handler[T]) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	if b.handlers[name] == nil {
		b.handlers[name] = map[int]Handler[T]{}
	}
	b.handlers[name][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[name], id)
			if len(b.handlers[name]) == 0 {
				delete(b.handlers, name)
			}
		})
	}
}

// Emit calls every handler registered for name, in registration order.
func (b *Bus[T]) Emit(name string, v T) {
	b.mu.RLock()
	set := b.handlers[name]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	hs := make(map[int]Handler[T], len(set))
	for id, h := range set {
		hs[id] = h
	}
	b.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		hs[id](v)
	}
}

// Len reports how many handlers are registered for name.
func (b *Bus[T]) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}
