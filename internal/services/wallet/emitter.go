package wallet

import (
	"sync"
)

// emitter keeps listener registrations per event.
type emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]Listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[string]map[int]Listener)}
}

func (e *emitter) on(event string, l Listener) Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]Listener)
	}
	e.listeners[event][id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.listeners[event], id)
		})
	}
}

// emit calls listeners synchronously outside the lock.
func (e *emitter) emit(event string, payload any) {
	e.mu.Lock()
	ls := make([]Listener, 0, len(e.listeners[event]))
	for _, l := range e.listeners[event] {
		ls = append(ls, l)
	}
	e.mu.Unlock()

	for _, l := range ls {
		l(payload)
	}
}

func (e *emitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}
