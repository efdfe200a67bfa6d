package playback

import "sync"

// Emitter is a listener registry for player notifications.
// Engines embed it to provide AddEventListener.
type Emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[Event]map[uint64]Handler
	order     map[Event][]uint64
}

// AddEventListener registers h for event and returns its disposer.
// The disposer is safe to call any number of times.
func (e *Emitter) AddEventListener(event Event, h Handler) (remove func()) {
	e.mu.Lock()
	if e.listeners == nil {
		e.listeners = make(map[Event]map[uint64]Handler)
		e.order = make(map[Event][]uint64)
	}
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[uint64]Handler)
	}
	e.nextID++
	id := e.nextID
	e.listeners[event][id] = h
	e.order[event] = append(e.order[event], id)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(event, id) })
	}
}

func (e *Emitter) remove(event Event, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.listeners[event], id)
	ids := e.order[event]
	for i, v := range ids {
		if v == id {
			e.order[event] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// Emit delivers n to every listener of n.Event, in registration order.
// Listeners run on the caller's goroutine against a snapshot, so a
// listener may remove itself (or others) during dispatch.
func (e *Emitter) Emit(n Notification) {
	e.mu.Lock()
	ids := e.order[n.Event]
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		if h, ok := e.listeners[n.Event][id]; ok {
			handlers = append(handlers, h)
		}
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(n)
	}
}

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter) ListenerCount(event Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}
