package engine

import (
	"sync"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// Dispatcher delivers player notifications in the order they were
// queued, one at a time, from whichever goroutine flushes first.
//
// An engine calls Enqueue while holding its own lock, so the queue order
// matches the order state changes happened, and Flush after releasing it.
// A Flush that finds another goroutine delivering returns at once; that
// goroutine delivers the new notifications too. Handlers may call back
// into the engine: their notifications are delivered after the current
// one.
type Dispatcher struct {
	mu         sync.Mutex
	queue      []playback.Notification
	delivering bool
}

// Enqueue appends batch to the delivery queue.
func (d *Dispatcher) Enqueue(batch []playback.Notification) {
	if len(batch) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, batch...)
	d.mu.Unlock()
}

// Flush delivers queued notifications through emit until the queue is
// empty, unless a delivery is already under way.
func (d *Dispatcher) Flush(emit func(playback.Notification)) {
	d.mu.Lock()
	if d.delivering {
		d.mu.Unlock()
		return
	}
	d.delivering = true
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			d.delivering = false
			d.mu.Unlock()
			panic(r)
		}
	}()

	for {
		n, ok := d.next()
		if !ok {
			return
		}
		emit(n)
	}
}

// next pops the oldest notification. On an empty queue it ends the
// delivery in the same critical section, so nothing enqueued meanwhile is
// stranded.
func (d *Dispatcher) next() (playback.Notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		d.delivering = false
		d.queue = nil
		return playback.Notification{}, false
	}
	n := d.queue[0]
	d.queue = d.queue[1:]
	return n, true
}
