package stream

import (
	"sync"

	"github.com/chatship-io/chatship/internal/domain"
)

// Handler consumes dispatched stream events.
type Handler func(domain.StreamEvent)

// Dispatcher fans accepted, ordered, deduplicated events out to registered
// handlers without blocking the producer. Delivery happens on a dedicated
// goroutine; for one event, handlers run in registration order.
//
// Handlers may be registered or unregistered at any time, including from
// inside a handler invoked during dispatch: delivery works on a snapshot of
// the registration list.
type Dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	handlers []registration
	nextID   int
	queue    []domain.StreamEvent
	closed   bool
	idle     bool

	done chan struct{}
}

type registration struct {
	id int
	fn Handler
}

// NewDispatcher creates a dispatcher and starts its delivery goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{}), idle: true}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Register adds a handler and returns a token for Unregister.
func (d *Dispatcher) Register(fn Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers = append(d.handlers, registration{id: d.nextID, fn: fn})
	return d.nextID
}

// Unregister removes the handler with the given token. Unknown tokens are
// ignored.
func (d *Dispatcher) Unregister(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.handlers {
		if r.id == id {
			d.handlers = append(d.handlers[:i], d.handlers[i+1:]...)
			return
		}
	}
}

// Dispatch queues an event for delivery and returns without waiting for
// handlers. Events dispatched after Close are dropped.
func (d *Dispatcher) Dispatch(ev domain.StreamEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, ev)
	// Broadcast, not Signal: DiscardPending and Close wait on the same
	// condition and must not swallow the delivery goroutine's wakeup.
	d.cond.Broadcast()
}

// DiscardPending drops queued events and waits for an in-flight delivery to
// finish. The connector calls this on disconnect so no handler fires after
// Disconnect returns.
func (d *Dispatcher) DiscardPending() {
	d.mu.Lock()
	d.queue = nil
	for !d.idle && !d.closed {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

// Close stops delivery permanently. Queued events are discarded and no
// handler runs after Close returns. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.queue = nil
	d.cond.Broadcast()
	for !d.idle {
		d.cond.Wait()
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		snapshot := make([]registration, len(d.handlers))
		copy(snapshot, d.handlers)
		d.idle = false
		d.mu.Unlock()

		for _, r := range snapshot {
			r.fn(ev)
		}

		d.mu.Lock()
		d.idle = true
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}
