// Package buffer provides the per-connection outbound queue.
package buffer

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/watch-party/relay/internal/model"
)

// Outbox is an unbounded, thread-safe FIFO of envelopes waiting to be written
// to one connection. Producers never block: Push either enqueues or, once the
// outbox is closed, drops.
//
// A slow consumer lets the queue grow without limit.
type Outbox struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool

	// notify holds at most one pending wakeup for the consumer.
	notify chan struct{}
	done   chan struct{}
}

// NewOutbox creates an empty, open Outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		items:  queue.New(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends env to the queue. It reports false if the outbox is closed.
func (o *Outbox) Push(env model.Envelope) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.items.Add(env)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the oldest envelope, waiting while the queue is
// empty. Items pushed before Close are still returned; once the outbox is
// closed and drained, or ctx is done, Pop returns false.
func (o *Outbox) Pop(ctx context.Context) (model.Envelope, bool) {
	for {
		o.mu.Lock()
		if o.items.Length() > 0 {
			env := o.items.Remove().(model.Envelope)
			o.mu.Unlock()
			return env, true
		}
		closed := o.closed
		o.mu.Unlock()

		if closed {
			return model.Envelope{}, false
		}

		select {
		case <-o.notify:
		case <-o.done:
		case <-ctx.Done():
			return model.Envelope{}, false
		}
	}
}

// Close stops the outbox accepting new items. It is safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}

// IsClosed returns true if the outbox is closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Len returns the number of envelopes waiting to be popped.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items.Length()
}
