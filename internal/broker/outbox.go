package broker

import (
	"sync"

	"github.com/life-stream-dev/lifestream-broker/internal/session"
)

type (
	Delivery = session.Delivery
	Sink     = session.Sink
)

const DefaultOutboxSize = 256

// Outbox is a Sink backed by a bounded channel. The broker enqueues without
// blocking; a writer goroutine owned by the transport drains C() and performs
// the network writes.
type Outbox struct {
	mu     sync.RWMutex
	ch     chan Delivery
	closed bool
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{ch: make(chan Delivery, size)}
}

// Deliver enqueues d or fails with ErrOutboxFull when the writer is behind.
func (o *Outbox) Deliver(d Delivery) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.ch <- d:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close stops accepting deliveries. The writer sees C() closed after draining
// what was already queued.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

func (o *Outbox) C() <-chan Delivery {
	return o.ch
}

func (o *Outbox) Len() int {
	return len(o.ch)
}
