package session

import (
	"errors"
	"fmt"
	"sync"
)

var ErrUnexpectedAck = errors.New("unexpected acknowledgement")

// Phase of an outbound QoS>0 message.
//
//	QoS 1: Sent -> Acked
//	QoS 2: Sent -> Received -> Released -> Completed
type Phase byte

const (
	Sent Phase = iota + 1
	Received
	Released
	Acked
	Completed
)

func (p Phase) String() string {
	switch p {
	case Sent:
		return "SENT"
	case Received:
		return "RECEIVED"
	case Released:
		return "RELEASED"
	case Acked:
		return "ACKED"
	case Completed:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

type inflightEntry struct {
	delivery Delivery
	phase    Phase
}

// Inflight tracks outbound QoS 1 and QoS 2 messages of one connection by
// packet id until the handshake finishes. It is driven by the connection
// writer and reader, which run outside the broker lock, so it carries its own
// mutex.
type Inflight struct {
	mu      sync.Mutex
	ids     *PacketIDs
	entries map[uint16]*inflightEntry
}

func NewInflight(ids *PacketIDs) *Inflight {
	return &Inflight{ids: ids, entries: make(map[uint16]*inflightEntry)}
}

// Track allocates a packet id for d and records it as Sent.
func (f *Inflight) Track(d Delivery) (uint16, error) {
	id, err := f.ids.Next()
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = &inflightEntry{delivery: d, phase: Sent}
	return id, nil
}

// Ack handles PUBACK for a QoS 1 message.
func (f *Inflight) Ack(id uint16) error {
	return f.advance(id, 1, Sent, Acked)
}

// Receive handles PUBREC for a QoS 2 message.
func (f *Inflight) Receive(id uint16) error {
	return f.advance(id, 2, Sent, Received)
}

// Release records that PUBREL was sent for a QoS 2 message.
func (f *Inflight) Release(id uint16) error {
	return f.advance(id, 2, Received, Released)
}

// Complete handles PUBCOMP for a QoS 2 message.
func (f *Inflight) Complete(id uint16) error {
	return f.advance(id, 2, Released, Completed)
}

func (f *Inflight) advance(id uint16, qos byte, from, to Phase) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[id]
	if !ok {
		return fmt.Errorf("%w: packet %d is not in flight", ErrUnexpectedAck, id)
	}
	if entry.delivery.QoS != qos || entry.phase != from {
		return fmt.Errorf("%w: packet %d is %s at QoS %d, want %s at QoS %d",
			ErrUnexpectedAck, id, entry.phase, entry.delivery.QoS, from, qos)
	}

	entry.phase = to
	if to == Acked || to == Completed {
		delete(f.entries, id)
		f.ids.Release(id)
	}
	return nil
}

// Phase returns the phase of packet id, if it is still in flight.
func (f *Inflight) Phase(id uint16) (Phase, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[id]
	if !ok {
		return 0, false
	}
	return entry.phase, true
}

// Reset forgets every in-flight message and releases its packet id. The
// transport calls it when the connection carrying the handshakes is gone.
func (f *Inflight) Reset() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries)
	for id := range f.entries {
		delete(f.entries, id)
		f.ids.Release(id)
	}
	return n
}

func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
