package broker

import (
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/session"
)

// Stats is a point-in-time view of broker activity.
type Stats struct {
	Uptime            time.Duration
	ConnectedClients  int
	Sessions          int
	Subscriptions     int
	Retained          int
	MessagesPublished uint64
	MessagesDelivered uint64
	MessagesQueued    uint64
	MessagesDropped   uint64
}

func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Uptime:            b.now().Sub(b.started),
		ConnectedClients:  b.sessions.CountByState(session.Connected),
		Sessions:          b.sessions.Len(),
		Subscriptions:     b.matcher.Len(),
		Retained:          b.retained.Len(),
		MessagesPublished: b.counter.published,
		MessagesDelivered: b.counter.delivered,
		MessagesQueued:    b.counter.queued,
		MessagesDropped:   b.counter.dropped,
	}
}
