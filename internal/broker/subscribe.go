package broker

import (
	"context"
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"github.com/life-stream-dev/lifestream-broker/internal/topic"
)

// Subscribe registers filter for clientID at qos, replacing the QoS of an
// existing identical filter, and immediately delivers every matching retained
// message with its retain flag set. It returns the granted QoS.
func (b *Broker) Subscribe(ctx context.Context, clientID, filter string, qos byte) (byte, error) {
	if err := topic.ValidateFilter(filter); err != nil {
		return 0, err
	}
	if qos > 2 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if !b.authorizer.Authorize(ctx, clientID, ActionSubscribe, filter) {
		return 0, fmt.Errorf("%w: %s may not subscribe to %s", ErrNotAuthorized, clientID, filter)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}
	s.LastActivity = b.now()
	s.AddSubscription(filter, qos)
	b.matcher.Subscribe(topic.Subscription{ClientID: clientID, Filter: filter, QoS: qos})
	logger.InfoF("[%s] Subscribed to %s (QoS %d)", clientID, filter, qos)

	for _, msg := range b.retained.Matching(filter) {
		b.deliver(s, msg, qos)
		// 投递失败后清洁会话会被销毁
		if _, ok := b.sessions.Get(clientID); !ok {
			break
		}
	}
	return qos, nil
}

// Unsubscribe removes filter from clientID. Unknown clients and filters are
// not an error.
func (b *Broker) Unsubscribe(clientID, filter string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok {
		return
	}
	s.LastActivity = b.now()
	if s.RemoveSubscription(filter) {
		b.matcher.Unsubscribe(clientID, filter)
		logger.InfoF("[%s] Unsubscribed from %s", clientID, filter)
	}
}

// Ping records activity for clientID.
func (b *Broker) Ping(clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}
	s.LastActivity = b.now()
	return nil
}
