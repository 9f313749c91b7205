package broker

import (
	"context"
	"fmt"

	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"github.com/life-stream-dev/lifestream-broker/internal/metrics"
	"github.com/life-stream-dev/lifestream-broker/internal/session"
	"github.com/life-stream-dev/lifestream-broker/internal/topic"
)

// Publish routes msg on behalf of the broker itself and returns how many
// subscriptions it was delivered or queued to. A retained msg updates the
// retained store even when nobody is subscribed.
func (b *Broker) Publish(msg topic.Message) (int, error) {
	if err := validateMessage(msg); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publish(msg), nil
}

// PublishFrom routes msg received from a connected client.
func (b *Broker) PublishFrom(ctx context.Context, clientID string, msg topic.Message) (int, error) {
	if err := validateMessage(msg); err != nil {
		return 0, err
	}
	if !b.authorizer.Authorize(ctx, clientID, ActionPublish, msg.Topic) {
		b.metrics.Dropped(metrics.ReasonNotAuthorized)
		return 0, fmt.Errorf("%w: %s may not publish to %s", ErrNotAuthorized, clientID, msg.Topic)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok || s.State != session.Connected {
		return 0, fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}
	s.LastActivity = b.now()
	return b.publish(msg), nil
}

func validateMessage(msg topic.Message) error {
	if err := topic.ValidateTopic(msg.Topic); err != nil {
		return err
	}
	if msg.QoS > 2 {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, msg.QoS)
	}
	return nil
}

// publish runs with b.mu held.
func (b *Broker) publish(msg topic.Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	b.counter.published++
	b.metrics.Published()

	if msg.Retain {
		if b.retained.Set(msg) {
			b.metrics.Dropped(metrics.ReasonRetainedEvicted)
			logger.DebugF("Retained store full, evicted oldest topic for %s", msg.Topic)
		}
	}

	subs := b.matcher.Match(msg.Topic)
	if len(subs) == 0 {
		logger.DebugF("No subscribers for topic %s", msg.Topic)
		return 0
	}

	// 实时投递不携带保留标志
	live := msg
	live.Retain = false

	count := 0
	for _, sub := range subs {
		s, ok := b.sessions.Get(sub.ClientID)
		if !ok {
			// 之前的投递失败可能已经移除了该会话
			continue
		}
		if b.deliver(s, live, sub.QoS) {
			count++
		}
	}
	logger.DebugF("Published to %s, delivered to %d of %d subscriptions", msg.Topic, count, len(subs))
	return count
}

// deliver hands msg to s at min(msg.QoS, granted), or queues it while s is
// disconnected. It runs with b.mu held and never blocks.
func (b *Broker) deliver(s *session.Session, msg topic.Message, granted byte) bool {
	msg.QoS = min(msg.QoS, granted)
	d := Delivery{ClientID: s.ClientID, Message: msg, QoS: msg.QoS}

	switch s.State {
	case session.Connected:
		if err := s.Sink.Deliver(d); err != nil {
			b.deliveryFailed(s, err)
			return false
		}
		b.counter.delivered++
		b.metrics.Delivered()
		return true
	case session.Disconnected:
		if s.Pending.Push(d) {
			b.counter.dropped++
			b.metrics.Dropped(metrics.ReasonPendingOverflow)
			logger.DebugF("[%s] Pending queue full (%d), dropped oldest message", s.ClientID, s.Pending.Limit())
		}
		b.counter.queued++
		b.metrics.Queued()
		return true
	default:
		return false
	}
}

// deliveryFailed demotes a connected session whose sink rejected a delivery.
// The rejected message is not retried.
func (b *Broker) deliveryFailed(s *session.Session, err error) {
	logger.WarnF("[%s] Delivery failed, details: %v", s.ClientID, err)
	b.counter.dropped++
	b.metrics.Dropped(metrics.ReasonDeliveryFailure)
	b.disconnect(s, false)
}
