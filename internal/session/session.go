// Package session 实现了客户端会话状态：订阅、离线消息队列、遗嘱消息以及 QoS 在途消息跟踪
package session

import (
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/topic"
)

// State of a stored session. A session that is not stored is absent.
type State byte

const (
	Connected State = iota + 1
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED_PERSISTED"
	default:
		return "ABSENT"
	}
}

// Delivery is one message handed to a subscriber at its effective QoS.
type Delivery struct {
	ClientID string
	Message  topic.Message
	QoS      byte
}

// Sink receives deliveries for one connection. Deliver is called with the
// broker lock held and must not block on I/O.
type Sink interface {
	Deliver(d Delivery) error
	Close()
}

// Session is the broker-side state of one client id. It is guarded by the
// broker lock and must not be shared outside of it.
type Session struct {
	ClientID      string
	Clean         bool
	State         State
	KeepAlive     uint16 // 秒
	LastActivity  time.Time
	Subscriptions map[string]byte // 主题过滤器: QoS
	Pending       *Queue          // 仅在持久会话断开期间使用
	Will          *topic.Message

	// Sink is the outbound handoff of the attached connection; nil while disconnected.
	Sink Sink
}

func New(clientID string, clean bool, keepAlive uint16, pendingLimit int, now time.Time) *Session {
	return &Session{
		ClientID:      clientID,
		Clean:         clean,
		State:         Connected,
		KeepAlive:     keepAlive,
		LastActivity:  now,
		Subscriptions: make(map[string]byte),
		Pending:       NewQueue(pendingLimit),
	}
}

func (s *Session) AddSubscription(filter string, qos byte) {
	s.Subscriptions[filter] = qos
}

func (s *Session) RemoveSubscription(filter string) bool {
	if _, ok := s.Subscriptions[filter]; !ok {
		return false
	}
	delete(s.Subscriptions, filter)
	return true
}

// Expired reports whether the keepalive contract is violated at now.
// A keepalive of zero disables the check.
func (s *Session) Expired(now time.Time, grace float64) bool {
	if s.KeepAlive == 0 || s.State != Connected {
		return false
	}
	limit := time.Duration(float64(s.KeepAlive) * grace * float64(time.Second))
	return now.Sub(s.LastActivity) > limit
}
