// Package broker 实现了发布/订阅代理核心：会话生命周期、主题路由、保留消息与遗嘱消息
package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"github.com/life-stream-dev/lifestream-broker/internal/metrics"
	"github.com/life-stream-dev/lifestream-broker/internal/session"
	"github.com/life-stream-dev/lifestream-broker/internal/topic"
)

const DefaultKeepAliveGrace = 1.5

// Broker owns every session, the subscription tree and the retained store.
// A single mutex serializes all operations so none of them observes a
// partially applied update.
type Broker struct {
	mu         sync.Mutex
	sessions   *session.Store
	matcher    *topic.Matcher
	retained   *topic.RetainedStore
	authorizer Authorizer
	metrics    *metrics.Metrics
	now        func() time.Time

	maxPending  int
	maxRetained int
	grace       float64

	started time.Time
	counter counters
}

type counters struct {
	published uint64
	delivered uint64
	queued    uint64
	dropped   uint64
}

type Option func(*Broker)

// WithMaxPending bounds the pending queue of every persistent session.
func WithMaxPending(n int) Option {
	return func(b *Broker) { b.maxPending = n }
}

// WithMaxRetained bounds the number of retained topics.
func WithMaxRetained(n int) Option {
	return func(b *Broker) { b.maxRetained = n }
}

// WithKeepAliveGrace sets the multiplier applied to a client's keepalive
// before the session counts as expired.
func WithKeepAliveGrace(factor float64) Option {
	return func(b *Broker) {
		if factor >= 1 {
			b.grace = factor
		}
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(b *Broker) {
		if a != nil {
			b.authorizer = a
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

func New(opts ...Option) *Broker {
	b := &Broker{
		sessions:   session.NewStore(),
		matcher:    topic.NewMatcher(),
		authorizer: allowAll{},
		now:        time.Now,
		maxPending: session.DefaultQueueLimit,
		grace:      DefaultKeepAliveGrace,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.retained = topic.NewRetainedStore(b.maxRetained)
	b.started = b.now()
	return b
}

// ConnectRequest carries the decoded CONNECT of one client.
type ConnectRequest struct {
	ClientID  string
	Clean     bool
	KeepAlive uint16
	Will      *topic.Message
	Sink      Sink
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ClientID       string
	Clean          bool
	State          session.State
	SessionPresent bool
	KeepAlive      uint16
	LastActivity   time.Time
	Subscriptions  map[string]byte
	Pending        int
	HasWill        bool
}

func snapshot(s *session.Session) SessionInfo {
	subs := make(map[string]byte, len(s.Subscriptions))
	for filter, qos := range s.Subscriptions {
		subs[filter] = qos
	}
	return SessionInfo{
		ClientID:      s.ClientID,
		Clean:         s.Clean,
		State:         s.State,
		KeepAlive:     s.KeepAlive,
		LastActivity:  s.LastActivity,
		Subscriptions: subs,
		Pending:       s.Pending.Len(),
		HasWill:       s.Will != nil,
	}
}

// Connect attaches a client. A persistent session left by an earlier
// connection is resumed and its pending queue flushed; with Clean set any
// earlier state is discarded first. A still-connected earlier connection is
// taken over without publishing its will.
func (b *Broker) Connect(req ConnectRequest) (SessionInfo, error) {
	if req.Will != nil {
		if err := topic.ValidateTopic(req.Will.Topic); err != nil {
			return SessionInfo{}, fmt.Errorf("will: %w", err)
		}
		if req.Will.QoS > 2 {
			return SessionInfo{}, fmt.Errorf("will: %w: %d", ErrInvalidQoS, req.Will.QoS)
		}
	}
	if req.ClientID == "" {
		if !req.Clean {
			return SessionInfo{}, fmt.Errorf("%w: empty client id requires a clean session", ErrInvalidClientID)
		}
		req.ClientID = uuid.NewString()
	}
	if req.Sink == nil {
		return SessionInfo{}, fmt.Errorf("[%s] %w", req.ClientID, ErrInvalidSink)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	existing, found := b.sessions.Get(req.ClientID)
	if found && existing.State == session.Connected {
		logger.InfoF("[%s] Session taken over by a new connection", req.ClientID)
		b.detach(existing)
	}
	if found && (req.Clean || existing.Clean) {
		b.destroy(existing)
		found = false
	}

	if found {
		existing.State = session.Connected
		existing.KeepAlive = req.KeepAlive
		existing.LastActivity = now
		existing.Will = req.Will
		existing.Sink = req.Sink
		b.metrics.ClientConnected()
		logger.InfoF("[%s] Session resumed, subscriptions=%d, pending=%d",
			req.ClientID, len(existing.Subscriptions), existing.Pending.Len())
		b.flush(existing)

		info := snapshot(existing)
		info.SessionPresent = true
		return info, nil
	}

	s := session.New(req.ClientID, req.Clean, req.KeepAlive, b.maxPending, now)
	s.Will = req.Will
	s.Sink = req.Sink
	b.sessions.Save(s)
	b.metrics.ClientConnected()
	logger.InfoF("[%s] Session created, clean=%v, keepalive=%ds", req.ClientID, req.Clean, req.KeepAlive)
	return snapshot(s), nil
}

// Disconnect detaches a connected client. An ungraceful disconnect publishes
// the will first. Clean sessions are destroyed, persistent ones kept with
// their subscriptions registered. Unknown or already disconnected clients are
// a no-op.
func (b *Broker) Disconnect(clientID string, graceful bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok || s.State != session.Connected {
		return
	}
	b.disconnect(s, graceful)
}

// DisconnectSink disconnects clientID only while sink is still the attached
// one, so a connection that lost a takeover cannot tear down its successor.
func (b *Broker) DisconnectSink(clientID string, sink Sink, graceful bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok || s.State != session.Connected || s.Sink != sink {
		return
	}
	b.disconnect(s, graceful)
}

// Purge removes a session in any state without publishing its will.
func (b *Broker) Purge(clientID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok {
		return false
	}
	b.destroy(s)
	logger.InfoF("[%s] Session purged", clientID)
	return true
}

// Session returns a snapshot of the session stored for clientID.
func (b *Broker) Session(clientID string) (SessionInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions.Get(clientID)
	if !ok {
		return SessionInfo{}, false
	}
	return snapshot(s), true
}

// Sweep disconnects, ungracefully, every connected session whose keepalive
// expired at now and returns their client ids.
func (b *Broker) Sweep(now time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expired []*session.Session
	b.sessions.Range(func(s *session.Session) bool {
		if s.Expired(now, b.grace) {
			expired = append(expired, s)
		}
		return true
	})

	reaped := make([]string, 0, len(expired))
	for _, s := range expired {
		// 之前的遗嘱投递失败可能已经移除了该会话
		if s.State != session.Connected {
			continue
		}
		logger.WarnF("[%s] Keepalive expired, last activity %s ago", s.ClientID, now.Sub(s.LastActivity))
		b.disconnect(s, false)
		reaped = append(reaped, s.ClientID)
	}
	b.metrics.Reaped(len(reaped))
	return reaped
}

// disconnect runs with b.mu held and s connected.
func (b *Broker) disconnect(s *session.Session, graceful bool) {
	will := s.Will
	s.Will = nil
	b.detach(s)

	if !graceful && will != nil {
		logger.InfoF("[%s] Publishing will message to %s", s.ClientID, will.Topic)
		b.metrics.WillPublished()
		b.publish(*will)
	}

	if s.Clean {
		b.destroy(s)
		logger.InfoF("[%s] Client disconnected (graceful=%v), session removed", s.ClientID, graceful)
		return
	}
	logger.InfoF("[%s] Client disconnected (graceful=%v), session persisted", s.ClientID, graceful)
}

// detach closes the attached sink and marks s disconnected.
func (b *Broker) detach(s *session.Session) {
	if s.Sink != nil {
		s.Sink.Close()
		s.Sink = nil
	}
	if s.State == session.Connected {
		b.metrics.ClientDisconnected()
	}
	s.State = session.Disconnected
}

// destroy unregisters every subscription of s and forgets it.
func (b *Broker) destroy(s *session.Session) {
	if s.State == session.Connected {
		b.detach(s)
	}
	for filter := range s.Subscriptions {
		b.matcher.Unsubscribe(s.ClientID, filter)
	}
	if dropped := s.Pending.Len(); dropped > 0 {
		logger.DebugF("[%s] Dropping %d pending messages", s.ClientID, dropped)
	}
	b.sessions.Delete(s.ClientID)
}

// flush hands the pending queue of a resumed session to its sink in order.
func (b *Broker) flush(s *session.Session) {
	pending := s.Pending.Drain()
	for i, d := range pending {
		if err := s.Sink.Deliver(d); err != nil {
			s.Pending.PushFront(pending[i+1:])
			b.deliveryFailed(s, err)
			return
		}
		b.counter.delivered++
		b.metrics.Delivered()
	}
}
