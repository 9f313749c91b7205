// Package metrics 定义了代理运行时的 OpenTelemetry 指标
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const MeterName = "github.com/life-stream-dev/lifestream-broker"

// Drop reasons attached to the dropped counter.
const (
	ReasonPendingOverflow = "pending_overflow"
	ReasonRetainedEvicted = "retained_evicted"
	ReasonDeliveryFailure = "delivery_failure"
	ReasonRateLimited     = "rate_limited"
	ReasonNotAuthorized   = "not_authorized"
)

// Metrics groups the broker instruments. A nil *Metrics records nothing.
type Metrics struct {
	published metric.Int64Counter
	delivered metric.Int64Counter
	queued    metric.Int64Counter
	dropped   metric.Int64Counter
	wills     metric.Int64Counter
	reaped    metric.Int64Counter
	connected metric.Int64UpDownCounter
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.published, err = meter.Int64Counter("broker.messages.published",
		metric.WithDescription("Messages accepted for routing")); err != nil {
		return nil, fmt.Errorf("published counter: %w", err)
	}
	if m.delivered, err = meter.Int64Counter("broker.messages.delivered",
		metric.WithDescription("Deliveries handed to a connected client")); err != nil {
		return nil, fmt.Errorf("delivered counter: %w", err)
	}
	if m.queued, err = meter.Int64Counter("broker.messages.queued",
		metric.WithDescription("Deliveries queued for a disconnected persistent session")); err != nil {
		return nil, fmt.Errorf("queued counter: %w", err)
	}
	if m.dropped, err = meter.Int64Counter("broker.messages.dropped",
		metric.WithDescription("Messages or deliveries discarded, by reason")); err != nil {
		return nil, fmt.Errorf("dropped counter: %w", err)
	}
	if m.wills, err = meter.Int64Counter("broker.wills.published",
		metric.WithDescription("Last will messages published")); err != nil {
		return nil, fmt.Errorf("wills counter: %w", err)
	}
	if m.reaped, err = meter.Int64Counter("broker.sessions.reaped",
		metric.WithDescription("Sessions disconnected for keepalive violation")); err != nil {
		return nil, fmt.Errorf("reaped counter: %w", err)
	}
	if m.connected, err = meter.Int64UpDownCounter("broker.clients.connected",
		metric.WithDescription("Currently connected clients")); err != nil {
		return nil, fmt.Errorf("connected counter: %w", err)
	}
	return m, nil
}

func (m *Metrics) Published() {
	if m != nil {
		m.published.Add(context.Background(), 1)
	}
}

func (m *Metrics) Delivered() {
	if m != nil {
		m.delivered.Add(context.Background(), 1)
	}
}

func (m *Metrics) Queued() {
	if m != nil {
		m.queued.Add(context.Background(), 1)
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *Metrics) WillPublished() {
	if m != nil {
		m.wills.Add(context.Background(), 1)
	}
}

func (m *Metrics) Reaped(n int) {
	if m != nil && n > 0 {
		m.reaped.Add(context.Background(), int64(n))
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.connected.Add(context.Background(), 1)
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.connected.Add(context.Background(), -1)
	}
}
