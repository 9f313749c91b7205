package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew(t *testing.T) {
	m, err := New(noop.NewMeterProvider().Meter(MeterName))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.Published()
		m.Delivered()
		m.Queued()
		m.Dropped(ReasonPendingOverflow)
		m.WillPublished()
		m.Reaped(2)
		m.ClientConnected()
		m.ClientDisconnected()
	})
}

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Published()
		m.Dropped(ReasonDeliveryFailure)
		m.Reaped(1)
		m.ClientDisconnected()
	})
}
