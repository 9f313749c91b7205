package broker

import (
	"context"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/logger"
)

const DefaultReapInterval = 30 * time.Second

// Reaper periodically disconnects sessions that stopped honouring their
// keepalive. Detection precision is bounded by the sweep interval.
type Reaper struct {
	broker   *Broker
	interval time.Duration
}

func NewReaper(b *Broker, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{broker: b, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.DebugF("Session reaper started, interval %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Session reaper stopped")
			return nil
		case <-ticker.C:
			if reaped := r.broker.Sweep(r.broker.now()); len(reaped) > 0 {
				logger.InfoF("Reaped %d expired sessions: %v", len(reaped), reaped)
			}
		}
	}
}
