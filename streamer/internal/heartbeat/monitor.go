package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
)

// Monitor emits a periodic heartbeat for a session.
type Monitor struct {
	heart    *Heart
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor ticking every interval.
func NewMonitor(h *Heart, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{heart: h, interval: interval, logger: logger}
}

// Run ticks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := m.heart.Pulse()
			silence := m.heart.Since()
			metrics.SecondsSinceLastEvent.Set(silence.Seconds())
			m.logger.Debug("heartbeat",
				slog.Uint64("pulse", n),
				slog.Uint64("events", m.heart.Events()),
				logging.Silence(silence))
		}
	}
}
