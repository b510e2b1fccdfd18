package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
)

// ErrStalled matches every *StallError.
var ErrStalled = errors.New("feed stalled")

// StallError reports a session the watchdog terminated.
type StallError struct {
	Silence   time.Duration
	Threshold time.Duration
	LastAlive time.Time
}

func (e *StallError) Error() string {
	return fmt.Sprintf("no events for %s (threshold %s)", e.Silence.Round(time.Millisecond), e.Threshold)
}

func (e *StallError) Unwrap() error { return ErrStalled }

// Watchdog polls a Heart and gives up on the session once the silence
// exceeds the threshold.
type Watchdog struct {
	heart     *Heart
	poll      time.Duration
	threshold time.Duration
	logger    *slog.Logger
}

// NewWatchdog creates a Watchdog. threshold must exceed poll.
func NewWatchdog(h *Heart, poll, threshold time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{heart: h, poll: poll, threshold: threshold, logger: logger}
}

// Run polls until a stall is detected, returning a *StallError, or until
// ctx is done, returning nil.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			silence := w.heart.Since()
			if silence <= w.threshold {
				continue
			}

			stalls := w.heart.RecordStall()
			w.heart.SetState(StateStalled)
			metrics.Stalls.Inc()
			w.logger.Error("feed stalled, terminating session",
				logging.Silence(silence),
				slog.Duration("threshold", w.threshold),
				slog.Int("consecutive_stalls", stalls))
			w.heart.SetState(StateTerminating)

			return &StallError{Silence: silence, Threshold: w.threshold, LastAlive: w.heart.LastAlive()}
		}
	}
}
