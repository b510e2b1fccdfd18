// Package listener consumes a feed session and hands every event to the
// publisher in receive order.
package listener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/heartbeat"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/models"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// Putter accepts decoded events.
type Putter interface {
	Put(ctx context.Context, rec *models.EventRecord) error
}

// Listener is the feed.Handler for one session.
type Listener struct {
	client feed.Client
	out    Putter
	heart  *heartbeat.Heart
	logger *slog.Logger
}

// New creates a Listener.
func New(client feed.Client, out Putter, heart *heartbeat.Heart, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{client: client, out: out, heart: heart, logger: logger}
}

// Start opens the feed session for criteria and blocks until it ends.
// Only the users mode is supported; any other mode fails permanently
// without contacting the feed.
func (l *Listener) Start(ctx context.Context, criteria track.Criteria) error {
	switch criteria.Mode() {
	case track.ModeUsers:
	case track.ModeWords:
		l.logger.Log(ctx, logging.LevelCritical, track.ErrUnsupportedMode.Error())
		return backoff.Permanent(track.ErrUnsupportedMode)
	default:
		err := fmt.Errorf("%w: %q", track.ErrUnknownMode, criteria.Mode())
		l.logger.Log(ctx, logging.LevelCritical, err.Error())
		return backoff.Permanent(err)
	}

	if criteria.Len() == 0 {
		return track.ErrNoTargets
	}

	l.logger.Log(ctx, logging.LevelNotice, "opening feed session",
		logging.Mode(string(criteria.Mode())),
		logging.Targets(criteria.Len()))
	l.logger.Debug("track targets", slog.Any("targets", criteria.Targets()))

	return l.client.Stream(ctx, criteria, l)
}

// OnConnect implements feed.Handler.
func (l *Listener) OnConnect() {
	l.heart.SetState(heartbeat.StateRunning)
	metrics.FeedConnects.Inc()
	logging.Notice(l.logger, "connected to feed")
}

// OnEvent implements feed.Handler. Failures end the session.
func (l *Listener) OnEvent(ctx context.Context, raw []byte) error {
	metrics.EventsReceived.Inc()
	metrics.EventBytesTotal.Add(float64(len(raw)))

	rec, err := models.DecodeEventRecord(raw)
	if err != nil {
		metrics.DecodeErrors.Inc()
		l.logger.Error("failed to decode event", logging.Error(err))
		return fmt.Errorf("decode event: %w", err)
	}

	l.heart.Touch()

	if err := l.out.Put(ctx, rec); err != nil {
		l.logger.Error("failed to queue event", logging.EventID(rec.ID()), logging.Error(err))
		return err
	}
	return nil
}

// OnError implements feed.Handler. The session keeps running.
func (l *Listener) OnError(st feed.Status) {
	metrics.FeedErrors.WithLabelValues(st.Kind).Inc()
	l.logger.Error("feed error",
		slog.String("kind", st.Kind),
		logging.Status(st.Code),
		slog.String("message", st.Message))
}
