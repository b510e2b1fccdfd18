// Package pipeline wires one session: sink, track criteria, feed listener.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/listener"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/publisher"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/supervisor"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// Pipeline builds a fresh sink and criteria for every session it runs.
type Pipeline struct {
	cfg       *config.Config
	factories Factories
	feed      feed.Client
	logger    *slog.Logger
}

// New validates the configured backends and builds the feed client.
func New(cfg *config.Config, factories Factories, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := factories.Validate(cfg); err != nil {
		return nil, err
	}

	client, err := factories.Feeds[cfg.Feed.Backend](cfg.Feed, logger)
	if err != nil {
		return nil, fmt.Errorf("create %s feed client: %w", cfg.Feed.Backend, err)
	}

	return &Pipeline{cfg: cfg, factories: factories, feed: client, logger: logger}, nil
}

// Feed returns the feed client.
func (p *Pipeline) Feed() feed.Client {
	return p.feed
}

// Criteria resolves the configured track provider once.
func (p *Pipeline) Criteria(ctx context.Context) (track.Criteria, error) {
	p.logger.Debug("creating track provider", logging.Provider(p.cfg.Track.Provider))
	provider, err := p.factories.Tracks[p.cfg.Track.Provider](ctx, p.cfg.Track)
	if err != nil {
		return track.Criteria{}, fmt.Errorf("create %s track provider: %w", p.cfg.Track.Provider, err)
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}
	return track.Resolve(ctx, provider)
}

// Run is the supervisor entry for one session.
func (p *Pipeline) Run(ctx context.Context, sess *supervisor.Session) error {
	logger := sess.Logger
	qcfg := p.cfg.Queue

	sink, err := p.factories.Sinks[qcfg.Backend](qcfg, logger)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create %s sink: %w", qcfg.Backend, err))
	}

	pub := publisher.New(sink, qcfg.Backend, logger)
	target := queue.Target{Host: qcfg.Host, Port: qcfg.Port, Queue: qcfg.Tube}
	if err := pub.Connect(ctx, target); err != nil {
		return err
	}
	defer func() {
		if err := pub.Disconnect(); err != nil {
			logger.Warn("failed to disconnect from queue", logging.Error(err))
		}
	}()
	sess.Defer(pub.Disconnect)
	sess.SetReadiness(pub.Ping)

	logger.Debug("creating track provider", logging.Provider(p.cfg.Track.Provider))
	provider, err := p.factories.Tracks[p.cfg.Track.Provider](ctx, p.cfg.Track)
	if err != nil {
		err = fmt.Errorf("create %s track provider: %w", p.cfg.Track.Provider, err)
		if errors.Is(err, track.ErrUnknownMode) {
			return backoff.Permanent(err)
		}
		return err
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}

	criteria, err := track.Resolve(ctx, provider)
	if err != nil {
		return err
	}
	metrics.TrackTargets.Set(float64(criteria.Len()))
	logger.Debug("fetched track targets",
		logging.Mode(string(criteria.Mode())),
		logging.Targets(criteria.Len()))

	return listener.New(p.feed, pub, sess.Heart, logger).Start(ctx, criteria)
}
