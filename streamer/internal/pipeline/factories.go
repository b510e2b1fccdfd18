package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed/httpstream"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed/wsfeed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue/jsqueue"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue/kafkaqueue"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue/redisqueue"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track/pgtrack"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track/redistrack"
)

// ErrUnknownBackend is returned for a configured name with no factory.
var ErrUnknownBackend = errors.New("unknown backend")

// TrackFactory builds a track provider.
type TrackFactory func(ctx context.Context, cfg config.TrackConfig) (track.Provider, error)

// FeedFactory builds a feed client.
type FeedFactory func(cfg config.FeedConfig, logger *slog.Logger) (feed.Client, error)

// SinkFactory builds an unconnected queue sink.
type SinkFactory func(cfg config.QueueConfig, logger *slog.Logger) (queue.Sink, error)

// Factories maps configured names to constructors.
type Factories struct {
	Tracks map[string]TrackFactory
	Feeds  map[string]FeedFactory
	Sinks  map[string]SinkFactory
}

// DefaultFactories returns every built-in backend.
func DefaultFactories() Factories {
	return Factories{
		Tracks: map[string]TrackFactory{
			"config": func(_ context.Context, cfg config.TrackConfig) (track.Provider, error) {
				return track.NewStaticProvider(cfg.Type, cfg.Items)
			},
			"postgres": func(ctx context.Context, cfg config.TrackConfig) (track.Provider, error) {
				return pgtrack.New(ctx, cfg)
			},
			"redis": func(ctx context.Context, cfg config.TrackConfig) (track.Provider, error) {
				return redistrack.New(ctx, cfg)
			},
		},
		Feeds: map[string]FeedFactory{
			"http": func(cfg config.FeedConfig, logger *slog.Logger) (feed.Client, error) {
				return httpstream.New(cfg, httpstream.WithLogger(logger)), nil
			},
			"websocket": func(cfg config.FeedConfig, logger *slog.Logger) (feed.Client, error) {
				return wsfeed.New(cfg, wsfeed.WithLogger(logger)), nil
			},
		},
		Sinks: map[string]SinkFactory{
			"jetstream": func(cfg config.QueueConfig, logger *slog.Logger) (queue.Sink, error) {
				return jsqueue.New(cfg, logger), nil
			},
			"redis": func(cfg config.QueueConfig, logger *slog.Logger) (queue.Sink, error) {
				return redisqueue.New(cfg, logger), nil
			},
			"kafka": func(cfg config.QueueConfig, logger *slog.Logger) (queue.Sink, error) {
				return kafkaqueue.New(cfg, logger), nil
			},
		},
	}
}

// Validate checks every configured name before anything is started.
func (f Factories) Validate(cfg *config.Config) error {
	var errs []error
	if _, ok := f.Tracks[cfg.Track.Provider]; !ok {
		errs = append(errs, unknown("track.provider", cfg.Track.Provider, keys(f.Tracks)))
	}
	if _, ok := f.Feeds[cfg.Feed.Backend]; !ok {
		errs = append(errs, unknown("feed.backend", cfg.Feed.Backend, keys(f.Feeds)))
	}
	if _, ok := f.Sinks[cfg.Queue.Backend]; !ok {
		errs = append(errs, unknown("queue.backend", cfg.Queue.Backend, keys(f.Sinks)))
	}
	if _, err := track.ParseMode(cfg.Track.Type); err != nil {
		errs = append(errs, fmt.Errorf("track.type: %w", err))
	}
	return errors.Join(errs...)
}

func unknown(key, name string, valid []string) error {
	return fmt.Errorf("%s: %w %q (valid: %s)", key, ErrUnknownBackend, name, strings.Join(valid, ", "))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
