// Package jsqueue publishes events to a NATS JetStream work-queue stream.
package jsqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-stream/common/messaging"
	natsclient "github.com/telhawk-systems/telhawk-stream/common/messaging/nats"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
)

// Sink writes each item to the subject streamer.events.<queue>, captured by
// a WorkQueuePolicy stream.
type Sink struct {
	cfg    config.QueueConfig
	logger *slog.Logger

	mu      sync.Mutex
	client  *natsclient.JetStreamClient
	subject string
}

// New creates an unconnected Sink.
func New(cfg config.QueueConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, logger: logger.With(slog.String("component", "jsqueue"))}
}

// Connect dials NATS and makes sure the stream exists.
func (s *Sink) Connect(ctx context.Context, target queue.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return queue.ErrAlreadyConnected
	}

	ncfg := natsclient.DefaultConfig()
	ncfg.URL = natsclient.URL(target.Host, target.Port)
	ncfg.User = s.cfg.Username
	ncfg.Password = s.cfg.Password
	ncfg.Logger = s.logger

	client, err := natsclient.NewJetStreamClient(ncfg)
	if err != nil {
		return err
	}

	subject := messaging.EventSubject(target.Queue)
	if _, err := client.CreateOrUpdateStream(ctx, natsclient.WorkQueueConfig(s.cfg.Stream, []string{subject})); err != nil {
		client.Close()
		return err
	}

	s.client = client
	s.subject = subject
	s.logger.Info("connected to JetStream",
		slog.String("stream", s.cfg.Stream),
		slog.String("subject", subject))
	return nil
}

// Put publishes synchronously and waits for the stream ack.
func (s *Sink) Put(ctx context.Context, item queue.Item) error {
	s.mu.Lock()
	client, subject := s.client, s.subject
	s.mu.Unlock()

	if client == nil {
		return queue.ErrNotConnected
	}

	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	var opts []messaging.PublishOption
	if item.Key != "" {
		opts = append(opts, messaging.WithHeader(messaging.HeaderEventID, item.Key))
	}

	ack, err := client.PublishSync(ctx, messaging.NewMessage(subject, item.Payload, opts...))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	if ack.Duplicate {
		s.logger.Debug("duplicate event dropped by stream", slog.String("event_id", item.Key))
	}
	return nil
}

// Disconnect drains the connection. Safe to call more than once.
func (s *Sink) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Drain(); err != nil {
		client.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// Ping reports the broker round trip.
func (s *Sink) Ping(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return queue.ErrNotConnected
	}
	rtt, err := messaging.Probe(ctx, client)
	if err != nil {
		return err
	}
	if rtt > time.Second {
		s.logger.Warn("slow NATS round trip", slog.Duration("rtt", rtt))
	}
	return nil
}
