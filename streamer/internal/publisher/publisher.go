// Package publisher serializes event records and hands them to a queue sink.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/models"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
)

var (
	// ErrAlreadyConnected is returned by Connect while a sink session is open.
	ErrAlreadyConnected = errors.New("publisher already connected")

	// ErrNotConnected is returned by Put without an open sink session.
	ErrNotConnected = errors.New("publisher not connected")
)

// Publisher owns at most one sink session.
type Publisher struct {
	sink    queue.Sink
	backend string
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool
	target    queue.Target
}

// New wraps sink. backend labels metrics.
func New(sink queue.Sink, backend string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sink:    sink,
		backend: backend,
		logger:  logger.With(logging.Backend(backend)),
	}
}

// Connect opens the sink session.
func (p *Publisher) Connect(ctx context.Context, target queue.Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return ErrAlreadyConnected
	}
	if err := p.sink.Connect(ctx, target); err != nil {
		return fmt.Errorf("connect %s sink at %s: %w", p.backend, target.Addr(), err)
	}

	p.connected = true
	p.target = target
	p.logger.Info("connected to queue", logging.Queue(target.Queue), slog.String("addr", target.Addr()))
	return nil
}

// Put serializes rec to JSON and waits for the sink to accept it.
func (p *Publisher) Put(ctx context.Context, rec *models.EventRecord) error {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	id := rec.ID()
	start := time.Now()
	err = p.sink.Put(ctx, queue.Item{Key: id, Payload: payload})
	metrics.PublishDuration.WithLabelValues(p.backend).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PublishErrors.WithLabelValues(p.backend).Inc()
		return fmt.Errorf("queue event %s: %w", id, err)
	}
	metrics.EventsQueued.WithLabelValues(p.backend).Inc()

	if author, ok := rec.Author(); ok {
		p.logger.Log(ctx, logging.LevelNotice,
			fmt.Sprintf("queued event for user %s/%s", author.ScreenName, author.ID),
			logging.EventID(id))
	} else {
		p.logger.Info("queued event", logging.EventID(id))
	}
	return nil
}

// Disconnect closes the sink session. Safe to call more than once and
// from another goroutine than Put.
func (p *Publisher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}
	p.connected = false

	if err := p.sink.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s sink: %w", p.backend, err)
	}
	p.logger.Info("disconnected from queue", logging.Queue(p.target.Queue))
	return nil
}

// Connected reports whether a sink session is open.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Ping checks the sink connection when the backend supports it.
func (p *Publisher) Ping(ctx context.Context) error {
	if !p.Connected() {
		return ErrNotConnected
	}
	if pinger, ok := p.sink.(queue.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
