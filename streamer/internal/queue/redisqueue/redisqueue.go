// Package redisqueue appends events to a Redis list used as a work queue.
// Workers consume with BLPOP, so RPUSH keeps arrival order.
package redisqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
)

// Sink pushes each item onto the list named by the target queue.
type Sink struct {
	cfg    config.QueueConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *redis.Client
	key    string
}

// New creates an unconnected Sink.
func New(cfg config.QueueConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, logger: logger.With(slog.String("component", "redisqueue"))}
}

// Connect opens a client and pings the server.
func (s *Sink) Connect(ctx context.Context, target queue.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return queue.ErrAlreadyConnected
	}

	client := redis.NewClient(&redis.Options{
		Addr:     target.Addr(),
		Username: s.cfg.Username,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis connection failed: %w", err)
	}

	s.client = client
	s.key = target.Queue
	s.logger.Info("connected to Redis", slog.String("addr", target.Addr()), slog.String("list", target.Queue))
	return nil
}

// Put appends the payload to the list.
func (s *Sink) Put(ctx context.Context, item queue.Item) error {
	s.mu.Lock()
	client, key := s.client, s.key
	s.mu.Unlock()

	if client == nil {
		return queue.ErrNotConnected
	}

	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	if err := client.RPush(ctx, key, item.Payload).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return nil
}

// Disconnect closes the client. Safe to call more than once.
func (s *Sink) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// Ping checks the connection.
func (s *Sink) Ping(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return queue.ErrNotConnected
	}
	return client.Ping(ctx).Err()
}
