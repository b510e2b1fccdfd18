// Package kafkaqueue produces events to a single-partition Kafka topic.
package kafkaqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
)

// Sink produces every record to partition 0 of the target topic so
// consumers see events in arrival order.
type Sink struct {
	cfg    config.QueueConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *kgo.Client
	topic  string
}

// New creates an unconnected Sink.
func New(cfg config.QueueConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, logger: logger.With(slog.String("component", "kafkaqueue"))}
}

// clientOpts builds the producer options for target.
func (s *Sink) clientOpts(target queue.Target) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(target.Addr()),
		kgo.DefaultProduceTopic(target.Queue),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	}
	if s.cfg.PublishTimeout > 0 {
		opts = append(opts, kgo.ProduceRequestTimeout(s.cfg.PublishTimeout))
	}
	if s.cfg.Username != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: s.cfg.Username,
			Pass: s.cfg.Password,
		}.AsMechanism()))
	}
	return opts
}

// Connect creates the client and pings the seed broker.
func (s *Sink) Connect(ctx context.Context, target queue.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return queue.ErrAlreadyConnected
	}

	client, err := kgo.NewClient(s.clientOpts(target)...)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return fmt.Errorf("kafka connection failed: %w", err)
	}

	s.client = client
	s.topic = target.Queue
	s.logger.Info("connected to Kafka", slog.String("broker", target.Addr()), slog.String("topic", target.Queue))
	return nil
}

// Put produces synchronously and waits for all in-sync replicas.
func (s *Sink) Put(ctx context.Context, item queue.Item) error {
	s.mu.Lock()
	client, topic := s.client, s.topic
	s.mu.Unlock()

	if client == nil {
		return queue.ErrNotConnected
	}

	rec := &kgo.Record{Topic: topic, Partition: 0, Value: item.Payload}
	if item.Key != "" {
		rec.Key = []byte(item.Key)
	}

	if err := client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Disconnect flushes and closes the client. Safe to call more than once.
func (s *Sink) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	client.Close()
	return nil
}

// Ping checks the broker connection.
func (s *Sink) Ping(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return queue.ErrNotConnected
	}
	return client.Ping(ctx)
}
