package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/telhawk-stream/common/messaging"
)

// Work queue stream limits.
const (
	workQueueMaxAge     = 7 * 24 * time.Hour
	workQueueMaxBytes   = 1 << 30
	workQueueMaxMsgs    = 1_000_000
	workQueueDuplicates = 2 * time.Minute
)

// WorkQueueConfig returns the stream layout for an event work queue: each
// message goes to exactly one consumer and is removed on ack. Repeated
// Nats-Msg-Id values inside the duplicate window are dropped.
func WorkQueueConfig(name string, subjects []string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		MaxAge:     workQueueMaxAge,
		MaxBytes:   workQueueMaxBytes,
		MaxMsgs:    workQueueMaxMsgs,
		Duplicates: workQueueDuplicates,
	}
}

// JetStreamClient is a Client that publishes with stream acknowledgements.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// NewJetStreamClient dials NATS and opens a JetStream context on the connection.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open JetStream context: %w", err)
	}
	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream makes sure the stream exists with cfg.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create or update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// PublishSync publishes msg and waits for the stream ack. The HeaderEventID
// header, when present, is also sent as the deduplication id.
func (c *JetStreamClient) PublishSync(ctx context.Context, msg *messaging.Message) (*jetstream.PubAck, error) {
	var opts []jetstream.PublishOpt
	if id := msg.Metadata[messaging.HeaderEventID]; id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}
	return c.js.PublishMsg(ctx, toNATS(msg), opts...)
}

// JetStream exposes the underlying context.
func (c *JetStreamClient) JetStream() jetstream.JetStream {
	return c.js
}
