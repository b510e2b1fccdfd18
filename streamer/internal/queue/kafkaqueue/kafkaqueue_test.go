package kafkaqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
)

func TestClientOpts(t *testing.T) {
	target := queue.Target{Host: "broker", Port: 9092, Queue: "tweets"}

	plainOpts := New(config.QueueConfig{}, nil).clientOpts(target)
	authOpts := New(config.QueueConfig{
		Username:       "svc",
		Password:       "pw",
		PublishTimeout: 5 * time.Second,
	}, nil).clientOpts(target)

	// SASL and timeout add one option each
	assert.Len(t, authOpts, len(plainOpts)+2)

	client, err := kgo.NewClient(plainOpts...)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "tweets", client.OptValue(kgo.DefaultProduceTopic))
}

func TestSink_NotConnected(t *testing.T) {
	s := New(config.QueueConfig{}, nil)

	assert.ErrorIs(t, s.Put(context.Background(), queue.Item{Payload: []byte("x")}), queue.ErrNotConnected)
	assert.ErrorIs(t, s.Ping(context.Background()), queue.ErrNotConnected)
	assert.NoError(t, s.Disconnect())
}

func TestSink_ConnectUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := New(config.QueueConfig{}, nil)
	err := s.Connect(ctx, queue.Target{Host: "127.0.0.1", Port: 1, Queue: "tweets"})
	require.Error(t, err)
	assert.ErrorIs(t, s.Put(context.Background(), queue.Item{}), queue.ErrNotConnected)
}

var _ queue.Sink = (*Sink)(nil)
var _ queue.Pinger = (*Sink)(nil)
