package redisqueue

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, queue.Target) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return mr, queue.Target{Host: host, Port: port, Queue: "tweets"}
}

func TestSink_PutKeepsOrder(t *testing.T) {
	mr, target := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	s := New(config.QueueConfig{}, nil)
	require.NoError(t, s.Connect(ctx, target))
	defer s.Disconnect()

	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, s.Put(ctx, queue.Item{Payload: []byte(p)}))
	}

	items, err := mr.List("tweets")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, items)
	assert.NoError(t, s.Ping(ctx))
}

func TestSink_ConnectTwice(t *testing.T) {
	mr, target := setupTestRedis(t)
	defer mr.Close()

	s := New(config.QueueConfig{}, nil)
	require.NoError(t, s.Connect(context.Background(), target))
	defer s.Disconnect()

	assert.ErrorIs(t, s.Connect(context.Background(), target), queue.ErrAlreadyConnected)
}

func TestSink_DisconnectIdempotent(t *testing.T) {
	mr, target := setupTestRedis(t)
	defer mr.Close()

	s := New(config.QueueConfig{}, nil)
	require.NoError(t, s.Connect(context.Background(), target))

	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Disconnect())
	assert.ErrorIs(t, s.Put(context.Background(), queue.Item{Payload: []byte("x")}), queue.ErrNotConnected)

	// reconnecting after a disconnect opens a fresh session
	require.NoError(t, s.Connect(context.Background(), target))
	assert.NoError(t, s.Disconnect())
}

func TestSink_Auth(t *testing.T) {
	mr, target := setupTestRedis(t)
	defer mr.Close()
	mr.RequireAuth("secret")

	bad := New(config.QueueConfig{Password: "wrong"}, nil)
	assert.Error(t, bad.Connect(context.Background(), target))

	good := New(config.QueueConfig{Password: "secret"}, nil)
	require.NoError(t, good.Connect(context.Background(), target))
	assert.NoError(t, good.Disconnect())
}

func TestSink_PutAfterServerGone(t *testing.T) {
	mr, target := setupTestRedis(t)

	s := New(config.QueueConfig{}, nil)
	require.NoError(t, s.Connect(context.Background(), target))
	defer s.Disconnect()

	mr.Close()
	err := s.Put(context.Background(), queue.Item{Payload: []byte("x")})
	assert.Error(t, err)
}
