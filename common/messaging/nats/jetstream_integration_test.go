//go:build integration

package nats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/telhawk-systems/telhawk-stream/common/messaging"
)

// setupNATS starts a JetStream-enabled NATS server and returns its URL.
func setupNATS(t *testing.T) string {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.11-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestJetStreamClient_PublishSync(t *testing.T) {
	ctx := context.Background()
	url := setupNATS(t)

	cfg := DefaultConfig()
	cfg.URL = url
	client, err := NewJetStreamClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	subject := messaging.EventSubject("tweets")
	_, err = client.CreateOrUpdateStream(ctx, WorkQueueConfig("TWEETS", []string{subject}))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		msg := messaging.NewMessage(subject, []byte(fmt.Sprintf(`{"n":%d}`, i)),
			messaging.WithHeader(messaging.HeaderEventID, fmt.Sprint(i)))
		ack, err := client.PublishSync(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), ack.Sequence)
	}

	// same event id inside the duplicate window is dropped
	dup, err := client.PublishSync(ctx, messaging.NewMessage(subject, []byte(`{"n":3}`),
		messaging.WithHeader(messaging.HeaderEventID, "3")))
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)

	stream, err := client.JetStream().Stream(ctx, "TWEETS")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), info.State.Msgs)

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   "worker",
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	require.NoError(t, err)

	batch, err := cons.Fetch(3, jetstream.FetchMaxWait(2*time.Second))
	require.NoError(t, err)

	var got []string
	for m := range batch.Messages() {
		got = append(got, string(m.Data()))
		require.NoError(t, m.Ack())
	}
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, got)

	rtt, err := client.RTT()
	require.NoError(t, err)
	assert.Positive(t, rtt)
}
