package listener

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed/feedtest"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/heartbeat"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/models"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/publisher"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue/queuetest"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// recordingPutter captures records and the heart's last-alive time at each Put.
type recordingPutter struct {
	heart      *heartbeat.Heart
	records    []*models.EventRecord
	lastAlives []time.Time
	err        error
}

func (r *recordingPutter) Put(_ context.Context, rec *models.EventRecord) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	r.lastAlives = append(r.lastAlives, r.heart.LastAlive())
	return nil
}

func TestListener_ThreeEventsForOneTarget(t *testing.T) {
	client := &feedtest.Client{Events: []string{
		`{"id_str":"1","text":"first","user":{"screen_name":"a","id_str":"42"}}`,
		`{"id_str":"2","text":"second","user":{"screen_name":"a","id_str":"42"}}`,
		`{"id_str":"3","text":"third","user":{"screen_name":"a","id_str":"42"}}`,
	}}
	sink := &queuetest.MemorySink{}
	pub := publisher.New(sink, "memory", nil)
	require.NoError(t, pub.Connect(context.Background(), queue.Target{Host: "h", Port: 1, Queue: "tweets"}))

	heart := heartbeat.New()
	l := New(client, pub, heart, nil)

	err := l.Start(context.Background(), track.NewCriteria(track.ModeUsers, []string{"42"}))
	assert.ErrorIs(t, err, feed.ErrStreamClosed)

	assert.Equal(t, client.Events, sink.Payloads())
	require.Len(t, client.Sessions(), 1)
	assert.Equal(t, []string{"42"}, client.Sessions()[0].Targets())
	assert.Equal(t, uint64(3), heart.Events())
	assert.Equal(t, heartbeat.StateRunning, heart.State())
}

func TestListener_HeartbeatMonotonicBeforeEachPut(t *testing.T) {
	events := make([]string, 20)
	for i := range events {
		events[i] = fmt.Sprintf(`{"id_str":"%d","text":%q}`, i, gofakeit.Sentence(6))
	}

	heart := heartbeat.New()
	start := heart.LastAlive()
	out := &recordingPutter{heart: heart}
	l := New(&feedtest.Client{Events: events}, out, heart, nil)

	_ = l.Start(context.Background(), track.NewCriteria(track.ModeUsers, []string{"42"}))

	require.Len(t, out.records, len(events))
	prev := start
	for i, rec := range out.records {
		assert.Equal(t, fmt.Sprint(i), rec.ID(), "events must arrive in order")
		assert.False(t, out.lastAlives[i].Before(prev), "last-alive moved backwards at %d", i)
		prev = out.lastAlives[i]
	}
}

func TestListener_WordsModeOpensNoSession(t *testing.T) {
	client := &feedtest.Client{Events: []string{`{"id_str":"1"}`}}
	l := New(client, &recordingPutter{}, heartbeat.New(), nil)

	err := l.Start(context.Background(), track.NewCriteria(track.ModeWords, []string{"golang"}))

	assert.ErrorIs(t, err, track.ErrUnsupportedMode)
	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm), "unsupported mode must not be retried")
	assert.Empty(t, client.Sessions())
}

func TestListener_UnknownModeIsPermanent(t *testing.T) {
	client := &feedtest.Client{}
	l := New(client, &recordingPutter{}, heartbeat.New(), nil)

	err := l.Start(context.Background(), track.NewCriteria(track.Mode("hashtags"), []string{"x"}))

	assert.ErrorIs(t, err, track.ErrUnknownMode)
	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm))
	assert.Empty(t, client.Sessions())
}

func TestListener_NoTargets(t *testing.T) {
	client := &feedtest.Client{}
	l := New(client, &recordingPutter{}, heartbeat.New(), nil)

	err := l.Start(context.Background(), track.NewCriteria(track.ModeUsers, nil))
	assert.ErrorIs(t, err, track.ErrNoTargets)
	assert.Empty(t, client.Sessions())
}

func TestListener_DecodeErrorEndsSession(t *testing.T) {
	client := &feedtest.Client{Events: []string{`{"id_str":"1"}`, `{not json`, `{"id_str":"3"}`}}
	heart := heartbeat.New()
	out := &recordingPutter{heart: heart}
	l := New(client, out, heart, nil)

	err := l.Start(context.Background(), track.NewCriteria(track.ModeUsers, []string{"42"}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode event")
	assert.Len(t, out.records, 1)
}

func TestListener_PutErrorEndsSession(t *testing.T) {
	boom := errors.New("queue full")
	heart := heartbeat.New()
	l := New(&feedtest.Client{Events: []string{`{"id_str":"1"}`}}, &recordingPutter{heart: heart, err: boom}, heart, nil)

	err := l.Start(context.Background(), track.NewCriteria(track.ModeUsers, []string{"42"}))
	assert.ErrorIs(t, err, boom)
}

func TestListener_FeedErrorsAreAbsorbed(t *testing.T) {
	client := &feedtest.Client{
		Statuses: []feed.Status{{Kind: "limit", Message: "5 undelivered events"}, {Kind: "http", Code: 420}},
		Events:   []string{`{"id_str":"1"}`},
	}
	heart := heartbeat.New()
	out := &recordingPutter{heart: heart}
	l := New(client, out, heart, nil)

	err := l.Start(context.Background(), track.NewCriteria(track.ModeUsers, []string{"42"}))

	assert.ErrorIs(t, err, feed.ErrStreamClosed)
	assert.Len(t, out.records, 1)
}
