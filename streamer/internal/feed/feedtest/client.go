package feedtest

import (
	"context"
	"sync"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// Client replays a fixed script on every Stream call: OnConnect, then each
// status, then each event. Afterwards it returns End, or blocks until ctx
// is done when Hold is set.
type Client struct {
	Events   []string
	Statuses []feed.Status
	End      error
	Hold     bool
	Account  string

	mu       sync.Mutex
	criteria []track.Criteria
}

// Stream implements feed.Client.
func (c *Client) Stream(ctx context.Context, criteria track.Criteria, h feed.Handler) error {
	c.mu.Lock()
	c.criteria = append(c.criteria, criteria)
	c.mu.Unlock()

	h.OnConnect()
	for _, st := range c.Statuses {
		h.OnError(st)
	}
	for _, ev := range c.Events {
		if err := h.OnEvent(ctx, []byte(ev)); err != nil {
			return err
		}
	}

	if c.Hold {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.End != nil {
		return c.End
	}
	return feed.ErrStreamClosed
}

// VerifyCredentials implements feed.Client.
func (c *Client) VerifyCredentials(context.Context) (string, error) {
	if c.Account == "" {
		return "", feed.ErrUnauthorized
	}
	return c.Account, nil
}

// Sessions returns the criteria of every Stream call.
func (c *Client) Sessions() []track.Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]track.Criteria(nil), c.criteria...)
}
