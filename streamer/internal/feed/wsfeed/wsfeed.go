// Package wsfeed is the feed client for upstreams that push events over a
// WebSocket, one JSON object per text message.
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// subscribe is the first frame sent after the handshake.
type subscribe struct {
	Type    string   `json:"type"`
	Mode    string   `json:"mode"`
	Targets []string `json:"targets"`
}

// Client dials the configured ws:// or wss:// URL.
type Client struct {
	cfg        config.FeedConfig
	dialer     *websocket.Dialer
	hc         *http.Client
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBackOff replaces the reconnect policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// WithHTTPClient sets the client used for credential verification.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client.
func New(cfg config.FeedConfig, opts ...Option) *Client {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		hc:         &http.Client{Timeout: timeout},
		newBackOff: feed.NewBackOff,
		logger:     slog.Default().With(slog.String("component", "wsfeed")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyCredentials implements feed.Client.
func (c *Client) VerifyCredentials(ctx context.Context) (string, error) {
	return feed.VerifyHTTP(ctx, c.hc, c.cfg)
}

// Stream implements feed.Client.
func (c *Client) Stream(ctx context.Context, criteria track.Criteria, h feed.Handler) error {
	b := c.newBackOff()

	for {
		header := http.Header{}
		feed.ApplyCredentials(header, c.cfg.Credentials, c.cfg.UserAgent)

		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			st := feed.Status{Kind: "connect", Message: err.Error()}
			if resp != nil {
				st = feed.Status{Kind: "http", Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
				resp.Body.Close()
			}
			h.OnError(st)

			if resp != nil && feed.IsAuthStatus(resp.StatusCode) {
				return fmt.Errorf("%w: %s", feed.ErrUnauthorized, st)
			}
			c.logger.Log(ctx, logging.LevelNotice, "reconnecting to feed", slog.String("reason", st.String()))
			if err := feed.Pause(ctx, b); err != nil {
				return err
			}
			continue
		}

		return c.session(ctx, conn, criteria, h)
	}
}

func (c *Client) session(ctx context.Context, conn *websocket.Conn, criteria track.Criteria, h feed.Handler) error {
	defer conn.Close()

	if c.cfg.MaxEventSize > 0 {
		conn.SetReadLimit(int64(c.cfg.MaxEventSize))
	}

	sub := subscribe{Type: "subscribe", Mode: string(criteria.Mode()), Targets: criteria.Targets()}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("%w: subscribe: %v", feed.ErrConnectionDropped, err)
	}

	h.OnConnect()

	// ReadMessage does not observe ctx; closing the conn unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return feed.ErrStreamClosed
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return fmt.Errorf("%w: event exceeds %d bytes", feed.ErrConnectionDropped, c.cfg.MaxEventSize)
			}
			return fmt.Errorf("%w: %v", feed.ErrConnectionDropped, err)
		}
		if msgType != websocket.TextMessage || len(msg) == 0 {
			continue
		}

		if st, ok := feed.ParseNotice(msg); ok {
			h.OnError(st)
			if st.Kind == "disconnect" {
				return fmt.Errorf("%w: %s", feed.ErrDisconnected, st)
			}
			continue
		}

		if err := h.OnEvent(ctx, msg); err != nil {
			return err
		}
	}
}
