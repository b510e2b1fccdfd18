// Package httpstream is the feed client for long-lived HTTP streams of
// newline-delimited JSON.
package httpstream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// Client opens POST streaming sessions against the configured URL.
type Client struct {
	cfg        config.FeedConfig
	hc         *http.Client
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithBackOff replaces the reconnect policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. The connect timeout bounds dialing and waiting for
// response headers but never the stream itself.
func New(cfg config.FeedConfig, opts ...Option) *Client {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cfg: cfg,
		hc: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
			},
		},
		newBackOff: feed.NewBackOff,
		logger:     slog.Default().With(slog.String("component", "httpstream")),
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

// Stream implements feed.Client. Non-200 responses are reported to h and
// retried with backoff; 401 and 403 end the session.
func (c *Client) Stream(ctx context.Context, criteria track.Criteria, h feed.Handler) error {
	b := c.newBackOff()

	for {
		resp, err := c.open(ctx, criteria)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.OnError(feed.Status{Kind: "connect", Message: err.Error()})
			if err := feed.Pause(ctx, b); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			st := feed.Status{Kind: "http", Code: resp.StatusCode, Message: readSnippet(resp.Body)}
			resp.Body.Close()
			h.OnError(st)

			if feed.IsAuthStatus(resp.StatusCode) {
				return fmt.Errorf("%w: %s", feed.ErrUnauthorized, st)
			}
			c.logger.Log(ctx, logging.LevelNotice, "reconnecting to feed", logging.Status(resp.StatusCode))
			if err := feed.Pause(ctx, b); err != nil {
				return err
			}
			continue
		}

		h.OnConnect()
		err = c.consume(ctx, resp.Body, h)
		resp.Body.Close()
		return err
	}
}

func (c *Client) open(ctx context.Context, criteria track.Criteria) (*http.Response, error) {
	form := url.Values{}
	form.Set(feed.TargetParam(criteria.Mode()), strings.Join(criteria.Targets(), ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	feed.ApplyCredentials(req.Header, c.cfg.Credentials, c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return resp, nil
}

// consume reads one event per line until the body ends.
func (c *Client) consume(ctx context.Context, body io.Reader, h feed.Handler) error {
	maxSize := c.cfg.MaxEventSize
	if maxSize <= 0 {
		maxSize = 1 << 20
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxSize)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		if st, ok := feed.ParseNotice(line); ok {
			h.OnError(st)
			if st.Kind == "disconnect" {
				return fmt.Errorf("%w: %s", feed.ErrDisconnected, st)
			}
			continue
		}

		raw := make([]byte, len(line))
		copy(raw, line)
		if err := h.OnEvent(ctx, raw); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", feed.ErrConnectionDropped, err)
	}
	return feed.ErrStreamClosed
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
