// Package nats implements the messaging interfaces on NATS and JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/telhawk-stream/common/messaging"
)

// Config describes one NATS connection.
type Config struct {
	URL      string
	Name     string
	User     string
	Password string

	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int // -1 retries forever

	// Logger receives connection state changes. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the connection settings used by the streamer.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Name:           "telhawk-streamer",
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
	}
}

// URL formats a nats:// URL from host and port.
func URL(host string, port int) string {
	return "nats://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func (c Config) options(logger *slog.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.Timeout(c.ConnectTimeout),
		nats.ReconnectWait(c.ReconnectWait),
		nats.MaxReconnects(c.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", slog.String("url", nc.ConnectedUrlRedacted()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("NATS async error", slog.String("error", err.Error()))
		}),
	}
	if c.User != "" {
		opts = append(opts, nats.UserInfo(c.User, c.Password))
	}
	return opts
}

// Client implements messaging.Client over a core NATS connection.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient dials the server described by cfg.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "nats"))

	conn, err := nats.Connect(cfg.URL, cfg.options(logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return &Client{conn: conn, logger: logger}, nil
}

// PublishMsg implements messaging.Publisher without waiting for an ack.
func (c *Client) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.PublishMsg(toNATS(msg))
}

// Close drops the connection without flushing.
func (c *Client) Close() error {
	c.conn.Close()
	return nil
}

// Drain flushes pending publishes, then closes.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// IsConnected implements messaging.Client.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// RTT implements messaging.Client.
func (c *Client) RTT() (time.Duration, error) {
	return c.conn.RTT()
}

func toNATS(msg *messaging.Message) *nats.Msg {
	out := nats.NewMsg(msg.Subject)
	out.Data = msg.Data
	for k, v := range msg.Metadata {
		out.Header.Set(k, v)
	}
	return out
}
