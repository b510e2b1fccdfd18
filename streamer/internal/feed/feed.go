// Package feed defines the contract between the listener and an upstream
// real-time event feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

var (
	// ErrConnectionDropped is returned when reading from an established
	// session fails.
	ErrConnectionDropped = errors.New("feed connection dropped")

	// ErrStreamClosed is returned when the upstream ends the session cleanly.
	ErrStreamClosed = errors.New("feed stream closed by upstream")

	// ErrDisconnected is returned after the upstream sent a disconnect notice.
	ErrDisconnected = errors.New("feed disconnected by upstream")

	// ErrUnauthorized is returned when the upstream rejects the credentials.
	ErrUnauthorized = errors.New("feed rejected credentials")

	// ErrGaveUp is returned when the reconnect backoff is exhausted.
	ErrGaveUp = errors.New("feed reconnect attempts exhausted")
)

// Handler receives callbacks from a running feed session. OnEvent is called
// synchronously in receive order; a non-nil error ends the session.
type Handler interface {
	OnConnect()
	OnEvent(ctx context.Context, raw []byte) error
	OnError(status Status)
}

// Client opens feed sessions.
type Client interface {
	// Stream blocks until the session ends, ctx is cancelled or the handler
	// fails.
	Stream(ctx context.Context, criteria track.Criteria, h Handler) error

	// VerifyCredentials returns the account name the credentials belong to.
	VerifyCredentials(ctx context.Context) (string, error)
}

// Status describes a non-event message or connection failure.
type Status struct {
	Kind    string // http, connect, disconnect, limit, warning, error
	Code    int
	Message string
}

func (s Status) String() string {
	if s.Code != 0 {
		return fmt.Sprintf("%s %d: %s", s.Kind, s.Code, s.Message)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// ApplyCredentials sets the auth headers every backend sends.
func ApplyCredentials(h http.Header, creds config.CredentialsConfig, userAgent string) {
	h.Set("Authorization", "Bearer "+creds.AccessToken)
	h.Set("X-Consumer-Key", creds.ConsumerKey)
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
}

// TargetParam returns the request parameter a mode filters on.
func TargetParam(mode track.Mode) string {
	if mode == track.ModeWords {
		return "track"
	}
	return "follow"
}

// NewBackOff returns the in-session reconnect policy: 5s doubling up to 320s,
// never giving up on its own.
func NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 320 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return b
}

// Pause sleeps for the next backoff interval or until ctx is done.
func Pause(ctx context.Context, b backoff.BackOff) error {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return ErrGaveUp
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsAuthStatus reports whether an HTTP status means the credentials are bad.
func IsAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
