// Package messaging provides abstractions for publishing to a message broker.
// The streamer only produces; consumers of the work queue live elsewhere.
package messaging

import (
	"context"
	"time"
)

// Message represents a message sent to a message broker.
type Message struct {
	// Subject is the topic/channel the message is published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs for message headers.
	Metadata map[string]string

	// Timestamp is when the message was produced.
	Timestamp time.Time
}

// NewMessage builds a Message stamped with the current time. Options add
// headers.
func NewMessage(subject string, data []byte, opts ...PublishOption) *Message {
	o := &publishOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return &Message{
		Subject:   subject,
		Data:      data,
		Metadata:  o.headers,
		Timestamp: time.Now(),
	}
}

// Publisher sends messages to a broker.
type Publisher interface {
	// PublishMsg sends a Message with its headers.
	PublishMsg(ctx context.Context, msg *Message) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Client is a Publisher with connection introspection.
type Client interface {
	Publisher

	// Drain flushes buffered messages, then closes.
	Drain() error

	// IsConnected reports whether the client has a live connection.
	IsConnected() bool

	// RTT measures a round trip to the broker.
	RTT() (time.Duration, error)
}

// PublishOption configures message publishing behavior.
type PublishOption func(*publishOptions)

type publishOptions struct {
	headers map[string]string
}

// WithHeader adds a header to the published message.
func WithHeader(key, value string) PublishOption {
	return func(o *publishOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// Header names set by the streamer.
const (
	HeaderSession = "Streamer-Session"
	HeaderEventID = "Streamer-Event-Id"
)
