// Package queue defines the durable work-queue sinks events are published to.
package queue

import (
	"context"
	"errors"
	"net"
	"strconv"
)

var (
	// ErrNotConnected is returned by Put on a sink without a session.
	ErrNotConnected = errors.New("queue sink is not connected")

	// ErrAlreadyConnected is returned by Connect on a sink with a session.
	ErrAlreadyConnected = errors.New("queue sink is already connected")
)

// Target addresses one named queue on a broker.
type Target struct {
	Host  string
	Port  int
	Queue string
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Item is one serialized event. Key is the event id when known and is used
// for deduplication or partitioning where the backend supports it.
type Item struct {
	Key     string
	Payload []byte
}

// Sink is a connection to a work queue. Put returns only after the broker
// acknowledged the item.
type Sink interface {
	Connect(ctx context.Context, target Target) error
	Put(ctx context.Context, item Item) error
	Disconnect() error
}

// Pinger is implemented by sinks that can check their broker connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
