package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned by Probe when the client has no live connection.
var ErrNotConnected = errors.New("not connected to message broker")

// Probe measures one round trip to the broker.
func Probe(ctx context.Context, client Client) (time.Duration, error) {
	if client == nil || !client.IsConnected() {
		return 0, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rtt, err := client.RTT()
	if err != nil {
		return 0, fmt.Errorf("broker round trip: %w", err)
	}
	return rtt, nil
}
