// Package database holds the deadlines shared by the track stores.
package database

import (
	"context"
	"time"
)

const (
	// DefaultConnectTimeout bounds opening a store and its first ping.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultQueryTimeout bounds a single track lookup.
	DefaultQueryTimeout = 5 * time.Second
)

// ConnectContext creates a context with DefaultConnectTimeout.
func ConnectContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultConnectTimeout)
}

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}
