// Package feedtest provides a recording feed.Handler for backend tests.
package feedtest

import (
	"context"
	"sync"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/feed"
)

// Recorder records every callback. FailOn makes OnEvent fail once the given
// number of events has been seen.
type Recorder struct {
	mu       sync.Mutex
	connects int
	events   []string
	statuses []feed.Status

	FailOn  int
	FailErr error
}

// OnConnect implements feed.Handler.
func (r *Recorder) OnConnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
}

// OnEvent implements feed.Handler.
func (r *Recorder) OnEvent(_ context.Context, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(raw))
	if r.FailOn > 0 && len(r.events) >= r.FailOn {
		return r.FailErr
	}
	return nil
}

// OnError implements feed.Handler.
func (r *Recorder) OnError(st feed.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

// Connects returns the number of OnConnect calls.
func (r *Recorder) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Events returns the raw events received so far.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Statuses returns the statuses received so far.
func (r *Recorder) Statuses() []feed.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]feed.Status(nil), r.statuses...)
}
