// Package heartbeat tracks feed liveness for one pipeline session and
// terminates sessions whose feed has gone silent.
package heartbeat

import (
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
)

// State is the lifecycle of a session as seen by the watchdog.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStalled:
		return "STALLED"
	case StateTerminating:
		return "TERMINATING"
	default:
		return "UNKNOWN"
	}
}

// Heart is the liveness record shared by the listener, the monitor and the
// watchdog of one session. Create a new one per session.
type Heart struct {
	mu        sync.Mutex
	now       func() time.Time
	lastAlive time.Time
	state     State
	stalls    int
	events    uint64
	pulses    uint64
}

// Snapshot is a point-in-time copy of a Heart.
type Snapshot struct {
	State     string    `json:"state"`
	LastAlive time.Time `json:"last_alive"`
	Silence   string    `json:"silence"`
	Events    uint64    `json:"events"`
	Pulses    uint64    `json:"pulses"`
	Stalls    int       `json:"consecutive_stalls"`
}

// New returns a Heart in STARTING whose last-alive time is now.
func New() *Heart {
	return NewWithClock(time.Now)
}

// NewWithClock is New with an injectable clock.
func NewWithClock(now func() time.Time) *Heart {
	h := &Heart{now: now, lastAlive: now(), state: StateStarting}
	metrics.SessionState.Set(float64(StateStarting))
	return h
}

// Touch records an accepted event. The last-alive time never moves
// backwards, and the consecutive stall counter resets.
func (h *Heart) Touch() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t := h.now(); t.After(h.lastAlive) {
		h.lastAlive = t
	}
	h.stalls = 0
	h.events++
}

// Pulse counts a monitor tick and returns the running total.
func (h *Heart) Pulse() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pulses++
	return h.pulses
}

// Since returns the time elapsed since the last accepted event.
func (h *Heart) Since() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now().Sub(h.lastAlive)
}

// LastAlive returns the time of the last accepted event.
func (h *Heart) LastAlive() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAlive
}

// RecordStall increments and returns the consecutive stall counter.
func (h *Heart) RecordStall() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stalls++
	return h.stalls
}

// Stalls returns the consecutive stall counter.
func (h *Heart) Stalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stalls
}

// Events returns the number of accepted events.
func (h *Heart) Events() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events
}

// State returns the current lifecycle state.
func (h *Heart) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetState moves the heart to s. TERMINATING is final.
func (h *Heart) SetState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateTerminating {
		return
	}
	h.state = s
	metrics.SessionState.Set(float64(s))
}

// Snapshot copies the current values.
func (h *Heart) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		State:     h.state.String(),
		LastAlive: h.lastAlive,
		Silence:   h.now().Sub(h.lastAlive).Round(time.Millisecond).String(),
		Events:    h.events,
		Pulses:    h.pulses,
		Stalls:    h.stalls,
	}
}
