package supervisor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/heartbeat"
)

// Session is one run of the pipeline entry. Every restart gets a new one.
type Session struct {
	ID      string
	Attempt int
	Heart   *heartbeat.Heart
	Logger  *slog.Logger

	mu       sync.Mutex
	cleanups []func() error
	ready    func(ctx context.Context) error
}

// NewSession creates a session with a fresh heart and a logger tagged with
// its id and attempt.
func NewSession(attempt int, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		Attempt: attempt,
		Heart:   heartbeat.New(),
		Logger:  logger.With(logging.Session(id), logging.Attempt(attempt)),
	}
}

// Defer registers a best-effort cleanup that the supervisor runs if the
// session has to be killed without returning. Cleanups run in reverse order.
func (s *Session) Defer(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

func (s *Session) runCleanups() {
	s.mu.Lock()
	fns := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			s.Logger.Warn("session cleanup failed", logging.Error(err))
		}
	}
}

// SetReadiness installs the probe used by Ready.
func (s *Session) SetReadiness(fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = fn
}

// Ready reports nil once the session is streaming and its probe passes.
func (s *Session) Ready(ctx context.Context) error {
	if st := s.Heart.State(); st != heartbeat.StateRunning {
		return &NotReadyError{State: st}
	}

	s.mu.Lock()
	probe := s.ready
	s.mu.Unlock()

	if probe == nil {
		return nil
	}
	return probe(ctx)
}

// NotReadyError is returned by Ready before the feed is connected.
type NotReadyError struct {
	State heartbeat.State
}

func (e *NotReadyError) Error() string {
	return "session is " + e.State.String()
}
