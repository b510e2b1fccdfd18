// Package supervisor runs the pipeline entry in a loop, restarting it after
// failures, stalls and reload requests.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/heartbeat"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
)

// ExitStalled is the process exit code after a hard kill.
const ExitStalled = 3

var (
	// ErrRestartLimit is returned once restart.max_restarts consecutive
	// restarts made no progress.
	ErrRestartLimit = errors.New("restart limit reached")

	// ErrKilled is returned when a session was abandoned after the kill grace.
	ErrKilled = errors.New("session killed after kill grace")

	errReload    = errors.New("reload requested")
	errInterrupt = errors.New("interrupted")
)

// Entry is the pipeline body. It must return once ctx is done.
type Entry func(ctx context.Context, sess *Session) error

// Config holds the supervision timings.
type Config struct {
	AutoRestart       bool
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	StallThreshold    time.Duration
	KillGrace         time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Multiplier        float64
	MaxRestarts       int
}

// ConfigFrom extracts the supervision settings from the loaded config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		AutoRestart:       cfg.Restart.Enabled,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		PollInterval:      cfg.Watchdog.PollInterval,
		StallThreshold:    cfg.Watchdog.StallThreshold,
		KillGrace:         cfg.Watchdog.KillGrace,
		InitialBackoff:    cfg.Restart.InitialBackoff,
		MaxBackoff:        cfg.Restart.MaxBackoff,
		Multiplier:        cfg.Restart.Multiplier,
		MaxRestarts:       cfg.Restart.MaxRestarts,
	}
}

// Supervisor owns the restart loop and the current session.
type Supervisor struct {
	cfg        Config
	logger     *slog.Logger
	reload     <-chan os.Signal
	exit       func(code int)
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	current *Session
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithReload restarts the session whenever a value arrives on ch.
func WithReload(ch <-chan os.Signal) Option {
	return func(s *Supervisor) { s.reload = ch }
}

// WithExit replaces os.Exit for the hard-kill path.
func WithExit(fn func(code int)) Option {
	return func(s *Supervisor) { s.exit = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithBackOff replaces the restart policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *Supervisor) { s.newBackOff = fn }
}

// New creates a Supervisor.
func New(cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		logger: slog.Default(),
		exit:   os.Exit,
	}
	s.newBackOff = s.defaultBackOff
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialBackoff > 0 {
		b.InitialInterval = s.cfg.InitialBackoff
	}
	if s.cfg.MaxBackoff > 0 {
		b.MaxInterval = s.cfg.MaxBackoff
	}
	if s.cfg.Multiplier >= 1 {
		b.Multiplier = s.cfg.Multiplier
	}
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Current returns the running session, or nil between sessions.
func (s *Supervisor) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Supervisor) setCurrent(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}

// Run executes entry until ctx is cancelled (returns nil), a permanent error
// occurs, or a session ends while auto-restart is disabled. Stalls and reloads
// restart regardless of AutoRestart.
func (s *Supervisor) Run(ctx context.Context, entry Entry) error {
	b := s.newBackOff()
	failures := 0

	for attempt := 1; ; attempt++ {
		sess := NewSession(attempt, s.logger)
		s.setCurrent(sess)

		err := s.runSession(ctx, sess, entry)
		s.setCurrent(nil)

		switch {
		case errors.Is(err, errInterrupt):
			logging.Notice(s.logger, "shutting down")
			return nil

		case errors.Is(err, errReload):
			metrics.Restarts.WithLabelValues(metrics.ReasonReload).Inc()
			logging.Notice(sess.Logger, "reload requested, restarting pipeline")
			b.Reset()
			failures = 0
			continue

		case errors.Is(err, ErrKilled):
			return err
		}

		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			sess.Logger.Log(ctx, logging.LevelCritical, "pipeline failed permanently", logging.Error(perm.Err))
			return perm.Err
		}

		if !s.cfg.AutoRestart && !errors.Is(err, heartbeat.ErrStalled) {
			if err != nil {
				sess.Logger.Error("pipeline stopped", logging.Error(err))
			}
			return err
		}

		if sess.Heart.Events() > 0 {
			b.Reset()
			failures = 0
		}
		failures++
		if s.cfg.MaxRestarts > 0 && failures > s.cfg.MaxRestarts {
			return fmt.Errorf("%w after %d consecutive failures: %v", ErrRestartLimit, s.cfg.MaxRestarts, err)
		}

		reason := restartReason(err)
		metrics.Restarts.WithLabelValues(reason).Inc()

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: backoff exhausted: %v", ErrRestartLimit, err)
		}
		metrics.RestartBackoff.Set(wait.Seconds())

		attrs := []any{slog.String("reason", reason), slog.Duration("backoff", wait)}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		sess.Logger.Log(ctx, logging.LevelNotice, "restarting pipeline", attrs...)

		if !s.pause(ctx, wait) {
			logging.Notice(s.logger, "shutting down")
			return nil
		}
	}
}

// pause waits for d. A reload cuts the wait short; cancellation returns false.
func (s *Supervisor) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.reload:
		logging.Notice(s.logger, "reload requested, skipping backoff")
		return true
	case <-t.C:
		return true
	}
}

// runSession runs one session with its monitor and watchdog. It returns the
// entry's error, a *heartbeat.StallError, errReload, errInterrupt or ErrKilled.
func (s *Supervisor) runSession(ctx context.Context, sess *Session, entry Entry) error {
	sessCtx, cancel := context.WithCancelCause(logging.ContextWithSession(ctx, sess.ID))
	defer cancel(nil)

	sess.Logger.Info("starting pipeline session")

	var wg sync.WaitGroup
	stalled := make(chan error, 1)

	wg.Add(2)
	go func() {
		defer wg.Done()
		heartbeat.NewMonitor(sess.Heart, s.cfg.HeartbeatInterval, sess.Logger).Run(sessCtx)
	}()
	go func() {
		defer wg.Done()
		wd := heartbeat.NewWatchdog(sess.Heart, s.cfg.PollInterval, s.cfg.StallThreshold, sess.Logger)
		if err := wd.Run(sessCtx); err != nil {
			cancel(err)
			stalled <- err
		}
	}()
	defer wg.Wait()
	defer cancel(nil)

	done := make(chan error, 1)
	go func() { done <- entry(sessCtx, sess) }()

	var cause error
	select {
	case err := <-done:
		sess.Heart.SetState(heartbeat.StateTerminating)
		if c := context.Cause(sessCtx); errors.Is(c, heartbeat.ErrStalled) {
			return c
		}
		if ctx.Err() != nil {
			return errInterrupt
		}
		return err

	case cause = <-stalled:
	case <-ctx.Done():
		cause = errInterrupt
	case <-s.reload:
		cause = errReload
	}

	cancel(cause)
	sess.Heart.SetState(heartbeat.StateTerminating)

	t := time.NewTimer(s.cfg.KillGrace)
	defer t.Stop()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			sess.Logger.Debug("session ended after cancellation", logging.Error(err))
		}
		return cause
	case <-t.C:
	}

	sess.runCleanups()
	if errors.Is(cause, errInterrupt) {
		sess.Logger.Warn("session did not stop within kill grace", slog.Duration("kill_grace", s.cfg.KillGrace))
		return cause
	}

	sess.Logger.Log(ctx, logging.LevelCritical, "session did not stop within kill grace, terminating process",
		slog.Duration("kill_grace", s.cfg.KillGrace),
		slog.String("cause", cause.Error()))
	s.exit(ExitStalled)
	return fmt.Errorf("%w: %v", ErrKilled, cause)
}

func restartReason(err error) string {
	switch {
	case errors.Is(err, heartbeat.ErrStalled):
		return metrics.ReasonStall
	case err == nil:
		return metrics.ReasonClosed
	default:
		return metrics.ReasonError
	}
}
