// Package track defines what the streamer listens for: a stream mode plus the
// ordered list of targets, supplied by a pluggable Provider.
package track

import (
	"context"
	"errors"
	"fmt"
)

// Mode selects how targets are interpreted by the feed.
type Mode string

const (
	// ModeUsers follows the accounts whose ids are listed as targets.
	ModeUsers Mode = "users"
	// ModeWords tracks keywords. It is no longer supported by the listener.
	ModeWords Mode = "words"
)

var (
	// ErrUnknownMode is a configuration error for a mode that is neither users nor words.
	ErrUnknownMode = errors.New("unrecognized stream type")

	// ErrUnsupportedMode is returned for the words mode. It is never retried.
	ErrUnsupportedMode = errors.New("the words stream type is no longer supported")

	// ErrNoTargets is returned when a provider yields an empty target list.
	ErrNoTargets = errors.New("track provider returned no targets")
)

// ParseMode validates a configured stream type.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUsers, ModeWords:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Provider supplies track criteria. Implementations that hold connections
// also implement io.Closer.
type Provider interface {
	// Type returns the stream mode.
	Type() Mode

	// Items returns the ordered track targets.
	Items(ctx context.Context) ([]string, error)
}

// Criteria is the filter for one listener session.
type Criteria struct {
	mode    Mode
	targets []string
}

// NewCriteria copies targets into an immutable Criteria.
func NewCriteria(mode Mode, targets []string) Criteria {
	t := make([]string, len(targets))
	copy(t, targets)
	return Criteria{mode: mode, targets: t}
}

// Mode returns the stream mode.
func (c Criteria) Mode() Mode { return c.mode }

// Targets returns a copy of the targets.
func (c Criteria) Targets() []string {
	t := make([]string, len(c.targets))
	copy(t, c.targets)
	return t
}

// Len returns the number of targets.
func (c Criteria) Len() int { return len(c.targets) }

// Resolve asks p for its type and items.
func Resolve(ctx context.Context, p Provider) (Criteria, error) {
	mode := p.Type()
	items, err := p.Items(ctx)
	if err != nil {
		return Criteria{}, fmt.Errorf("fetch track items: %w", err)
	}
	if len(items) == 0 {
		return Criteria{}, ErrNoTargets
	}
	return NewCriteria(mode, items), nil
}
