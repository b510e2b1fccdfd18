package track

import (
	"context"
	"fmt"
	"strings"
)

// StaticProvider serves criteria straight from configuration.
type StaticProvider struct {
	mode  Mode
	items []string
}

// NewStaticProvider validates mode and trims blank items.
func NewStaticProvider(mode string, items []string) (*StaticProvider, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("static track provider: %w", ErrNoTargets)
	}

	return &StaticProvider{mode: m, items: cleaned}, nil
}

// Type returns the configured mode.
func (p *StaticProvider) Type() Mode { return p.mode }

// Items returns a copy of the configured targets.
func (p *StaticProvider) Items(context.Context) ([]string, error) {
	out := make([]string, len(p.items))
	copy(out, p.items)
	return out, nil
}
