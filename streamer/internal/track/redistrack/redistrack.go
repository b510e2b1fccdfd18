// Package redistrack reads track targets from a Redis key.
package redistrack

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/telhawk-stream/common/database"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// Provider reads a list (kept in order) or a set (sorted) from Redis.
type Provider struct {
	client *redis.Client
	mode   track.Mode
	key    string
}

// New parses the mode, connects and pings Redis.
func New(ctx context.Context, cfg config.TrackConfig) (*Provider, error) {
	mode, err := track.ParseMode(cfg.Type)
	if err != nil {
		return nil, err
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := database.ConnectContext(ctx)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewWithClient(client, mode, cfg.Redis.Key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, mode track.Mode, key string) *Provider {
	return &Provider{client: client, mode: mode, key: key}
}

// Type returns the configured mode.
func (p *Provider) Type() track.Mode { return p.mode }

// Items returns the members stored under the key. A missing key yields an
// empty slice.
func (p *Provider) Items(ctx context.Context) ([]string, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	kind, err := p.client.Type(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis type %s: %w", p.key, err)
	}

	switch kind {
	case "none":
		return []string{}, nil
	case "list":
		items, err := p.client.LRange(ctx, p.key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lrange %s: %w", p.key, err)
		}
		return items, nil
	case "set":
		items, err := p.client.SMembers(ctx, p.key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis smembers %s: %w", p.key, err)
		}
		sort.Strings(items)
		return items, nil
	default:
		return nil, fmt.Errorf("redis key %s has unsupported type %q", p.key, kind)
	}
}

// Close closes the client.
func (p *Provider) Close() error {
	return p.client.Close()
}
