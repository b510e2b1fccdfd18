// Package pgtrack reads track targets from a PostgreSQL table.
package pgtrack

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/telhawk-stream/common/database"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNoDSN is returned when the postgres provider is selected without a DSN.
var ErrNoDSN = errors.New("track.postgres.dsn is required")

// Provider runs the configured query on every Items call so edits to the
// table are picked up on the next restart.
type Provider struct {
	pool  *pgxpool.Pool
	mode  track.Mode
	query string
}

// New parses the mode, opens a pool and pings it.
func New(ctx context.Context, cfg config.TrackConfig) (*Provider, error) {
	mode, err := track.ParseMode(cfg.Type)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, ErrNoDSN
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := database.ConnectContext(ctx)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Provider{pool: pool, mode: mode, query: cfg.Postgres.Query}, nil
}

// Type returns the configured mode.
func (p *Provider) Type() track.Mode { return p.mode }

// Items returns the first column of every row, in query order.
func (p *Provider) Items(ctx context.Context) ([]string, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("query track targets: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan track targets: %w", err)
	}
	return items, nil
}

// Close releases the pool.
func (p *Provider) Close() error {
	p.pool.Close()
	return nil
}

// Migrate brings the track_targets schema up to date.
func Migrate(dsn string) (uint, error) {
	if dsn == "" {
		return 0, ErrNoDSN
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return version, nil
}
