//go:build integration

package pgtrack

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track"
)

// setupTestDatabase starts PostgreSQL, applies migrations and returns its DSN.
func setupTestDatabase(t *testing.T) string {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("streamer_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	version, err := Migrate(dsn)
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if version != 1 {
		t.Fatalf("migration version = %d, want 1", version)
	}
	return dsn
}

func TestProvider_Items(t *testing.T) {
	ctx := context.Background()
	dsn := setupTestDatabase(t)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `INSERT INTO track_targets (target_id, active) VALUES
		('300', TRUE), ('100', TRUE), ('200', FALSE), ('150', TRUE)`)
	require.NoError(t, err)

	p, err := New(ctx, config.TrackConfig{
		Type: "users",
		Postgres: config.PostgresConfig{
			DSN:   dsn,
			Query: "SELECT target_id FROM track_targets WHERE active ORDER BY target_id",
		},
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, track.ModeUsers, p.Type())

	items, err := p.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "150", "300"}, items)

	crit, err := track.Resolve(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 3, crit.Len())
}

func TestProvider_EmptyTable(t *testing.T) {
	ctx := context.Background()
	dsn := setupTestDatabase(t)

	p, err := New(ctx, config.TrackConfig{
		Type:     "users",
		Postgres: config.PostgresConfig{DSN: dsn, Query: "SELECT target_id FROM track_targets"},
	})
	require.NoError(t, err)
	defer p.Close()

	_, err = track.Resolve(ctx, p)
	assert.ErrorIs(t, err, track.ErrNoTargets)
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := setupTestDatabase(t)

	version, err := Migrate(dsn)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
