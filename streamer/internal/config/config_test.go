package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Run from an empty directory so no streamer.yaml is picked up
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Feed.Backend != "http" {
		t.Errorf("Feed.Backend = %q, want %q", cfg.Feed.Backend, "http")
	}
	if cfg.Feed.MaxEventSize != 1048576 {
		t.Errorf("Feed.MaxEventSize = %d, want 1048576", cfg.Feed.MaxEventSize)
	}
	if cfg.Queue.Backend != "jetstream" {
		t.Errorf("Queue.Backend = %q, want %q", cfg.Queue.Backend, "jetstream")
	}
	if cfg.Queue.Port != 4222 {
		t.Errorf("Queue.Port = %d, want 4222", cfg.Queue.Port)
	}
	if cfg.Track.Provider != "config" {
		t.Errorf("Track.Provider = %q, want %q", cfg.Track.Provider, "config")
	}
	if cfg.Watchdog.PollInterval != 5*time.Second {
		t.Errorf("Watchdog.PollInterval = %v, want 5s", cfg.Watchdog.PollInterval)
	}
	if cfg.Watchdog.StallThreshold != 90*time.Second {
		t.Errorf("Watchdog.StallThreshold = %v, want 90s", cfg.Watchdog.StallThreshold)
	}
	if cfg.Restart.MaxBackoff != 5*time.Minute {
		t.Errorf("Restart.MaxBackoff = %v, want 5m", cfg.Restart.MaxBackoff)
	}
	if cfg.Restart.Enabled {
		t.Error("Restart.Enabled should be false by default")
	}
	if cfg.Logging.Level != "notice" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "notice")
	}
	if cfg.Logging.Output != "-" {
		t.Errorf("Logging.Output = %q, want %q", cfg.Logging.Output, "-")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamer.yaml")
	content := `
feed:
  backend: websocket
  url: wss://feed.example.com/stream
  credentials:
    consumer_key: ck
    access_token: at
queue:
  backend: redis
  host: redis.internal
  port: 6380
  tube: politicians
track:
  provider: config
  type: users
  items: ["42", "7"]
watchdog:
  poll_interval: 2s
  stall_threshold: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "websocket", cfg.Feed.Backend)
	assert.Equal(t, "ck", cfg.Feed.Credentials.ConsumerKey)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, 6380, cfg.Queue.Port)
	assert.Equal(t, "politicians", cfg.Queue.Tube)
	assert.Equal(t, []string{"42", "7"}, cfg.Track.Items)
	assert.Equal(t, 2*time.Second, cfg.Watchdog.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.Watchdog.StallThreshold)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Watchdog.KillGrace)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STREAMER_FEED_CREDENTIALS_ACCESS_TOKEN", "from-env")
	t.Setenv("STREAMER_QUEUE_TUBE", "env-tube")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Feed.Credentials.AccessToken)
	assert.Equal(t, "env-tube", cfg.Queue.Tube)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), "feed.credentials.consumer_key")
	assert.Contains(t, err.Error(), "feed.credentials.access_token")

	cfg.Feed.Credentials.ConsumerKey = "ck"
	cfg.Feed.Credentials.AccessToken = "at"
	require.NoError(t, cfg.Validate())

	cfg.Watchdog.StallThreshold = cfg.Watchdog.PollInterval
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stall_threshold")

	cfg.Watchdog.StallThreshold = time.Minute
	for _, grace := range []time.Duration{0, -time.Second} {
		cfg.Watchdog.KillGrace = grace
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "watchdog.kill_grace")
	}

	cfg.Watchdog.KillGrace = 10 * time.Second
	require.NoError(t, cfg.Validate())

	cfg.Queue.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateCredentials(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), ErrMissingKey.Error()))

	cfg.Feed.Credentials = CredentialsConfig{ConsumerKey: "ck", AccessToken: "at"}
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestRedacted(t *testing.T) {
	cfg := &Config{}
	cfg.Feed.Credentials = CredentialsConfig{ConsumerKey: "consumer-key", AccessToken: "abc"}
	cfg.Queue.Password = "hunter22"
	cfg.Track.Items = []string{"1"}

	r := cfg.Redacted()
	assert.Equal(t, "cons********", r.Feed.Credentials.ConsumerKey)
	assert.Equal(t, "****", r.Feed.Credentials.AccessToken)
	assert.Equal(t, "hunt********", r.Queue.Password)
	assert.Empty(t, r.Track.Postgres.DSN)

	// original untouched
	assert.Equal(t, "consumer-key", cfg.Feed.Credentials.ConsumerKey)
	r.Track.Items[0] = "changed"
	assert.Equal(t, "1", cfg.Track.Items[0])
}
