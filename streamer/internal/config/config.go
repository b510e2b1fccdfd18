package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingKey marks a required configuration key that has no value.
var ErrMissingKey = errors.New("missing required configuration key")

type Config struct {
	Feed      FeedConfig      `mapstructure:"feed" yaml:"feed"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Track     TrackConfig     `mapstructure:"track" yaml:"track"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" yaml:"heartbeat"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog" yaml:"watchdog"`
	Restart   RestartConfig   `mapstructure:"restart" yaml:"restart"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// FeedConfig selects the upstream feed client and its credentials.
type FeedConfig struct {
	Backend        string            `mapstructure:"backend" yaml:"backend"` // "http" or "websocket"
	URL            string            `mapstructure:"url" yaml:"url"`
	VerifyURL      string            `mapstructure:"verify_url" yaml:"verify_url"`
	UserAgent      string            `mapstructure:"user_agent" yaml:"user_agent"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	MaxEventSize   int               `mapstructure:"max_event_size" yaml:"max_event_size"`
	Credentials    CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
}

type CredentialsConfig struct {
	ConsumerKey string `mapstructure:"consumer_key" yaml:"consumer_key"`
	AccessToken string `mapstructure:"access_token" yaml:"access_token"`
}

// QueueConfig selects the downstream sink.
type QueueConfig struct {
	Backend        string        `mapstructure:"backend" yaml:"backend"` // "jetstream", "redis" or "kafka"
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Tube           string        `mapstructure:"tube" yaml:"tube"`
	Stream         string        `mapstructure:"stream" yaml:"stream"` // jetstream only
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password"`
	DB             int           `mapstructure:"db" yaml:"db"` // redis only
	PublishTimeout time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
}

// TrackConfig selects the track provider.
type TrackConfig struct {
	Provider string         `mapstructure:"provider" yaml:"provider"` // "config", "postgres" or "redis"
	Type     string         `mapstructure:"type" yaml:"type"`
	Items    []string       `mapstructure:"items" yaml:"items"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"dsn"`
	Query string `mapstructure:"query" yaml:"query"`
}

type RedisConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	Key string `mapstructure:"key" yaml:"key"`
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type WatchdogConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StallThreshold time.Duration `mapstructure:"stall_threshold" yaml:"stall_threshold"`
	KillGrace      time.Duration `mapstructure:"kill_grace" yaml:"kill_grace"`
}

type RestartConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier" yaml:"multiplier"`
	MaxRestarts    int           `mapstructure:"max_restarts" yaml:"max_restarts"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("feed.backend", "http")
	v.SetDefault("feed.url", "https://stream.example.com/1.1/statuses/filter.json")
	v.SetDefault("feed.verify_url", "https://api.example.com/1.1/account/verify_credentials.json")
	v.SetDefault("feed.user_agent", "telhawk-streamer/1.0")
	v.SetDefault("feed.connect_timeout", "30s")
	v.SetDefault("feed.max_event_size", 1048576)
	v.SetDefault("queue.backend", "jetstream")
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 4222)
	v.SetDefault("queue.tube", "tweets")
	v.SetDefault("queue.stream", "TWEETS")
	v.SetDefault("queue.publish_timeout", "5s")
	v.SetDefault("track.provider", "config")
	v.SetDefault("track.type", "users")
	v.SetDefault("track.postgres.query", "SELECT target_id FROM track_targets WHERE active ORDER BY target_id")
	v.SetDefault("track.redis.url", "redis://localhost:6379/0")
	v.SetDefault("track.redis.key", "streamer:track:users")
	v.SetDefault("heartbeat.interval", "30s")
	v.SetDefault("watchdog.poll_interval", "5s")
	v.SetDefault("watchdog.stall_threshold", "90s")
	v.SetDefault("watchdog.kill_grace", "10s")
	v.SetDefault("restart.enabled", false)
	v.SetDefault("restart.initial_backoff", "1s")
	v.SetDefault("restart.max_backoff", "5m")
	v.SetDefault("restart.multiplier", 2.0)
	v.SetDefault("restart.max_restarts", 0)
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.level", "notice")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "-")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("streamer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/streamer")
	}

	// Environment variables override, e.g. STREAMER_FEED_CREDENTIALS_ACCESS_TOKEN
	v.SetEnvPrefix("STREAMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env values for keys viper already knows about
	for _, key := range []string{
		"feed.credentials.consumer_key",
		"feed.credentials.access_token",
		"queue.username",
		"queue.password",
		"track.postgres.dsn",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingKey, key))
		}
	}

	require("feed.credentials.consumer_key", c.Feed.Credentials.ConsumerKey)
	require("feed.credentials.access_token", c.Feed.Credentials.AccessToken)
	require("feed.url", c.Feed.URL)
	require("queue.host", c.Queue.Host)
	require("queue.tube", c.Queue.Tube)
	require("track.provider", c.Track.Provider)
	require("track.type", c.Track.Type)

	if c.Queue.Port <= 0 || c.Queue.Port > 65535 {
		errs = append(errs, fmt.Errorf("queue.port: invalid port %d", c.Queue.Port))
	}
	if c.Watchdog.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("watchdog.poll_interval must be positive"))
	}
	if c.Watchdog.StallThreshold <= c.Watchdog.PollInterval {
		errs = append(errs, fmt.Errorf("watchdog.stall_threshold (%s) must exceed watchdog.poll_interval (%s)",
			c.Watchdog.StallThreshold, c.Watchdog.PollInterval))
	}
	if c.Watchdog.KillGrace <= 0 {
		errs = append(errs, fmt.Errorf("watchdog.kill_grace must be positive"))
	}
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.interval must be positive"))
	}
	if c.Restart.MaxBackoff < c.Restart.InitialBackoff {
		errs = append(errs, fmt.Errorf("restart.max_backoff must be >= restart.initial_backoff"))
	}

	return errors.Join(errs...)
}

// ValidateCredentials checks only what the auth test needs.
func (c *Config) ValidateCredentials() error {
	var errs []error
	if c.Feed.Credentials.ConsumerKey == "" {
		errs = append(errs, fmt.Errorf("%w: feed.credentials.consumer_key", ErrMissingKey))
	}
	if c.Feed.Credentials.AccessToken == "" {
		errs = append(errs, fmt.Errorf("%w: feed.credentials.access_token", ErrMissingKey))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for printing and debug logs.
func (c *Config) Redacted() *Config {
	out := *c
	out.Track.Items = append([]string(nil), c.Track.Items...)
	out.Feed.Credentials.ConsumerKey = Mask(c.Feed.Credentials.ConsumerKey)
	out.Feed.Credentials.AccessToken = Mask(c.Feed.Credentials.AccessToken)
	out.Queue.Password = Mask(c.Queue.Password)
	out.Track.Postgres.DSN = Mask(c.Track.Postgres.DSN)
	return &out
}

// Mask keeps the first four characters of a secret.
func Mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 4:
		return "****"
	default:
		return secret[:4] + strings.Repeat("*", 8)
	}
}
