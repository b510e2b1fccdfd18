package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/telhawk-stream/common/logging"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/config"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/pipeline"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/server"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/supervisor"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

type options struct {
	configPath string
	logLevel   string
	output     string
	restart    bool
	authTest   bool
}

// app is what every command needs after flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "streamer",
		Short: "Supervised feed-to-queue ingestion pipeline",
		Long: `streamer follows the configured track targets on a real-time feed and
republishes every event onto a work queue. It detects silent feed stalls,
restarts sessions with exponential backoff and reconnects on SIGHUP.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.closer.Close()

			if opts.authTest {
				return runAuthTest(cmd.Context(), a)
			}
			return runStreamer(cmd.Context(), a)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: ./streamer.yaml or /etc/telhawk/streamer/streamer.yaml)")
	flags.StringVar(&opts.logLevel, "loglevel", "", "log level: "+strings.Join(logging.Levels, ", "))
	flags.StringVar(&opts.output, "output", "", `log destination: "-" for stdout, "syslog", or a file path`)
	cmd.Flags().BoolVar(&opts.restart, "restart", false, "restart the pipeline after failures")
	cmd.Flags().BoolVar(&opts.authTest, "authtest", false, "verify feed credentials and exit")

	cmd.AddCommand(newTrackCmd(opts), newConfigCmd(opts))
	return cmd
}

// setup loads configuration, applies flag overrides and installs the logger.
func setup(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logging.Critical(slog.Default(), "failed to load configuration", logging.Error(err))
		return nil, &exitError{code: exitFailure, err: err}
	}

	if f := cmd.Flags().Lookup("loglevel"); f != nil && f.Changed {
		cfg.Logging.Level = opts.logLevel
	}
	if f := cmd.Flags().Lookup("output"); f != nil && f.Changed {
		cfg.Logging.Output = opts.output
	}
	if f := cmd.Flags().Lookup("restart"); f != nil && f.Changed {
		cfg.Restart.Enabled = opts.restart
	}

	if err := logging.ValidateLevel(cfg.Logging.Level); err != nil {
		logging.Critical(slog.Default(), "invalid configuration", logging.Error(err))
		return nil, &exitError{code: exitFailure, err: err}
	}

	w, err := logging.Open(cfg.Logging.Output, "streamer")
	if err != nil {
		logging.Critical(slog.Default(), "failed to open log destination", logging.Error(err))
		return nil, &exitError{code: exitFailure, err: err}
	}

	logger := logging.NewWithWriter(w, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("streamer"))
	logging.SetDefault(logger)

	logger.Debug("loaded credentials",
		slog.String("consumer_key", config.Mask(cfg.Feed.Credentials.ConsumerKey)),
		slog.String("access_token", config.Mask(cfg.Feed.Credentials.AccessToken)))

	return &app{cfg: cfg, logger: logger.Logger, closer: w}, nil
}

// configError logs a configuration failure at critical and maps it to exit 1.
func configError(logger *slog.Logger, msg string, err error) error {
	logging.Critical(logger, msg, logging.Error(err))
	return &exitError{code: exitFailure, err: fmt.Errorf("%s: %w", msg, err)}
}

func runAuthTest(ctx context.Context, a *app) error {
	if err := a.cfg.ValidateCredentials(); err != nil {
		return configError(a.logger, "invalid credentials configuration", err)
	}

	factories := pipeline.DefaultFactories()
	newFeed, ok := factories.Feeds[a.cfg.Feed.Backend]
	if !ok {
		return configError(a.logger, "invalid configuration",
			fmt.Errorf("feed.backend: %w %q", pipeline.ErrUnknownBackend, a.cfg.Feed.Backend))
	}
	client, err := newFeed(a.cfg.Feed, a.logger)
	if err != nil {
		return configError(a.logger, "failed to create feed client", err)
	}

	name, err := client.VerifyCredentials(ctx)
	if err != nil {
		a.logger.Error("authentication test failed", logging.Error(err))
		return &exitError{code: exitFailure, err: err}
	}
	logging.Notice(a.logger, "authenticated", slog.String("account", name))
	return nil
}

func runStreamer(ctx context.Context, a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return configError(a.logger, "invalid configuration", err)
	}

	p, err := pipeline.New(a.cfg, pipeline.DefaultFactories(), a.logger)
	if err != nil {
		return configError(a.logger, "invalid configuration", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	sup := supervisor.New(supervisor.ConfigFrom(a.cfg),
		supervisor.WithReload(hup),
		supervisor.WithLogger(a.logger))

	logging.Notice(a.logger, "starting streamer",
		logging.Provider(a.cfg.Track.Provider),
		logging.Backend(a.cfg.Queue.Backend),
		slog.String("feed", a.cfg.Feed.Backend),
		slog.Bool("auto_restart", a.cfg.Restart.Enabled))

	return serve(ctx, a, sup, p.Run)
}

// serve runs the supervisor and, when configured, the health server until
// the supervisor returns.
func serve(ctx context.Context, a *app, sup *supervisor.Supervisor, entry supervisor.Entry) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return sup.Run(runCtx, entry)
	})
	if addr := a.cfg.Server.Addr; addr != "" {
		router := server.NewRouter(server.NewHandlers(sup), a.logger)
		srv := server.New(addr, router, a.logger)
		g.Go(func() error { return srv.Run(runCtx) })
	}

	err := g.Wait()
	switch {
	case err == nil:
		logging.Notice(a.logger, "streamer stopped")
		return nil
	case errors.Is(err, supervisor.ErrKilled):
		return &exitError{code: supervisor.ExitStalled, err: err}
	default:
		a.logger.Error("streamer stopped", logging.Error(err))
		return &exitError{code: exitFailure, err: err}
	}
}
