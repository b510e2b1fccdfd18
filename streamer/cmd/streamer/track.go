package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/pipeline"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/track/pgtrack"
)

type criteriaView struct {
	Provider string   `yaml:"provider"`
	Mode     string   `yaml:"mode"`
	Targets  []string `yaml:"targets"`
}

func newTrackCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Print the track criteria the next session would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.closer.Close()

			p, err := pipeline.New(a.cfg, pipeline.DefaultFactories(), a.logger)
			if err != nil {
				return configError(a.logger, "invalid configuration", err)
			}
			crit, err := p.Criteria(cmd.Context())
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(criteriaView{
				Provider: a.cfg.Track.Provider,
				Mode:     string(crit.Mode()),
				Targets:  crit.Targets(),
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the track_targets schema to track.postgres.dsn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.closer.Close()

			version, err := pgtrack.Migrate(a.cfg.Track.Postgres.DSN)
			if err != nil {
				return configError(a.logger, "migration failed", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "track schema at version %d\n", version)
			return err
		},
	})

	return cmd
}
