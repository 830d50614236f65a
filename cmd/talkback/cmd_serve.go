package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"talkback/internal/app"
	"talkback/internal/config"
)

// newServeCmd creates the "talkback serve" subcommand, the long-running
// daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the watch-and-speak daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to load config, using defaults")
				cfg = config.Default()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}

			log.Info().
				Str("version", Version).
				Int("port", cfg.Port).
				Int("profiles", len(cfg.Profiles)).
				Msg("talkback starting")

			err = a.Run(ctx)
			if err == nil || err == context.Canceled {
				log.Info().Msg("talkback stopped")
				return nil
			}
			return err
		},
	}
}
