package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/hashtop/internal/api"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/pid"
	"codeberg.org/mutker/hashtop/internal/supervisor"
	"codeberg.org/mutker/hashtop/internal/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic pool collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	log := logger.Default()

	pidPath := cfg.PIDFile
	if pidPath == "" {
		pidPath = pid.DefaultPath()
	}
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			log.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ingest, err := telemetry.NewService(s, telemetry.DefaultConfig(), log.With("telemetry"))
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		Listen:          cfg.Server.Listen,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MAFactor:        cfg.Aggregate.MAFactor,
	}
	handler, err := api.NewHandler(s, ingest, apiCfg, log.With("api"))
	if err != nil {
		return err
	}
	server, err := api.NewServer(handler, apiCfg, log.With("api"))
	if err != nil {
		return err
	}

	sup := supervisor.New("hashtop", supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout}, log.With("supervisor"))
	sup.Add(server)

	if cfg.Collector.Enabled {
		c, err := newCollector(s)
		if err != nil {
			return err
		}
		sup.Add(c)
	} else {
		log.Info().Msg("Collector disabled")
	}

	log.Info().Str("listen", cfg.Server.Listen).Str("database", cfg.Database.Path).Msg("Starting hashtop")

	err = sup.Serve(ctx)
	if ctx.Err() != nil {
		log.Info().Msg("Received termination signal")
		return nil
	}
	return err
}
