package main

import (
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/hashtop/internal/agent"
	"codeberg.org/mutker/hashtop/internal/gpu"
	"codeberg.org/mutker/hashtop/internal/logger"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Report local GPU health to a hashtop API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.Default()

			sampler := gpu.NewSampler(log.With("gpu"))
			if err := sampler.Initialize(); err != nil {
				return err
			}
			defer func() {
				if err := sampler.Shutdown(); err != nil {
					log.Warn().Err(err).Msg("Failed to shut down NVML")
				}
			}()

			agentCfg := agent.DefaultConfig()
			agentCfg.APIURL = cfg.Agent.APIURL
			agentCfg.MinerID = cfg.Agent.MinerID
			agentCfg.Interval = cfg.Agent.Interval

			hashrate, err := agent.NewMinerStats(cfg.Agent.HashrateURL, agentCfg.Timeout)
			if err != nil {
				return err
			}

			a, err := agent.New(sampler, hashrate, agentCfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
