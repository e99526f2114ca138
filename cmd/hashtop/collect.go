package main

import (
	"codeberg.org/mutker/hashtop/internal/collector"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/pool"
	"codeberg.org/mutker/hashtop/internal/store"
	"github.com/spf13/cobra"
)

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one pool statistics collection cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := newCollector(s)
			if err != nil {
				return err
			}

			report, err := c.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newCollector(s store.Store) (*collector.Collector, error) {
	poolCfg := pool.DefaultConfig()
	poolCfg.BaseURL = cfg.Pool.BaseURL
	poolCfg.Timeout = cfg.Pool.Timeout
	poolCfg.Rate = cfg.Pool.Rate
	poolCfg.Burst = cfg.Pool.Burst

	client, err := pool.NewClient(poolCfg, logger.Default().With("pool"))
	if err != nil {
		return nil, err
	}

	collectorCfg := collector.DefaultConfig()
	collectorCfg.Interval = cfg.Collector.Interval
	collectorCfg.Timeout = cfg.Collector.Timeout
	collectorCfg.Concurrency = cfg.Collector.Concurrency

	return collector.New(s, client, collectorCfg, logger.Default().With("collector"))
}
