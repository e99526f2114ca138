package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"codeberg.org/mutker/hashtop/internal/config"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/store"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hashtop",
		Short:         "Mining fleet telemetry collector and API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			opts := []config.Option{config.WithFlags(cmd.Flags())}
			if path != "" {
				opts = append(opts, config.WithConfigFile(path))
			}

			if cfg, err = config.Load(opts...); err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
				return err
			}
			logger.Debug().Msg("Config loaded")

			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "Configuration file to use")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newCollectCmd(),
		newAgentCmd(),
		newUserCmd(),
		newMinerCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "hashtop: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (store.Store, error) {
	return store.Open(store.Config{
		DBPath:          cfg.Database.Path,
		BackupOnMigrate: cfg.Database.BackupOnMigrate,
	}, logger.Default())
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
