package main

import (
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/store"
	"codeberg.org/mutker/hashtop/internal/validation"
	"github.com/spf13/cobra"
)

func newMinerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "miner",
		Short: "Manage miners",
	}

	add := &cobra.Command{
		Use:   "add WALLET NAME",
		Short: "Register a miner for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.Var("name", args[1], "required,max=128"); err != nil {
				return err
			}
			return withStore(cmd, func(tx store.Tx) error {
				miner, err := tx.CreateMiner(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), miner)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list WALLET",
		Short: "List a user's miners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(tx store.Tx) error {
				if _, err := tx.GetUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				miners, err := tx.ListMiners(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), miners)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a miner and its GPUs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(tx store.Tx) error {
				miner, err := tx.GetMiner(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				gpus, err := tx.ListGPUs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), struct {
					Miner model.Miner `json:"miner"`
					GPUs  []model.GPU `json:"gpus"`
				}{Miner: miner, GPUs: gpus})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a miner with its GPUs and samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(tx store.Tx) error {
				return tx.DeleteMiner(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(add, list, show, del)
	return cmd
}
