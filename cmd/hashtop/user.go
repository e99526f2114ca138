package main

import (
	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/store"
	"codeberg.org/mutker/hashtop/internal/validation"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	add := &cobra.Command{
		Use:   "add WALLET",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fname, _ := cmd.Flags().GetString("fname")
			lname, _ := cmd.Flags().GetString("lname")

			user := model.User{WalletAddr: args[0], FirstName: fname, LastName: lname}
			if err := validation.Struct(user); err != nil {
				return err
			}

			return withStore(cmd, func(tx store.Tx) error {
				if err := tx.CreateUser(cmd.Context(), user); err != nil {
					return err
				}
				created, err := tx.GetUser(cmd.Context(), user.WalletAddr)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	add.Flags().String("fname", "", "First name")
	add.Flags().String("lname", "", "Last name")

	update := &cobra.Command{
		Use:   "update WALLET",
		Short: "Change a user's name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u model.UserUpdate
			if cmd.Flags().Changed("fname") {
				fname, _ := cmd.Flags().GetString("fname")
				u.FirstName = &fname
			}
			if cmd.Flags().Changed("lname") {
				lname, _ := cmd.Flags().GetString("lname")
				u.LastName = &lname
			}
			if u.Empty() {
				return errors.New().WithMessage(errors.ErrValidation, "set --fname or --lname")
			}
			if err := validation.Struct(u); err != nil {
				return err
			}

			return withStore(cmd, func(tx store.Tx) error {
				if err := tx.UpdateUser(cmd.Context(), args[0], u); err != nil {
					return err
				}
				user, err := tx.GetUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
	update.Flags().String("fname", "", "First name")
	update.Flags().String("lname", "", "Last name")

	show := &cobra.Command{
		Use:   "show WALLET",
		Short: "Show a user and their latest pool statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(tx store.Tx) error {
				user, err := tx.GetUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := struct {
					User       model.User      `json:"user"`
					LatestStat *model.UserStat `json:"latest_stat"`
				}{User: user}

				stat, err := tx.LatestUserStat(cmd.Context(), args[0])
				switch {
				case err == nil:
					out.LatestStat = &stat
				case !errors.HasCode(err, errors.ErrNotFound):
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(tx store.Tx) error {
				users, err := tx.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), users)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete WALLET",
		Short: "Delete a user with their miners and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(tx store.Tx) error {
				return tx.DeleteUser(cmd.Context(), args[0])
			})
		},
	}

	cmd.AddCommand(add, update, show, list, del)
	return cmd
}

// withStore opens the database and runs fn in one transaction.
func withStore(cmd *cobra.Command, fn func(tx store.Tx) error) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.WithTx(cmd.Context(), fn)
}
