// cmd/settlectl/cmds/wallet.go
package cmds

import (
	"context"
	"errors"

	"settlement-service/internal/app"
	"settlement-service/internal/domain"

	"github.com/pandodao/generic"
	"github.com/spf13/cobra"
)

func (c *Cmd) walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "manage temp deposit wallets",
	}

	cmd.AddCommand(c.walletGetOrCreateCmd())
	cmd.AddCommand(c.walletListCmd())
	cmd.AddCommand(c.walletBalancesCmd())
	return cmd
}

func (c *Cmd) walletGetOrCreateCmd() *cobra.Command {
	var opt struct {
		userID  string
		network string
	}

	cmd := &cobra.Command{
		Use:   "get-or-create",
		Short: "return the user's ACTIVE wallet on a network, creating it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			network, err := domain.ParseNetwork(opt.network)
			if err != nil {
				return err
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				wallet, err := a.Wallets.GetOrCreate(ctx, opt.userID, network)
				if err != nil {
					return err
				}
				return jsonPrint(cmd, newWalletView(wallet))
			})
		},
	}

	cmd.Flags().StringVar(&opt.userID, "user", "", "user id")
	cmd.Flags().StringVar(&opt.network, "network", "", "TRON or POLYGON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

func (c *Cmd) walletListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list every wallet of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				wallets, err := a.Store.Repositories().Wallets.ListByUser(ctx, userID)
				if err != nil {
					return err
				}
				return jsonPrint(cmd, generic.MapSlice(wallets, newWalletView))
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *Cmd) walletBalancesCmd() *cobra.Command {
	var opt struct {
		userID  string
		address string
	}

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "read on-chain balances by user or by address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opt.userID == "") == (opt.address == "") {
				return errors.New("exactly one of --user or --address is required")
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if opt.address != "" {
					view, err := a.Wallets.BalancesForAddress(ctx, opt.address)
					if err != nil {
						return err
					}
					return jsonPrint(cmd, view)
				}

				views, err := a.Wallets.BalancesForUser(ctx, opt.userID)
				if err != nil {
					return err
				}
				return jsonPrint(cmd, views)
			})
		},
	}

	cmd.Flags().StringVar(&opt.userID, "user", "", "user id")
	cmd.Flags().StringVar(&opt.address, "address", "", "temp wallet address")
	return cmd
}
