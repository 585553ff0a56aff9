// cmd/settlectl/cmds/sweep.go
package cmds

import (
	"context"
	"fmt"
	"strconv"

	"settlement-service/internal/app"

	"github.com/spf13/cobra"
)

func (c *Cmd) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <wallet-id>",
		Short: "sweep a temp wallet to the master wallet and credit the user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			walletID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid wallet id %q: %w", args[0], err)
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Ledger.AcceptSweep(ctx, walletID)
				if result != nil {
					if printErr := jsonPrint(cmd, newSweepView(result)); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	}
}

func (c *Cmd) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "run one reconciliation pass over open transfer intents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Ledger.ReconcileIntents(ctx)
				if err != nil {
					return err
				}
				return jsonPrint(cmd, report)
			})
		},
	}
}
