// cmd/settlectl/cmds/withdraw.go
package cmds

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"settlement-service/internal/app"
	"settlement-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (c *Cmd) withdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "request and accept withdrawals",
	}

	cmd.AddCommand(c.withdrawRequestCmd())
	cmd.AddCommand(c.withdrawAcceptCmd())
	return cmd
}

func (c *Cmd) withdrawRequestCmd() *cobra.Command {
	var opt struct {
		userID      string
		amount      string
		destination string
		network     string
	}

	cmd := &cobra.Command{
		Use:   "request",
		Short: "record a PENDING withdrawal",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(opt.amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", opt.amount, err)
			}

			req := &domain.WithdrawRequest{
				UserID:      opt.userID,
				Amount:      amount,
				Destination: opt.destination,
				Network:     parsePaymentNetwork(opt.network),
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				tx, err := a.Ledger.RequestWithdraw(ctx, req)
				if err != nil {
					return err
				}
				return jsonPrint(cmd, newTransactionView(tx))
			})
		},
	}

	cmd.Flags().StringVar(&opt.userID, "user", "", "user id")
	cmd.Flags().StringVar(&opt.amount, "amount", "", "amount in stablecoin units")
	cmd.Flags().StringVar(&opt.destination, "to", "", "destination address")
	cmd.Flags().StringVar(&opt.network, "network", "", "USDT_TRC20, USDC_POLYGON, TRON or POLYGON")
	for _, name := range []string{"user", "amount", "to", "network"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *Cmd) withdrawAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <transaction-id>",
		Short: "pay out a PENDING withdrawal from the master wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q: %w", args[0], err)
			}

			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				tx, err := a.Ledger.AcceptWithdraw(ctx, id)
				if err != nil {
					return err
				}
				return jsonPrint(cmd, newTransactionView(tx))
			})
		},
	}
}

// parsePaymentNetwork accepts the ledger name or the chain name
func parsePaymentNetwork(s string) domain.PaymentNetwork {
	if network, err := domain.ParseNetwork(s); err == nil {
		return network.PaymentNetwork()
	}
	return domain.PaymentNetwork(strings.ToUpper(strings.TrimSpace(s)))
}
