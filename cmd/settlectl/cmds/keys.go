// cmd/settlectl/cmds/keys.go
package cmds

import (
	"context"
	"errors"

	"settlement-service/internal/app"
	"settlement-service/internal/security"

	"github.com/spf13/cobra"
)

func (c *Cmd) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "encryption key tooling",
	}

	cmd.AddCommand(c.keysGenerateCmd())
	cmd.AddCommand(c.keysHashCmd())
	cmd.AddCommand(c.keysRotateCmd())
	return cmd
}

func (c *Cmd) keysGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "generate a new encryption key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := security.GenerateMasterKey()
			if err != nil {
				return err
			}
			return jsonPrint(cmd, map[string]string{
				"key":      key,
				"key_hash": security.HashKeyString(key),
			})
		},
	}
}

func (c *Cmd) keysHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [key]",
		Short: "print the hash stored next to keys sealed with the given or configured key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				key, _ = c.lookup("CRYPTO_ENCRYPTION_KEY")
			}
			if key == "" {
				return errors.New("no key given and CRYPTO_ENCRYPTION_KEY is not set")
			}

			return jsonPrint(cmd, map[string]string{"key_hash": security.HashKeyString(key)})
		},
	}
}

func (c *Cmd) keysRotateCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "re-encrypt wallet keys sealed with a fallback key or stored in plaintext",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Wallets.RotateKeys(ctx, batch)
				if err != nil {
					return err
				}
				return jsonPrint(cmd, report)
			})
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 500, "maximum wallets to rotate in this run")
	return cmd
}
