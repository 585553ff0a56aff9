// cmd/settlectl/cmds/root.go
package cmds

import (
	"context"
	"encoding/json"
	"fmt"

	"settlement-service/internal/app"
	"settlement-service/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Cmd carries the settings shared by every subcommand. Settings resolve from
// flags first, then the environment, then the optional config file.
type Cmd struct {
	v       *viper.Viper
	migrate bool
}

func NewRootCmd() *cobra.Command {
	c := &Cmd{v: viper.New()}
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "settlectl",
		Short:        "operate temp wallets, sweeps and withdrawals",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.readConfigFile()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, json, toml or .env)")
	flags.String("database-url", "", "postgres connection string")
	flags.String("app-env", "", "development or production")
	flags.BoolVar(&c.migrate, "migrate", false, "apply pending schema migrations before running")

	_ = c.v.BindPFlag("CONFIG", flags.Lookup("config"))
	_ = c.v.BindPFlag("DATABASE_URL", flags.Lookup("database-url"))
	_ = c.v.BindPFlag("APP_ENV", flags.Lookup("app-env"))

	root.AddCommand(c.walletCmd())
	root.AddCommand(c.sweepCmd())
	root.AddCommand(c.withdrawCmd())
	root.AddCommand(c.keysCmd())
	root.AddCommand(c.reconcileCmd())

	return root
}

func (c *Cmd) readConfigFile() error {
	path := c.v.GetString("CONFIG")
	if path == "" {
		return nil
	}

	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// lookup adapts viper to config.LoadWith. Unset keys fall back to the config defaults.
func (c *Cmd) lookup(key string) (string, bool) {
	if !c.v.IsSet(key) {
		return "", false
	}
	return c.v.GetString(key), true
}

func (c *Cmd) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWith(c.lookup)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp wires the services, runs fn and releases every connection afterwards
func (c *Cmd) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{RunMigrations: c.migrate}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func jsonPrint(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
