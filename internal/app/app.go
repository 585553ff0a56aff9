// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"math/big"

	"settlement-service/internal/chains"
	"settlement-service/internal/chains/polygon"
	"settlement-service/internal/chains/tron"
	"settlement-service/internal/config"
	"settlement-service/internal/domain"
	"settlement-service/internal/events"
	"settlement-service/internal/repository"
	"settlement-service/internal/security"
	"settlement-service/internal/usecase"
	"settlement-service/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired services shared by the server and the operator CLI
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Store     *repository.PgStore
	Vault     *security.KeyVault
	Registry  *chains.Registry
	Publisher events.Publisher

	Wallets *usecase.WalletUsecase
	Sweeper *usecase.SweepUsecase
	Ledger  *usecase.LedgerUsecase

	logger  *zap.Logger
	closers []func()
}

type Options struct {
	RunMigrations bool
}

// NewLogger builds the process logger, development mode when APP_ENV=development
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg != nil && cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// New connects every dependency named by cfg. Close releases them in reverse order.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	if err := a.build(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config
	logger := a.logger

	// 1. Database
	pool, err := repository.ConnectDB(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	a.Pool = pool
	a.onClose(pool.Close)

	if opts.RunMigrations {
		if err := repository.Migrate(pool, logger); err != nil {
			return err
		}
	}
	a.Store = repository.NewPgStore(pool, logger)

	// 2. Secrets and key vault
	secrets, err := a.secretStore()
	if err != nil {
		return err
	}

	currentKey, fallbackKeys, err := secrets.EncryptionKeys(ctx)
	if err != nil {
		return err
	}
	vault, err := security.NewKeyVault(currentKey, fallbackKeys, logger)
	if err != nil {
		return err
	}
	a.Vault = vault

	// 3. Redis, optional
	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.onClose(func() { _ = rdb.Close() })

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	var locker chains.Locker
	if rdb != nil {
		locker = chains.NewRedisLocker(rdb, "settlement:lock:", cfg.Sweep.LockTTL, cfg.Sweep.LockWait, logger)
	} else {
		locker = chains.NewLocalLocker()
	}

	// 4. Chains and master wallets
	retry := chains.NewRetryPolicy(cfg.Retry.Attempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, logger)
	a.Registry = chains.NewRegistry()

	if cfg.Tron.Enabled {
		tronChain, err := tron.NewTronChain(tron.Config{
			Network:                 cfg.Tron.Network,
			FullNodeURL:             cfg.Tron.FullNodeURL,
			GRPCURL:                 cfg.Tron.GRPCURL,
			APIKey:                  cfg.Tron.APIKey,
			USDTContract:            cfg.Tron.USDTContract,
			EnergyMultiplier:        cfg.Tron.EnergyMultiplier,
			FallbackEnergy:          cfg.Tron.FallbackEnergy,
			FallbackEnergyNewHolder: cfg.Tron.FallbackEnergyNewHolder,
			PollInterval:            cfg.Sweep.PollInterval,
		}, locker, retry, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize TRON: %w", err)
		}
		a.onClose(tronChain.Stop)
		a.Registry.Register(tronChain)
	}

	if cfg.Polygon.Enabled {
		maxGasPrice := new(big.Int).Mul(big.NewInt(cfg.Polygon.MaxGasPriceGwei), big.NewInt(1_000_000_000))
		polygonChain, err := polygon.NewPolygonChain(ctx, polygon.Config{
			Network:          cfg.Polygon.Network,
			RPCURL:           cfg.Polygon.RPCURL,
			USDCContracts:    cfg.Polygon.USDCContracts,
			GasMultiplier:    cfg.Polygon.GasMultiplier,
			FallbackGasLimit: cfg.Polygon.FallbackGasLimit,
			MaxGasPrice:      maxGasPrice,
			PollInterval:     cfg.Sweep.PollInterval,
		}, locker, retry, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Polygon: %w", err)
		}
		a.onClose(polygonChain.Stop)
		a.Registry.Register(polygonChain)
	}

	masters := make(map[domain.Network]*domain.MasterWallet)
	settings := make(map[domain.Network]usecase.SweepSettings)
	for network, chainCfg := range cfg.Chains() {
		master, err := secrets.MasterWallet(ctx, network, chainCfg.MasterAddress)
		if err != nil {
			return err
		}
		masters[network] = master
		settings[network] = usecase.SweepSettings{
			NativeReserve: chainCfg.NativeReserve,
			MinTopUp:      chainCfg.MinTopUp,
			TopUpMargin:   cfg.Sweep.TopUpMargin,
		}
	}

	// 5. Events
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		a.Publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	case rdb != nil:
		a.Publisher = events.NewRedisPublisher(rdb, events.SettlementEventsChannel)
	default:
		a.Publisher = events.NopPublisher{}
	}
	publisher := a.Publisher
	a.onClose(func() { _ = publisher.Close() })

	// 6. Usecases
	a.Wallets = usecase.NewWalletUsecase(a.Store, a.Registry, vault, logger)
	a.Sweeper = usecase.NewSweepUsecase(a.Store, a.Registry, a.Wallets, masters, locker, usecase.SweepConfig{
		Networks:           settings,
		ConfirmTimeout:     cfg.Sweep.ConfirmTimeout,
		TopUpSettleTimeout: cfg.Sweep.TopUpSettleTimeout,
		NonceWaitTimeout:   cfg.Sweep.NonceWaitTimeout,
		PollInterval:       cfg.Sweep.PollInterval,
	}, logger)
	a.Ledger = usecase.NewLedgerUsecase(a.Store, a.Sweeper, a.Registry, a.Publisher, usecase.LedgerConfig{
		ReconcileGrace: cfg.Reconcile.Grace,
		ReconcileBatch: cfg.Reconcile.BatchSize,
		SettleTimeout:  cfg.Reconcile.SettleTimeout,
	}, logger)

	logger.Info("settlement services ready",
		zap.Strings("networks", networkNames(a.Registry.Networks())),
		zap.String("key_hash", vault.KeyHash()))
	return nil
}

func (a *App) secretStore() (*security.SecretStore, error) {
	switch a.Config.Security.VaultProvider {
	case "file":
		fileVault, err := security.NewKeyVault(a.Config.Security.FileVaultKey, nil, a.logger)
		if err != nil {
			return nil, err
		}
		provider, err := security.NewFileSecretProvider(a.Config.Security.FileVaultDir, fileVault)
		if err != nil {
			return nil, fmt.Errorf("failed to open file vault: %w", err)
		}
		return security.NewSecretStore(provider, a.logger), nil
	default:
		return security.NewSecretStore(security.NewEnvSecretProvider(nil), a.logger), nil
	}
}

// SweepWorker builds the sweep worker over the enabled networks
func (a *App) SweepWorker() *worker.SweepWorker {
	thresholds := make(map[domain.Network]worker.SweepThreshold)
	for network, chainCfg := range a.Config.Chains() {
		thresholds[network] = worker.SweepThreshold{
			MinStablecoin: chainCfg.MinSweep,
			NativeReserve: chainCfg.NativeReserve,
		}
	}

	return worker.NewSweepWorker(
		a.Store.Repositories().Wallets,
		a.Wallets,
		a.Ledger,
		worker.SweepWorkerConfig{
			Interval:    a.Config.Sweep.Interval,
			BatchSize:   a.Config.Sweep.BatchSize,
			Concurrency: a.Config.Sweep.Concurrency,
			Networks:    thresholds,
		},
		a.logger,
	)
}

func (a *App) ReconcileWorker() *worker.ReconcileWorker {
	return worker.NewReconcileWorker(a.Ledger, a.Config.Reconcile.Interval, a.logger)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func networkNames(networks []domain.Network) []string {
	out := make([]string, 0, len(networks))
	for _, n := range networks {
		out = append(out, n.String())
	}
	return out
}
