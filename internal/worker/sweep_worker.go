// internal/worker/sweep_worker.go
package worker

import (
	"context"
	"sync"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type candidateLister interface {
	ListSweepCandidates(ctx context.Context, filter repository.SweepCandidateFilter) ([]*domain.TempWallet, error)
}

type balanceRefresher interface {
	RefreshBalances(ctx context.Context, wallet *domain.TempWallet) *domain.WalletBalances
}

type sweepAcceptor interface {
	AcceptSweep(ctx context.Context, walletID int64) (*domain.SweepResult, error)
}

// SweepThreshold decides when a temp wallet is worth sweeping
type SweepThreshold struct {
	MinStablecoin decimal.Decimal
	NativeReserve decimal.Decimal
}

type SweepWorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	Networks    map[domain.Network]SweepThreshold
}

// SweepPass summarizes one run over the candidate wallets
type SweepPass struct {
	Checked int
	Swept   int
	Failed  int
}

type SweepWorker struct {
	wallets  candidateLister
	balances balanceRefresher
	ledger   sweepAcceptor
	cfg      SweepWorkerConfig
	logger   *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewSweepWorker(
	wallets candidateLister,
	balances balanceRefresher,
	ledger sweepAcceptor,
	cfg SweepWorkerConfig,
	logger *zap.Logger,
) *SweepWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &SweepWorker{
		wallets:  wallets,
		balances: balances,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.With(zap.String("worker", "sweep")),
		stopChan: make(chan struct{}),
	}
}

// Start runs a pass immediately and then every interval until ctx ends or Stop is called
func (sw *SweepWorker) Start(ctx context.Context) error {
	sw.logger.Info("Starting sweep worker",
		zap.Duration("interval", sw.cfg.Interval),
		zap.Int("concurrency", sw.cfg.Concurrency))

	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := sw.RunOnce(ctx); err != nil && ctx.Err() == nil {
			sw.logger.Error("Sweep pass failed", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-sw.stopChan:
			sw.logger.Info("Stopping sweep worker")
			return nil
		case <-ctx.Done():
			sw.logger.Info("Context cancelled, stopping sweep worker")
			return nil
		}
	}
}

// RunOnce checks every ACTIVE wallet not looked at within the interval and sweeps
// the ones holding enough funds
func (sw *SweepWorker) RunOnce(ctx context.Context) (*SweepPass, error) {
	networks := make([]domain.Network, 0, len(sw.cfg.Networks))
	for n := range sw.cfg.Networks {
		networks = append(networks, n)
	}

	candidates, err := sw.wallets.ListSweepCandidates(ctx, repository.SweepCandidateFilter{
		Networks:      networks,
		CheckedBefore: time.Now().Add(-sw.cfg.Interval),
		Limit:         sw.cfg.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		pass = &SweepPass{}
	)

	var g errgroup.Group
	g.SetLimit(sw.cfg.Concurrency)

	for _, wallet := range candidates {
		g.Go(func() error {
			swept, err := sw.handleWallet(ctx, wallet)

			mu.Lock()
			defer mu.Unlock()
			pass.Checked++
			switch {
			case err != nil:
				pass.Failed++
			case swept:
				pass.Swept++
			}
			return nil
		})
	}
	_ = g.Wait()

	if pass.Checked > 0 {
		sw.logger.Info("Sweep pass finished",
			zap.Int("checked", pass.Checked),
			zap.Int("swept", pass.Swept),
			zap.Int("failed", pass.Failed))
	}
	return pass, nil
}

func (sw *SweepWorker) handleWallet(ctx context.Context, wallet *domain.TempWallet) (bool, error) {
	balances := sw.balances.RefreshBalances(ctx, wallet)
	if !sw.worthSweeping(wallet.Network, balances) {
		return false, nil
	}

	result, err := sw.ledger.AcceptSweep(ctx, wallet.ID)
	if err != nil {
		fields := []zap.Field{
			zap.Int64("wallet_id", wallet.ID),
			zap.String("network", wallet.Network.String()),
			zap.String("address", wallet.Address),
			zap.Error(err),
		}
		if result != nil {
			fields = append(fields, zap.String("stage", string(result.Stage)))
		}
		sw.logger.Error("Sweep failed", fields...)
		return false, err
	}

	sw.logger.Info("Wallet swept",
		zap.Int64("wallet_id", wallet.ID),
		zap.String("user_id", wallet.UserID),
		zap.String("stablecoin", result.StablecoinAmount.String()),
		zap.String("native", result.NativeAmount.String()))
	return true, nil
}

func (sw *SweepWorker) worthSweeping(network domain.Network, b *domain.WalletBalances) bool {
	threshold, ok := sw.cfg.Networks[network]
	if !ok {
		return false
	}
	if b.Stablecoin.IsPositive() && b.Stablecoin.GreaterThanOrEqual(threshold.MinStablecoin) {
		return true
	}
	return b.Stablecoin.IsZero() && b.Native.GreaterThan(threshold.NativeReserve)
}

func (sw *SweepWorker) Stop() {
	sw.stopOnce.Do(func() { close(sw.stopChan) })
}
