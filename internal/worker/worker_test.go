package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/repository"
	"settlement-service/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWallets struct {
	wallets []*domain.TempWallet
	filter  repository.SweepCandidateFilter
	err     error
}

func (f *fakeWallets) ListSweepCandidates(_ context.Context, filter repository.SweepCandidateFilter) ([]*domain.TempWallet, error) {
	f.filter = filter
	return f.wallets, f.err
}

type fakeBalances map[string]*domain.WalletBalances

func (f fakeBalances) RefreshBalances(_ context.Context, w *domain.TempWallet) *domain.WalletBalances {
	if b, ok := f[w.Address]; ok {
		return b
	}
	return &domain.WalletBalances{Address: w.Address, Network: w.Network}
}

type fakeLedger struct {
	mu       sync.Mutex
	accepted []int64
	fail     map[int64]error
	passes   atomic.Int32
}

func (f *fakeLedger) AcceptSweep(_ context.Context, walletID int64) (*domain.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, walletID)
	if err := f.fail[walletID]; err != nil {
		return (&domain.SweepResult{}).Failed(domain.SweepStageTransfer, err), err
	}
	return &domain.SweepResult{Success: true, Stage: domain.SweepStageDone}, nil
}

func (f *fakeLedger) ReconcileIntents(context.Context) (*usecase.ReconcileReport, error) {
	f.passes.Add(1)
	return &usecase.ReconcileReport{}, nil
}

func balances(stable, native string) *domain.WalletBalances {
	return &domain.WalletBalances{
		Stablecoin: decimal.RequireFromString(stable),
		Native:     decimal.RequireFromString(native),
	}
}

func TestSweepWorker_RunOnce(t *testing.T) {
	wallets := &fakeWallets{wallets: []*domain.TempWallet{
		{ID: 1, Address: "T1", Network: domain.NetworkTron},
		{ID: 2, Address: "T2", Network: domain.NetworkTron},
		{ID: 3, Address: "T3", Network: domain.NetworkTron},
		{ID: 4, Address: "T4", Network: domain.NetworkTron},
		{ID: 5, Address: "0x5", Network: domain.NetworkPolygon},
		{ID: 6, Address: "T6", Network: domain.NetworkTron},
	}}
	refresher := fakeBalances{
		"T1":  balances("50", "0"),    // stablecoin over the minimum
		"T2":  balances("0.5", "0"),   // dust
		"T3":  balances("0", "3"),     // native above reserve
		"T4":  balances("0", "1"),     // native at reserve
		"0x5": balances("100", "1"),   // network not configured
		"T6":  balances("20", "0.01"), // sweep fails
	}
	ledger := &fakeLedger{fail: map[int64]error{6: errors.New("rpc down")}}

	sw := NewSweepWorker(wallets, refresher, ledger, SweepWorkerConfig{
		Interval:    time.Minute,
		BatchSize:   10,
		Concurrency: 3,
		Networks: map[domain.Network]SweepThreshold{
			domain.NetworkTron: {MinStablecoin: decimal.NewFromInt(1), NativeReserve: decimal.NewFromInt(1)},
		},
	}, zap.NewNop())

	pass, err := sw.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, pass.Checked)
	assert.Equal(t, 2, pass.Swept)
	assert.Equal(t, 1, pass.Failed)
	assert.ElementsMatch(t, []int64{1, 3, 6}, ledger.accepted)

	assert.Equal(t, []domain.Network{domain.NetworkTron}, wallets.filter.Networks)
	assert.Equal(t, 10, wallets.filter.Limit)
	assert.WithinDuration(t, time.Now().Add(-time.Minute), wallets.filter.CheckedBefore, 5*time.Second)
}

func TestSweepWorker_ListError(t *testing.T) {
	wallets := &fakeWallets{err: errors.New("db down")}
	sw := NewSweepWorker(wallets, fakeBalances{}, &fakeLedger{}, SweepWorkerConfig{}, zap.NewNop())

	_, err := sw.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSweepWorker_StartStops(t *testing.T) {
	sw := NewSweepWorker(&fakeWallets{}, fakeBalances{}, &fakeLedger{}, SweepWorkerConfig{Interval: time.Millisecond}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- sw.Start(context.Background()) }()

	time.Sleep(5 * time.Millisecond)
	sw.Stop()
	sw.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweep worker did not stop")
	}
}

func TestReconcileWorker_RunsUntilCancelled(t *testing.T) {
	ledger := &fakeLedger{}
	rw := NewReconcileWorker(ledger, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rw.Start(ctx) }()

	require.Eventually(t, func() bool { return ledger.passes.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconcile worker did not stop")
	}
}
