// internal/usecase/sweep_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"settlement-service/internal/chains"
	"settlement-service/internal/domain"
	"settlement-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SweepSettings are the per-network amounts the orchestrator works with
type SweepSettings struct {
	// NativeReserve stays behind in a temp wallet after a native sweep
	NativeReserve decimal.Decimal
	// MinTopUp is the smallest gas top-up the master wallet sends
	MinTopUp decimal.Decimal
	// TopUpMargin multiplies the gas shortfall when it exceeds MinTopUp
	TopUpMargin decimal.Decimal
}

type SweepConfig struct {
	Networks map[domain.Network]SweepSettings

	ConfirmTimeout     time.Duration
	TopUpSettleTimeout time.Duration
	NonceWaitTimeout   time.Duration
	PollInterval       time.Duration
}

func (c *SweepConfig) setDefaults() {
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 60 * time.Second
	}
	if c.TopUpSettleTimeout <= 0 {
		c.TopUpSettleTimeout = 30 * time.Second
	}
	if c.NonceWaitTimeout <= 0 {
		c.NonceWaitTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}

// SweepUsecase moves funds between temp wallets, the master wallet and external addresses.
// It is the only component that signs with master keys.
type SweepUsecase struct {
	store         repository.Store
	chainRegistry *chains.Registry
	wallets       *WalletUsecase
	masters       map[domain.Network]*domain.MasterWallet
	locker        chains.Locker
	cfg           SweepConfig
	logger        *zap.Logger
}

func NewSweepUsecase(
	store repository.Store,
	chainRegistry *chains.Registry,
	wallets *WalletUsecase,
	masters map[domain.Network]*domain.MasterWallet,
	locker chains.Locker,
	cfg SweepConfig,
	logger *zap.Logger,
) *SweepUsecase {
	cfg.setDefaults()
	return &SweepUsecase{
		store:         store,
		chainRegistry: chainRegistry,
		wallets:       wallets,
		masters:       masters,
		locker:        locker,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "sweep_usecase")),
	}
}

func (uc *SweepUsecase) master(network domain.Network) (*domain.MasterWallet, error) {
	m, ok := uc.masters[network]
	if !ok || m == nil || m.Address == "" || m.PrivateKey == "" {
		return nil, &domain.ConfigurationError{
			Key:    network.String() + "_MASTER_ADDRESS",
			Reason: "master wallet is not configured",
		}
	}
	return m, nil
}

func (uc *SweepUsecase) settings(network domain.Network) SweepSettings {
	s := uc.cfg.Networks[network]
	if s.TopUpMargin.LessThanOrEqual(decimal.Zero) {
		s.TopUpMargin = decimal.NewFromFloat(1.5)
	}
	return s
}

// ============================================================================
// SWEEP
// ============================================================================

// Sweep transfers a temp wallet's stablecoin (or surplus native) balance to the master wallet.
// Attempts on the same wallet are serialized. Balances are re-read from chain every attempt.
func (uc *SweepUsecase) Sweep(ctx context.Context, wallet *domain.TempWallet, opts domain.SweepOptions) (*domain.SweepResult, error) {
	var (
		result *domain.SweepResult
		runErr error
	)

	start := time.Now()
	lockKey := "sweep:" + wallet.Network.String() + ":" + wallet.Address

	err := uc.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		result, runErr = uc.sweep(ctx, wallet, opts)
		return nil
	})
	if err != nil {
		return (&domain.SweepResult{}).Failed(domain.SweepStageInspect, err), fmt.Errorf("failed to acquire sweep lock: %w", err)
	}

	outcome := "success"
	switch {
	case runErr != nil:
		outcome = "failed"
	case result.NothingToTransfer:
		outcome = "nothing"
	}
	sweepsTotal.WithLabelValues(wallet.Network.String(), outcome).Inc()
	sweepDuration.WithLabelValues(wallet.Network.String()).Observe(time.Since(start).Seconds())

	return result, runErr
}

func (uc *SweepUsecase) sweep(ctx context.Context, wallet *domain.TempWallet, opts domain.SweepOptions) (*domain.SweepResult, error) {
	result := &domain.SweepResult{
		Stage:            domain.SweepStageInspect,
		StablecoinAmount: decimal.Zero,
		NativeAmount:     decimal.Zero,
	}
	log := uc.logger.With(
		zap.Int64("wallet_id", wallet.ID),
		zap.String("network", wallet.Network.String()),
		zap.String("address", wallet.Address))

	chain, err := uc.chainRegistry.Get(wallet.Network)
	if err != nil {
		return result.Failed(domain.SweepStageInspect, err), err
	}
	master, err := uc.master(wallet.Network)
	if err != nil {
		return result.Failed(domain.SweepStageInspect, err), err
	}
	settings := uc.settings(wallet.Network)

	privateKey, err := uc.wallets.DecryptKey(wallet)
	if err != nil {
		return result.Failed(domain.SweepStageInspect, err), err
	}

	// 1. INSPECT
	stable, err := chain.GetStablecoinBalance(ctx, wallet.Address)
	if err != nil {
		err = fmt.Errorf("failed to read stablecoin balance: %w", err)
		return result.Failed(domain.SweepStageInspect, err), err
	}
	native, err := chain.GetNativeBalance(ctx, wallet.Address)
	if err != nil {
		err = fmt.Errorf("failed to read native balance: %w", err)
		return result.Failed(domain.SweepStageInspect, err), err
	}

	log.Info("Sweep inspect",
		zap.String("stablecoin", stable.String()),
		zap.String("native", native.String()))

	if stable.IsZero() {
		return uc.sweepNativeOnly(ctx, chain, wallet, master, privateKey, native, settings, result)
	}

	amount := stable
	if opts.Amount.IsPositive() {
		if opts.Amount.GreaterThan(stable) {
			err := &domain.InsufficientFundsError{
				Scope:     "temp wallet",
				Asset:     chain.StablecoinSymbol(),
				Available: stable.String(),
				Required:  opts.Amount.String(),
			}
			return result.Failed(domain.SweepStageInspect, err), err
		}
		amount = opts.Amount
	}

	legs, err := planStablecoin(ctx, chain, wallet.Address, amount)
	if err != nil {
		err = fmt.Errorf("failed to plan stablecoin transfer: %w", err)
		return result.Failed(domain.SweepStageInspect, err), err
	}

	// 2. GAS_TOPUP
	result.Stage = domain.SweepStageGasTopUp
	estimates := make([]*domain.GasEstimate, len(legs))
	required := decimal.Zero
	for i, leg := range legs {
		estimate, err := chain.EstimateRequiredGas(ctx, &domain.GasEstimateRequest{
			From:     wallet.Address,
			To:       master.Address,
			Amount:   leg.Amount,
			Contract: leg.Contract,
		})
		if err != nil {
			err = fmt.Errorf("failed to estimate gas: %w", err)
			return result.Failed(domain.SweepStageGasTopUp, err), err
		}
		estimates[i] = estimate
		required = required.Add(estimate.NativeCost)
	}

	if native.LessThan(required) {
		hash, err := uc.topUpGas(ctx, chain, wallet, master, native, required, settings)
		if err != nil {
			return result.Failed(domain.SweepStageGasTopUp, err), err
		}
		result.GasTopUpTxHash = hash
	} else {
		log.Debug("Native balance covers gas",
			zap.String("native", native.String()),
			zap.String("required", required.String()))
	}

	// 3. AWAIT_PRIOR_TX
	result.Stage = domain.SweepStageAwaitPriorTx
	nonce, timedOut, err := uc.awaitPriorTx(ctx, chain, wallet.Address)
	if err != nil {
		return result.Failed(domain.SweepStageAwaitPriorTx, err), err
	}
	result.NonceWaitTimedOut = timedOut

	// 4. TRANSFER and 5. CONFIRM, one intent per leg on consecutive nonces
	for i, leg := range legs {
		if err := uc.sweepLeg(ctx, chain, wallet, master, privateKey, leg, offsetNonce(nonce, i), estimates[i], result); err != nil {
			if result.StablecoinAmount.IsPositive() {
				log.Warn("Stablecoin sweep stopped after a partial transfer",
					zap.String("swept", result.StablecoinAmount.String()),
					zap.String("requested", amount.String()),
					zap.Int("legs_confirmed", len(result.StablecoinLegs)),
					zap.Int("legs_planned", len(legs)))
			}
			return result.Failed(result.Stage, err), err
		}
	}

	log.Info("Stablecoin swept",
		zap.String("amount", result.StablecoinAmount.String()),
		zap.Int("legs", len(result.StablecoinLegs)),
		zap.String("tx_hash", result.StablecoinTxHash))

	// 6. Surplus native, failures here do not undo the stablecoin sweep
	if !opts.SkipNativeSweep {
		result.Stage = domain.SweepStageNativeSweep
		if err := uc.sweepSurplusNative(ctx, chain, wallet, master, privateKey, settings, result); err != nil {
			log.Warn("Post-sweep native transfer failed", zap.Error(err))
		}
	}

	result.Success = true
	result.Stage = domain.SweepStageDone
	result.CompletedAt = time.Now()
	return result, nil
}

// sweepLeg sends one planned leg to master and waits for it. Only a confirmed leg is
// added to result.
func (uc *SweepUsecase) sweepLeg(
	ctx context.Context,
	chain domain.ChainAdapter,
	wallet *domain.TempWallet,
	master *domain.MasterWallet,
	privateKey string,
	leg domain.TransferLeg,
	nonce *uint64,
	estimate *domain.GasEstimate,
	result *domain.SweepResult,
) error {
	result.Stage = domain.SweepStageTransfer
	intent := domain.NewTransferIntent(domain.TransferKindSweep, wallet.Network,
		walletRef(wallet.ID), wallet.Address, master.Address, leg.Amount)

	transfer, err := uc.broadcast(ctx, intent, func(ctx context.Context) (*domain.TransferResult, error) {
		return chain.TransferStablecoin(ctx, &domain.TransferRequest{
			From:       wallet.Address,
			To:         master.Address,
			Amount:     leg.Amount,
			PrivateKey: privateKey,
			Contract:   leg.Contract,
			Nonce:      nonce,
			Gas:        estimate,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to submit stablecoin transfer: %w", err)
	}
	if result.StablecoinTxHash == "" {
		result.StablecoinTxHash = transfer.TxHash
	}

	result.Stage = domain.SweepStageConfirm
	if _, err := uc.confirm(ctx, chain, intent); err != nil {
		return err
	}

	result.StablecoinLegs = append(result.StablecoinLegs, domain.SweepLeg{
		Contract: leg.Contract,
		Amount:   leg.Amount,
		TxHash:   transfer.TxHash,
		Intent:   intent.ID,
	})
	result.StablecoinAmount = result.StablecoinAmount.Add(leg.Amount)
	return nil
}

// planStablecoin splits amount into per-contract legs on chains that hold the
// stablecoin on several contracts, and is a single leg everywhere else
func planStablecoin(ctx context.Context, chain domain.ChainAdapter, from string, amount decimal.Decimal) ([]domain.TransferLeg, error) {
	if splitter, ok := chain.(domain.StablecoinSplitter); ok {
		legs, err := splitter.PlanStablecoinTransfer(ctx, from, amount)
		if err != nil {
			return nil, err
		}
		if len(legs) == 0 {
			return nil, fmt.Errorf("no transfer planned for %s", amount)
		}
		return legs, nil
	}
	return []domain.TransferLeg{{Amount: amount}}, nil
}

func offsetNonce(nonce *uint64, i int) *uint64 {
	if nonce == nil {
		return nil
	}
	n := *nonce + uint64(i)
	return &n
}

// sweepNativeOnly handles a wallet with no stablecoin: move native above the reserve, or report nothing to do
func (uc *SweepUsecase) sweepNativeOnly(
	ctx context.Context,
	chain domain.ChainAdapter,
	wallet *domain.TempWallet,
	master *domain.MasterWallet,
	privateKey string,
	native decimal.Decimal,
	settings SweepSettings,
	result *domain.SweepResult,
) (*domain.SweepResult, error) {
	if native.LessThanOrEqual(settings.NativeReserve) {
		result.Success = true
		result.NothingToTransfer = true
		result.Stage = domain.SweepStageDone
		result.CompletedAt = time.Now()
		return result, nil
	}

	result.Stage = domain.SweepStageNativeSweep
	if err := uc.transferNative(ctx, chain, wallet, master, privateKey, native.Sub(settings.NativeReserve), result); err != nil {
		return result.Failed(domain.SweepStageNativeSweep, err), err
	}

	result.Success = true
	result.Stage = domain.SweepStageDone
	result.CompletedAt = time.Now()
	return result, nil
}

func (uc *SweepUsecase) sweepSurplusNative(
	ctx context.Context,
	chain domain.ChainAdapter,
	wallet *domain.TempWallet,
	master *domain.MasterWallet,
	privateKey string,
	settings SweepSettings,
	result *domain.SweepResult,
) error {
	native, err := chain.GetNativeBalance(ctx, wallet.Address)
	if err != nil {
		return fmt.Errorf("failed to read native balance: %w", err)
	}
	if native.LessThanOrEqual(settings.NativeReserve) {
		return nil
	}
	return uc.transferNative(ctx, chain, wallet, master, privateKey, native.Sub(settings.NativeReserve), result)
}

func (uc *SweepUsecase) transferNative(
	ctx context.Context,
	chain domain.ChainAdapter,
	wallet *domain.TempWallet,
	master *domain.MasterWallet,
	privateKey string,
	amount decimal.Decimal,
	result *domain.SweepResult,
) error {
	nonce, timedOut, err := uc.awaitPriorTx(ctx, chain, wallet.Address)
	if err != nil {
		return err
	}
	if timedOut {
		result.NonceWaitTimedOut = true
	}

	intent := domain.NewTransferIntent(domain.TransferKindNativeSweep, wallet.Network,
		walletRef(wallet.ID), wallet.Address, master.Address, amount)

	transfer, err := uc.broadcast(ctx, intent, func(ctx context.Context) (*domain.TransferResult, error) {
		return chain.TransferNative(ctx, &domain.TransferRequest{
			From:       wallet.Address,
			To:         master.Address,
			Amount:     amount,
			PrivateKey: privateKey,
			Nonce:      nonce,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to submit native transfer: %w", err)
	}
	result.NativeTxHash = transfer.TxHash

	if _, err := uc.confirm(ctx, chain, intent); err != nil {
		return err
	}
	result.NativeAmount = amount

	uc.logger.Info("Native swept",
		zap.Int64("wallet_id", wallet.ID),
		zap.String("amount", amount.String()),
		zap.String("symbol", chain.NativeSymbol()),
		zap.String("tx_hash", transfer.TxHash))
	return nil
}

// topUpGas funds the temp wallet from master so it can pay for its own transfer.
// A confirmed top-up is never reverted, later attempts find the gas already there.
func (uc *SweepUsecase) topUpGas(
	ctx context.Context,
	chain domain.ChainAdapter,
	wallet *domain.TempWallet,
	master *domain.MasterWallet,
	native decimal.Decimal,
	required decimal.Decimal,
	settings SweepSettings,
) (string, error) {
	shortfall := required.Sub(native)
	amount := decimal.Max(settings.MinTopUp, shortfall.Mul(settings.TopUpMargin))

	uc.logger.Info("Topping up gas",
		zap.Int64("wallet_id", wallet.ID),
		zap.String("native", native.String()),
		zap.String("required", required.String()),
		zap.String("top_up", amount.String()))

	intent := domain.NewTransferIntent(domain.TransferKindGasTopUp, wallet.Network,
		walletRef(wallet.ID), master.Address, wallet.Address, amount)

	transfer, err := uc.broadcast(ctx, intent, func(ctx context.Context) (*domain.TransferResult, error) {
		return chain.TransferNative(ctx, &domain.TransferRequest{
			From:       master.Address,
			To:         wallet.Address,
			Amount:     amount,
			PrivateKey: master.PrivateKey,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to send gas top-up: %w", err)
	}
	gasTopUpsTotal.WithLabelValues(wallet.Network.String()).Inc()

	if _, err := uc.confirm(ctx, chain, intent); err != nil {
		return transfer.TxHash, fmt.Errorf("gas top-up %s not confirmed: %w", transfer.TxHash, err)
	}

	// 2b. Wait for the funded balance to become visible
	deadline := time.Now().Add(uc.cfg.TopUpSettleTimeout)
	for {
		balance, err := chain.GetNativeBalance(ctx, wallet.Address)
		if err == nil && balance.GreaterThanOrEqual(required) {
			break
		}
		if time.Now().After(deadline) {
			uc.logger.Warn("Top-up confirmed but balance not yet visible, continuing",
				zap.Int64("wallet_id", wallet.ID),
				zap.String("tx_hash", transfer.TxHash))
			break
		}
		if err := sleep(ctx, uc.cfg.PollInterval); err != nil {
			return transfer.TxHash, err
		}
	}

	return transfer.TxHash, nil
}

// awaitPriorTx polls the address until no transaction is pending or the wait times out.
// It returns the nonce the next transfer should use, and whether it gave up waiting and
// queued the transfer behind the pending one.
func (uc *SweepUsecase) awaitPriorTx(ctx context.Context, chain domain.ChainAdapter, address string) (*uint64, bool, error) {
	deadline := time.Now().Add(uc.cfg.NonceWaitTimeout)

	for {
		state, err := chain.GetNonceState(ctx, address)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read nonce state: %w", err)
		}
		if !state.HasPending() {
			nonce := state.Pending
			return &nonce, false, nil
		}
		if time.Now().After(deadline) {
			uc.logger.Warn("Prior transaction still pending, submitting after it",
				zap.String("address", address),
				zap.Uint64("pending", state.Pending),
				zap.Uint64("latest", state.Latest))
			nonceWaitTimeoutsTotal.WithLabelValues(chain.Network().String()).Inc()
			nonce := state.Pending
			return &nonce, true, nil
		}
		if err := sleep(ctx, uc.cfg.PollInterval); err != nil {
			return nil, false, err
		}
	}
}

// ============================================================================
// MASTER -> EXTERNAL
// ============================================================================

// TransferFromMaster pays amount of stablecoin from the master wallet to destination
// and waits for confirmation. reference ties the transfers to a ledger transaction.
// An amount spread over several token contracts goes out as one WITHDRAW intent per leg,
// each confirmed before the next is sent. On error the returned transfers are the legs
// that were confirmed.
func (uc *SweepUsecase) TransferFromMaster(
	ctx context.Context,
	network domain.Network,
	destination string,
	amount decimal.Decimal,
	reference string,
) ([]*domain.TransferResult, error) {
	chain, err := uc.chainRegistry.Get(network)
	if err != nil {
		return nil, err
	}
	if err := chain.ValidateAddress(destination); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive, got %s", amount)
	}
	master, err := uc.master(network)
	if err != nil {
		return nil, err
	}

	liquidity, err := chain.GetStablecoinBalance(ctx, master.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read master balance: %w", err)
	}
	if liquidity.LessThan(amount) {
		return nil, &domain.InsufficientFundsError{
			Scope:     "master wallet",
			Asset:     chain.StablecoinSymbol(),
			Available: liquidity.String(),
			Required:  amount.String(),
		}
	}

	legs, err := planStablecoin(ctx, chain, master.Address, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to plan withdrawal: %w", err)
	}

	var transfers []*domain.TransferResult
	for _, leg := range legs {
		intent := domain.NewTransferIntent(domain.TransferKindWithdraw, network,
			reference, master.Address, destination, leg.Amount)

		transfer, err := uc.broadcast(ctx, intent, func(ctx context.Context) (*domain.TransferResult, error) {
			return chain.TransferStablecoin(ctx, &domain.TransferRequest{
				From:       master.Address,
				To:         destination,
				Amount:     leg.Amount,
				PrivateKey: master.PrivateKey,
				Contract:   leg.Contract,
			})
		})
		if err != nil {
			return transfers, fmt.Errorf("failed to submit withdrawal: %w", err)
		}

		if _, err := uc.confirm(ctx, chain, intent); err != nil {
			return transfers, err
		}
		transfers = append(transfers, transfer)

		uc.logger.Info("Master payout confirmed",
			zap.String("network", network.String()),
			zap.String("destination", destination),
			zap.String("amount", leg.Amount.String()),
			zap.String("reference", reference),
			zap.String("tx_hash", transfer.TxHash))
	}

	return transfers, nil
}

// SettleIntent checks a BROADCAST intent against the chain and records the outcome.
// A still-pending transaction yields ErrTransferInFlight.
func (uc *SweepUsecase) SettleIntent(ctx context.Context, intent *domain.TransferIntent) (*domain.TransferIntent, error) {
	if intent.Status != domain.IntentBroadcast {
		return intent, nil
	}

	chain, err := uc.chainRegistry.Get(intent.Network)
	if err != nil {
		return intent, err
	}

	if _, err := uc.confirm(ctx, chain, intent); err != nil {
		if errors.Is(err, domain.ErrConfirmationTimeout) {
			return intent, fmt.Errorf("tx %s: %w", intent.Hash(), domain.ErrTransferInFlight)
		}
		if errors.Is(err, domain.ErrTransactionFailed) {
			return intent, nil
		}
		return intent, err
	}
	return intent, nil
}

// ============================================================================
// INTENT BOOKKEEPING
// ============================================================================

// broadcast persists intent, runs submit and stamps the resulting hash
func (uc *SweepUsecase) broadcast(
	ctx context.Context,
	intent *domain.TransferIntent,
	submit func(ctx context.Context) (*domain.TransferResult, error),
) (*domain.TransferResult, error) {
	intents := uc.store.Repositories().Intents
	if err := intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to record transfer intent: %w", err)
	}

	transfer, err := submit(ctx)
	if err != nil {
		reason := err.Error()
		if tErr := intents.Transition(ctx, intent.ID, repository.IntentUpdate{
			From:  []domain.TransferIntentStatus{domain.IntentCreated},
			To:    domain.IntentFailed,
			Error: &reason,
		}); tErr != nil {
			uc.logger.Warn("Failed to mark intent failed", zap.String("intent_id", intent.ID.String()), zap.Error(tErr))
		}
		intent.Status = domain.IntentFailed
		intent.Error = &reason
		return nil, err
	}

	hash := transfer.TxHash
	intent.Status = domain.IntentBroadcast
	intent.TxHash = &hash
	if err := intents.Transition(ctx, intent.ID, repository.IntentUpdate{
		From:   []domain.TransferIntentStatus{domain.IntentCreated},
		To:     domain.IntentBroadcast,
		TxHash: &hash,
	}); err != nil {
		uc.logger.Error("Broadcast transaction not recorded on intent",
			zap.Bool("critical", true),
			zap.String("intent_id", intent.ID.String()),
			zap.String("kind", string(intent.Kind)),
			zap.String("tx_hash", hash),
			zap.Error(err))
	}

	return transfer, nil
}

// confirm waits for the intent's transaction and records CONFIRMED or FAILED.
// Kinds without a ledger effect are closed right away.
func (uc *SweepUsecase) confirm(ctx context.Context, chain domain.ChainAdapter, intent *domain.TransferIntent) (*domain.Confirmation, error) {
	intents := uc.store.Repositories().Intents
	open := []domain.TransferIntentStatus{domain.IntentCreated, domain.IntentBroadcast}

	conf, err := chain.WaitForConfirmation(ctx, intent.Hash(), uc.cfg.ConfirmTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionFailed) {
			reason := err.Error()
			if tErr := intents.Transition(ctx, intent.ID, repository.IntentUpdate{From: open, To: domain.IntentFailed, Error: &reason}); tErr != nil {
				uc.logger.Warn("Failed to mark intent failed", zap.String("intent_id", intent.ID.String()), zap.Error(tErr))
			}
			intent.Status = domain.IntentFailed
			intent.Error = &reason
		}
		return conf, err
	}

	to := domain.IntentConfirmed
	if !intent.Kind.AffectsLedger() {
		to = domain.IntentReconciled
	}
	update := repository.IntentUpdate{From: open, To: to}
	// the hash rides along in case the BROADCAST write was lost
	if hash := intent.Hash(); hash != "" {
		update.TxHash = &hash
	}
	if err := intents.Transition(ctx, intent.ID, update); err != nil {
		uc.logger.Error("Confirmed transaction not recorded on intent",
			zap.Bool("critical", true),
			zap.String("intent_id", intent.ID.String()),
			zap.String("tx_hash", intent.Hash()),
			zap.Error(err))
	}
	intent.Status = to

	return conf, nil
}

func walletRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
