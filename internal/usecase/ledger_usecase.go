// internal/usecase/ledger_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"settlement-service/internal/chains"
	"settlement-service/internal/domain"
	"settlement-service/internal/events"
	"settlement-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LedgerConfig struct {
	// ReconcileGrace keeps the reconciler away from intents a live request may still own
	ReconcileGrace time.Duration
	ReconcileBatch int
	// SettleTimeout bounds the on-chain check of one BROADCAST intent
	SettleTimeout time.Duration
}

func (c *LedgerConfig) setDefaults() {
	if c.ReconcileGrace <= 0 {
		c.ReconcileGrace = 2 * time.Minute
	}
	if c.ReconcileBatch <= 0 {
		c.ReconcileBatch = 100
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 15 * time.Second
	}
}

// LedgerUsecase keeps the balances table in step with money that moved on chain
type LedgerUsecase struct {
	store         repository.Store
	sweeper       *SweepUsecase
	chainRegistry *chains.Registry
	publisher     events.Publisher
	cfg           LedgerConfig
	logger        *zap.Logger
}

func NewLedgerUsecase(
	store repository.Store,
	sweeper *SweepUsecase,
	chainRegistry *chains.Registry,
	publisher events.Publisher,
	cfg LedgerConfig,
	logger *zap.Logger,
) *LedgerUsecase {
	cfg.setDefaults()
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &LedgerUsecase{
		store:         store,
		sweeper:       sweeper,
		chainRegistry: chainRegistry,
		publisher:     publisher,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "ledger_usecase")),
	}
}

// ============================================================================
// SWEEP ACCEPTANCE
// ============================================================================

// AcceptSweep sweeps a temp wallet and, in one database transaction, credits the
// user and marks the wallet COMPLETED. Nothing is written if the sweep moved nothing.
// When a later leg of a multi-contract sweep fails, the confirmed legs are credited,
// the wallet stays ACTIVE and the sweep error is returned.
func (uc *LedgerUsecase) AcceptSweep(ctx context.Context, walletID int64) (*domain.SweepResult, error) {
	var (
		wallet   *domain.TempWallet
		result   *domain.SweepResult
		sweepErr error
	)

	err := uc.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		sweepErr = nil

		// 1. Lock the wallet
		w, err := repos.Wallets.GetByIDForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if !w.IsActive() {
			return fmt.Errorf("wallet %d is %s: %w", w.ID, w.Status, domain.ErrInvalidTransactionState)
		}
		wallet = w

		// 2. Move the funds
		res, err := uc.sweeper.Sweep(ctx, w, domain.SweepOptions{})
		result = res
		if err != nil {
			if res == nil || len(res.StablecoinLegs) == 0 {
				return err
			}
			sweepErr = err
		}

		// 3. Record them
		return uc.applySweep(ctx, repos, w, res.StablecoinLegs, sweepErr == nil)
	})
	if err != nil {
		if wallet != nil && result != nil && result.StablecoinAmount.IsPositive() {
			err = uc.reconciliationFailure(ctx, &domain.ReconciliationError{
				Network: wallet.Network,
				TxHash:  result.StablecoinTxHash,
				Ref:     walletRef(wallet.ID),
				Err:     err,
			}, domain.TransferKindSweep, wallet.UserID, result.StablecoinAmount)
		}
		return result, err
	}

	credited := result.Credited()
	if credited.IsPositive() {
		events.Notify(ctx, uc.publisher, &events.SettlementEvent{
			EventType: events.SweepCompleted,
			UserID:    wallet.UserID,
			Network:   wallet.Network.String(),
			Reference: walletRef(wallet.ID),
			Amount:    credited.StringFixed(domain.LedgerScale),
			TxHash:    result.StablecoinTxHash,
		}, uc.logger)
	}

	if sweepErr != nil {
		uc.logger.Warn("Sweep partially accepted, wallet stays active",
			zap.Int64("wallet_id", wallet.ID),
			zap.String("user_id", wallet.UserID),
			zap.String("credited", credited.String()),
			zap.Int("legs", len(result.StablecoinLegs)),
			zap.Error(sweepErr))
		return result, sweepErr
	}

	uc.logger.Info("Sweep accepted",
		zap.Int64("wallet_id", wallet.ID),
		zap.String("user_id", wallet.UserID),
		zap.String("credited", credited.String()),
		zap.Int("legs", len(result.StablecoinLegs)),
		zap.Bool("nothing_to_transfer", result.NothingToTransfer))

	return result, nil
}

// applySweep credits every confirmed leg (each truncated to ledger precision) and closes
// its intent. complete marks the wallet COMPLETED.
func (uc *LedgerUsecase) applySweep(
	ctx context.Context,
	repos repository.Repositories,
	wallet *domain.TempWallet,
	legs []domain.SweepLeg,
	complete bool,
) error {
	for _, leg := range legs {
		credit := domain.LedgerAmount(leg.Amount)

		if credit.IsPositive() {
			if _, err := repos.Balances.Credit(ctx, wallet.UserID, credit); err != nil {
				return err
			}
			if err := repos.Wallets.AddReceived(ctx, wallet.ID, credit); err != nil {
				return err
			}

			address := wallet.Address
			hash := leg.TxHash
			if err := repos.Transactions.Create(ctx, &domain.Transaction{
				ClientID:        wallet.UserID,
				Type:            domain.TransactionTypeCharge,
				Amount:          credit,
				WalletAddress:   &address,
				PaymentNetwork:  wallet.Network.PaymentNetwork(),
				Status:          domain.TransactionStatusSuccess,
				TransactionHash: &hash,
			}); err != nil {
				return err
			}
		}

		if leg.Intent != uuid.Nil {
			if err := repos.Intents.Transition(ctx, leg.Intent, repository.IntentUpdate{
				From: []domain.TransferIntentStatus{domain.IntentConfirmed},
				To:   domain.IntentReconciled,
			}); err != nil {
				return err
			}
		}
	}

	if complete && wallet.IsActive() {
		return repos.Wallets.UpdateStatus(ctx, wallet.ID, domain.TempWalletCompleted)
	}
	return nil
}

// ============================================================================
// WITHDRAWALS
// ============================================================================

// RequestWithdraw validates a withdrawal and records it as a PENDING transaction
func (uc *LedgerUsecase) RequestWithdraw(ctx context.Context, req *domain.WithdrawRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid withdraw request: %w", err)
	}

	network, err := req.Network.Network()
	if err != nil {
		return nil, err
	}
	chain, err := uc.chainRegistry.Get(network)
	if err != nil {
		return nil, err
	}
	if err := chain.ValidateAddress(req.Destination); err != nil {
		return nil, err
	}

	repos := uc.store.Repositories()
	available, err := uc.available(ctx, repos.Balances.Get, req.UserID)
	if err != nil {
		return nil, err
	}
	if available.LessThan(req.Amount) {
		withdrawalsTotal.WithLabelValues("rejected").Inc()
		return nil, insufficientLedger(req.Network, available, req.Amount)
	}

	destination := req.Destination
	tx := &domain.Transaction{
		ClientID:       req.UserID,
		Type:           domain.TransactionTypeWithdraw,
		Amount:         domain.LedgerAmount(req.Amount),
		WalletAddress:  &destination,
		PaymentNetwork: req.Network,
		Status:         domain.TransactionStatusPending,
	}
	if err := repos.Transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	uc.logger.Info("Withdrawal requested",
		zap.Int64("transaction_id", tx.ID),
		zap.String("user_id", req.UserID),
		zap.String("amount", tx.Amount.String()),
		zap.String("network", string(req.Network)))

	return tx, nil
}

// AcceptWithdraw pays out a PENDING withdrawal from the master wallet and debits the user.
// On any failure the transaction stays PENDING. A retry reuses earlier confirmed payouts
// and only sends what they do not cover.
func (uc *LedgerUsecase) AcceptWithdraw(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	var (
		tx   *domain.Transaction
		paid []*domain.TransferIntent
	)

	err := uc.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// 1. Lock and check the transaction
		t, err := repos.Transactions.GetByIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if !t.IsWithdrawPending() {
			return fmt.Errorf("transaction %d is %s %s: %w", t.ID, t.Type, t.Status, domain.ErrInvalidTransactionState)
		}

		// 2. Balance guard, before any chain call
		available, err := uc.available(ctx, repos.Balances.GetForUpdate, t.ClientID)
		if err != nil {
			return err
		}
		if available.LessThan(t.Amount) {
			return insufficientLedger(t.PaymentNetwork, available, t.Amount)
		}

		// 3. Pay out, or pick up earlier payouts
		intents, err := uc.payout(ctx, t)
		if err != nil {
			return err
		}
		paid = intents

		// 4. Ledger
		if err := uc.applyPayout(ctx, repos, t, paid); err != nil {
			return err
		}
		tx = t
		return nil
	})
	if err != nil {
		switch {
		case len(paid) > 0:
			withdrawalsTotal.WithLabelValues("unrecorded").Inc()
			return nil, uc.reconciliationFailure(ctx, &domain.ReconciliationError{
				Network: paid[0].Network,
				TxHash:  paid[0].Hash(),
				Ref:     paid[0].Reference,
				Err:     err,
			}, domain.TransferKindWithdraw, "", intentTotal(paid))
		case domain.IsInsufficientFunds(err), errors.Is(err, domain.ErrInvalidTransactionState):
			withdrawalsTotal.WithLabelValues("rejected").Inc()
		default:
			withdrawalsTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	withdrawalsTotal.WithLabelValues("success").Inc()
	events.Notify(ctx, uc.publisher, &events.SettlementEvent{
		EventType: events.WithdrawalCompleted,
		UserID:    tx.ClientID,
		Network:   string(tx.PaymentNetwork),
		Reference: strconv.FormatInt(tx.ID, 10),
		Amount:    tx.Amount.StringFixed(domain.LedgerScale),
		TxHash:    tx.Hash(),
	}, uc.logger)

	uc.logger.Info("Withdrawal accepted",
		zap.Int64("transaction_id", tx.ID),
		zap.String("user_id", tx.ClientID),
		zap.String("amount", tx.Amount.String()),
		zap.Int("legs", len(paid)),
		zap.String("tx_hash", tx.Hash()))

	return tx, nil
}

// applyPayout debits the user, marks t SUCCESS with the first leg's hash and closes the
// CONFIRMED intents that paid it
func (uc *LedgerUsecase) applyPayout(ctx context.Context, repos repository.Repositories, t *domain.Transaction, paid []*domain.TransferIntent) error {
	if _, err := repos.Balances.Debit(ctx, t.ClientID, t.Amount); err != nil {
		return err
	}

	hash := paid[0].Hash()
	if err := repos.Transactions.UpdateStatus(ctx, t.ID, domain.TransactionStatusPending, domain.TransactionStatusSuccess, &hash); err != nil {
		return err
	}

	for _, intent := range paid {
		if intent.Status != domain.IntentConfirmed {
			continue
		}
		if err := repos.Intents.Transition(ctx, intent.ID, repository.IntentUpdate{
			From: []domain.TransferIntentStatus{domain.IntentConfirmed},
			To:   domain.IntentReconciled,
		}); err != nil {
			return err
		}
	}

	t.Status = domain.TransactionStatusSuccess
	t.TransactionHash = &hash
	return nil
}

// payout returns the confirmed withdraw intents that together cover t, sending only the
// part no earlier attempt has confirmed
func (uc *LedgerUsecase) payout(ctx context.Context, t *domain.Transaction) ([]*domain.TransferIntent, error) {
	network, err := t.PaymentNetwork.Network()
	if err != nil {
		return nil, err
	}
	if t.WalletAddress == nil || *t.WalletAddress == "" {
		return nil, fmt.Errorf("transaction %d has no destination: %w", t.ID, domain.ErrInvalidAddress)
	}

	ref := strconv.FormatInt(t.ID, 10)

	paid, err := uc.paidSoFar(ctx, t.ID, ref)
	if err != nil {
		return nil, err
	}

	remaining := t.Amount.Sub(intentTotal(paid))
	if !remaining.IsPositive() {
		uc.logger.Info("Reusing confirmed payout",
			zap.Int64("transaction_id", t.ID),
			zap.Int("legs", len(paid)),
			zap.String("tx_hash", paid[0].Hash()))
		return paid, nil
	}
	if len(paid) > 0 {
		uc.logger.Info("Resuming partial payout",
			zap.Int64("transaction_id", t.ID),
			zap.String("paid", intentTotal(paid).String()),
			zap.String("remaining", remaining.String()))
	}

	if _, err := uc.sweeper.TransferFromMaster(ctx, network, *t.WalletAddress, remaining, ref); err != nil {
		return nil, err
	}

	paid, err = uc.paidSoFar(ctx, t.ID, ref)
	if err != nil {
		return nil, err
	}
	if total := intentTotal(paid); total.LessThan(t.Amount) {
		return nil, fmt.Errorf("withdrawal %d paid %s of %s: %w", t.ID, total, t.Amount, domain.ErrTransferInFlight)
	}
	return paid, nil
}

// paidSoFar settles earlier payout attempts for a withdrawal and returns the confirmed ones.
// A CREATED intent, or a BROADCAST one that is still pending, means a payout is in flight.
func (uc *LedgerUsecase) paidSoFar(ctx context.Context, transactionID int64, ref string) ([]*domain.TransferIntent, error) {
	intents, err := uc.store.Repositories().Intents.ListByReference(ctx, domain.TransferKindWithdraw, ref)
	if err != nil {
		return nil, err
	}

	var paid []*domain.TransferIntent
	for _, intent := range intents {
		switch intent.Status {
		case domain.IntentCreated:
			return nil, fmt.Errorf("withdrawal %d: %w", transactionID, domain.ErrTransferInFlight)
		case domain.IntentBroadcast:
			settled, err := uc.sweeper.SettleIntent(ctx, intent)
			if err != nil {
				return nil, err
			}
			if settled.Status != domain.IntentConfirmed {
				uc.logger.Warn("Earlier payout failed on chain",
					zap.Int64("transaction_id", transactionID),
					zap.String("tx_hash", settled.Hash()))
				continue
			}
			intent = settled
		case domain.IntentFailed:
			continue
		}
		paid = append(paid, intent)
	}
	return paid, nil
}

// intentTotal sums the amounts of CONFIRMED and RECONCILED intents
func intentTotal(intents []*domain.TransferIntent) decimal.Decimal {
	total := decimal.Zero
	for _, intent := range intents {
		if intent.Status == domain.IntentConfirmed || intent.Status == domain.IntentReconciled {
			total = total.Add(intent.Amount)
		}
	}
	return total
}

func (uc *LedgerUsecase) available(
	ctx context.Context,
	get func(ctx context.Context, userID string) (*domain.Balance, error),
	userID string,
) (decimal.Decimal, error) {
	balance, err := get(ctx, userID)
	if errors.Is(err, domain.ErrBalanceNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Amount, nil
}

func insufficientLedger(network domain.PaymentNetwork, available, required decimal.Decimal) error {
	return &domain.InsufficientFundsError{
		Scope:     "ledger",
		Asset:     string(network),
		Available: available.StringFixed(domain.LedgerScale),
		Required:  required.StringFixed(domain.LedgerScale),
	}
}

// ============================================================================
// RECONCILIATION
// ============================================================================

var (
	errAlreadyReconciled = errors.New("intent already reconciled")
	errPayoutIncomplete  = errors.New("confirmed payouts do not cover the withdrawal")
)

type ReconcileReport struct {
	Scanned    int `json:"scanned"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Abandoned  int `json:"abandoned"`
	Errors     int `json:"errors"`
}

// ReconcileIntents settles open transfer intents against the chain and applies any
// ledger effect that a failed request left behind. Running it twice changes nothing.
func (uc *LedgerUsecase) ReconcileIntents(ctx context.Context) (*ReconcileReport, error) {
	intents, err := uc.store.Repositories().Intents.ListOpen(ctx, time.Now().Add(-uc.cfg.ReconcileGrace), uc.cfg.ReconcileBatch)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(intents)}
	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := uc.reconcileIntent(ctx, intent, report); err != nil {
			report.Errors++
			_ = uc.reconciliationFailure(ctx, &domain.ReconciliationError{
				Network: intent.Network,
				TxHash:  intent.Hash(),
				Ref:     intent.Reference,
				Err:     err,
			}, intent.Kind, "", intent.Amount)
		}
	}

	if report.Scanned > 0 {
		uc.logger.Info("Reconciliation pass finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("reconciled", report.Reconciled),
			zap.Int("failed", report.Failed),
			zap.Int("pending", report.Pending),
			zap.Int("abandoned", report.Abandoned),
			zap.Int("errors", report.Errors))
	}
	return report, nil
}

func (uc *LedgerUsecase) reconcileIntent(ctx context.Context, intent *domain.TransferIntent, report *ReconcileReport) error {
	switch intent.Status {
	case domain.IntentCreated:
		// no hash was ever stored for it
		reason := "abandoned before broadcast"
		if err := uc.store.Repositories().Intents.Transition(ctx, intent.ID, repository.IntentUpdate{
			From:  []domain.TransferIntentStatus{domain.IntentCreated},
			To:    domain.IntentFailed,
			Error: &reason,
		}); err != nil {
			return err
		}
		uc.logger.Warn("Abandoned transfer intent closed",
			zap.String("intent_id", intent.ID.String()),
			zap.String("kind", string(intent.Kind)),
			zap.String("reference", intent.Reference))
		report.Abandoned++
		return nil

	case domain.IntentBroadcast:
		settleCtx, cancel := context.WithTimeout(ctx, uc.cfg.SettleTimeout)
		settled, err := uc.sweeper.SettleIntent(settleCtx, intent)
		cancel()
		if errors.Is(err, domain.ErrTransferInFlight) {
			report.Pending++
			return nil
		}
		if err != nil {
			return err
		}
		switch settled.Status {
		case domain.IntentFailed:
			report.Failed++
			return nil
		case domain.IntentReconciled:
			report.Reconciled++
			return nil
		}
	}

	if intent.Status != domain.IntentConfirmed {
		return nil
	}

	err := uc.applyIntent(ctx, intent)
	switch {
	case errors.Is(err, errAlreadyReconciled):
		return nil
	case errors.Is(err, errPayoutIncomplete):
		uc.logger.Info("Withdrawal payout incomplete, left for the next accept",
			zap.String("intent_id", intent.ID.String()),
			zap.String("reference", intent.Reference),
			zap.String("reason", err.Error()))
		report.Pending++
		return nil
	case err != nil:
		return err
	}
	report.Reconciled++
	return nil
}

// applyIntent writes the ledger effect of a CONFIRMED intent and closes it in the same transaction
func (uc *LedgerUsecase) applyIntent(ctx context.Context, intent *domain.TransferIntent) error {
	var event *events.SettlementEvent

	err := uc.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		event = nil
		switch intent.Kind {
		case domain.TransferKindSweep:
			walletID, err := strconv.ParseInt(intent.Reference, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse wallet reference %q: %w", intent.Reference, err)
			}
			wallet, err := repos.Wallets.GetByIDForUpdate(ctx, walletID)
			if err != nil {
				return err
			}
			leg := domain.SweepLeg{Amount: intent.Amount, TxHash: intent.Hash(), Intent: intent.ID}
			if err := uc.applySweep(ctx, repos, wallet, []domain.SweepLeg{leg}, true); err != nil {
				return err
			}
			event = &events.SettlementEvent{
				EventType: events.SweepCompleted,
				UserID:    wallet.UserID,
				Network:   wallet.Network.String(),
				Reference: intent.Reference,
				Amount:    domain.LedgerAmount(intent.Amount).StringFixed(domain.LedgerScale),
				TxHash:    intent.Hash(),
			}
			return nil

		case domain.TransferKindWithdraw:
			txID, err := strconv.ParseInt(intent.Reference, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse transaction reference %q: %w", intent.Reference, err)
			}
			t, err := repos.Transactions.GetByIDForUpdate(ctx, txID)
			if err != nil {
				return err
			}
			if !t.IsWithdrawPending() {
				break
			}

			// every leg of the payout has to be confirmed before the debit
			legs, err := repos.Intents.ListByReference(ctx, domain.TransferKindWithdraw, intent.Reference)
			if err != nil {
				return err
			}
			var paid []*domain.TransferIntent
			for _, leg := range legs {
				if leg.Status == domain.IntentConfirmed || leg.Status == domain.IntentReconciled {
					paid = append(paid, leg)
				}
			}
			if total := intentTotal(paid); total.LessThan(t.Amount) {
				return fmt.Errorf("withdrawal %d paid %s of %s: %w", t.ID, total, t.Amount, errPayoutIncomplete)
			}

			if err := uc.applyPayout(ctx, repos, t, paid); err != nil {
				return err
			}
			event = &events.SettlementEvent{
				EventType: events.WithdrawalCompleted,
				UserID:    t.ClientID,
				Network:   string(t.PaymentNetwork),
				Reference: intent.Reference,
				Amount:    t.Amount.StringFixed(domain.LedgerScale),
				TxHash:    t.Hash(),
			}
			return nil
		}

		return repos.Intents.Transition(ctx, intent.ID, repository.IntentUpdate{
			From: []domain.TransferIntentStatus{domain.IntentConfirmed},
			To:   domain.IntentReconciled,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransactionState) && uc.alreadyReconciled(ctx, intent) {
			uc.logger.Info("Transfer intent already reconciled",
				zap.String("intent_id", intent.ID.String()),
				zap.String("kind", string(intent.Kind)),
				zap.String("reference", intent.Reference))
			intent.Status = domain.IntentReconciled
			return errAlreadyReconciled
		}
		return err
	}

	intent.Status = domain.IntentReconciled
	uc.logger.Info("Transfer intent reconciled",
		zap.String("intent_id", intent.ID.String()),
		zap.String("kind", string(intent.Kind)),
		zap.String("reference", intent.Reference),
		zap.String("tx_hash", intent.Hash()))

	if event != nil {
		events.Notify(ctx, uc.publisher, event, uc.logger)
	}
	return nil
}

// alreadyReconciled reports whether another writer closed intent after it was listed.
// A withdraw intent also needs its transaction to be SUCCESS.
func (uc *LedgerUsecase) alreadyReconciled(ctx context.Context, intent *domain.TransferIntent) bool {
	repos := uc.store.Repositories()

	current, err := repos.Intents.GetByID(ctx, intent.ID)
	if err != nil || current.Status != domain.IntentReconciled {
		return false
	}
	if intent.Kind != domain.TransferKindWithdraw {
		return true
	}

	txID, err := strconv.ParseInt(intent.Reference, 10, 64)
	if err != nil {
		return false
	}
	t, err := repos.Transactions.GetByID(ctx, txID)
	return err == nil && t.Status == domain.TransactionStatusSuccess
}

// reconciliationFailure reports funds that moved on chain without a ledger record
func (uc *LedgerUsecase) reconciliationFailure(
	ctx context.Context,
	recErr *domain.ReconciliationError,
	kind domain.TransferKind,
	userID string,
	amount decimal.Decimal,
) error {
	reconciliationErrorsTotal.WithLabelValues(string(kind)).Inc()

	uc.logger.Error("Ledger write failed after on-chain transfer",
		zap.Bool("critical", true),
		zap.String("kind", string(kind)),
		zap.String("network", recErr.Network.String()),
		zap.String("tx_hash", recErr.TxHash),
		zap.String("reference", recErr.Ref),
		zap.String("amount", amount.String()),
		zap.Error(recErr.Err))

	events.Notify(ctx, uc.publisher, &events.SettlementEvent{
		EventType: events.ReconciliationFailed,
		UserID:    userID,
		Network:   recErr.Network.String(),
		Reference: recErr.Ref,
		Amount:    amount.String(),
		TxHash:    recErr.TxHash,
		Error:     recErr.Err.Error(),
	}, uc.logger)

	return recErr
}
