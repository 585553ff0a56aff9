// internal/domain/sweep.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SweepStage names the orchestrator steps, used in logs and failure results
type SweepStage string

const (
	SweepStageInspect      SweepStage = "INSPECT"
	SweepStageGasTopUp     SweepStage = "GAS_TOPUP"
	SweepStageAwaitPriorTx SweepStage = "AWAIT_PRIOR_TX"
	SweepStageTransfer     SweepStage = "TRANSFER"
	SweepStageConfirm      SweepStage = "CONFIRM"
	SweepStageNativeSweep  SweepStage = "NATIVE_SWEEP"
	SweepStageDone         SweepStage = "DONE"
)

// SweepLeg is one confirmed stablecoin transfer of a sweep
type SweepLeg struct {
	Contract string
	Amount   decimal.Decimal
	TxHash   string
	Intent   uuid.UUID
}

// SweepResult is the outcome of moving a temp wallet's funds to the master wallet.
// StablecoinAmount is the confirmed total of StablecoinLegs, which can be positive on a
// failed result when a later leg did not go through. StablecoinTxHash is the first leg's hash.
type SweepResult struct {
	Success           bool
	NothingToTransfer bool
	Stage             SweepStage
	StablecoinAmount  decimal.Decimal
	StablecoinTxHash  string
	StablecoinLegs    []SweepLeg
	NativeAmount      decimal.Decimal
	NativeTxHash      string
	GasTopUpTxHash    string
	// NonceWaitTimedOut is set when a prior transaction was still pending and the
	// transfer was queued behind it
	NonceWaitTimedOut bool
	Error             string
	CompletedAt       time.Time
}

// Credited is the ledger credit of the confirmed legs, each truncated to ledger precision
func (r *SweepResult) Credited() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range r.StablecoinLegs {
		total = total.Add(LedgerAmount(leg.Amount))
	}
	return total
}

// Failed builds a failure result at the given stage
func (r *SweepResult) Failed(stage SweepStage, err error) *SweepResult {
	r.Success = false
	r.Stage = stage
	if err != nil {
		r.Error = err.Error()
	}
	r.CompletedAt = time.Now()
	return r
}

// SweepOptions tune a single sweep run
type SweepOptions struct {
	// SkipNativeSweep disables the opportunistic native sweep after the stablecoin transfer
	SkipNativeSweep bool
	// Amount overrides the full stablecoin balance when positive
	Amount decimal.Decimal
}
