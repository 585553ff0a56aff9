// internal/domain/transfer_intent.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferKind classifies an on-chain transfer performed by the engine
type TransferKind string

const (
	TransferKindSweep       TransferKind = "SWEEP"
	TransferKindNativeSweep TransferKind = "NATIVE_SWEEP"
	TransferKindGasTopUp    TransferKind = "GAS_TOPUP"
	TransferKindWithdraw    TransferKind = "WITHDRAW"
)

// AffectsLedger reports whether a confirmed transfer of this kind must be
// mirrored in the balances table before the intent can be closed
func (k TransferKind) AffectsLedger() bool {
	return k == TransferKindSweep || k == TransferKindWithdraw
}

// TransferIntentStatus tracks a transfer from "about to broadcast" to "ledger applied"
type TransferIntentStatus string

const (
	IntentCreated    TransferIntentStatus = "CREATED"
	IntentBroadcast  TransferIntentStatus = "BROADCAST"
	IntentConfirmed  TransferIntentStatus = "CONFIRMED"
	IntentFailed     TransferIntentStatus = "FAILED"
	IntentReconciled TransferIntentStatus = "RECONCILED"
)

// TransferIntent is written before a transaction is broadcast so that a crash
// between broadcast and the ledger write can be repaired later.
// Reference is the wallet id for sweeps and top-ups, the ledger transaction id for withdrawals.
type TransferIntent struct {
	ID          uuid.UUID
	Kind        TransferKind
	Network     Network
	Reference   string
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
	Status      TransferIntentStatus
	TxHash      *string
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTransferIntent builds an intent in CREATED state
func NewTransferIntent(kind TransferKind, network Network, reference, from, to string, amount decimal.Decimal) *TransferIntent {
	now := time.Now()
	return &TransferIntent{
		ID:          uuid.New(),
		Kind:        kind,
		Network:     network,
		Reference:   reference,
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		Status:      IntentCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (i *TransferIntent) Hash() string {
	if i.TxHash == nil {
		return ""
	}
	return *i.TxHash
}

// Open reports whether the intent still needs chain or ledger work
func (i *TransferIntent) Open() bool {
	return i.Status == IntentCreated || i.Status == IntentBroadcast || i.Status == IntentConfirmed
}
