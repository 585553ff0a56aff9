// cmd/settlectl/cmds/views.go
package cmds

import (
	"time"

	"settlement-service/internal/domain"

	"github.com/google/uuid"
	"github.com/pandodao/generic"
	"github.com/shopspring/decimal"
)

// Views keep private keys and internal fields out of CLI output

type walletView struct {
	ID            int64                   `json:"id"`
	UserID        string                  `json:"user_id"`
	Address       string                  `json:"address"`
	Network       domain.Network          `json:"network"`
	Status        domain.TempWalletStatus `json:"status"`
	TotalReceived decimal.Decimal         `json:"total_received"`
	KeyHash       string                  `json:"key_hash,omitempty"`
	LastCheckedAt *time.Time              `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

func newWalletView(w *domain.TempWallet) walletView {
	v := walletView{
		ID:            w.ID,
		UserID:        w.UserID,
		Address:       w.Address,
		Network:       w.Network,
		Status:        w.Status,
		TotalReceived: w.TotalReceived,
		LastCheckedAt: w.LastCheckedAt,
		CreatedAt:     w.CreatedAt,
	}
	if w.EncryptionKeyHash != nil {
		v.KeyHash = *w.EncryptionKeyHash
	}
	return v
}

type transactionView struct {
	ID             int64                    `json:"id"`
	UserID         string                   `json:"user_id"`
	Type           domain.TransactionType   `json:"type"`
	Amount         decimal.Decimal          `json:"amount"`
	WalletAddress  string                   `json:"wallet_address,omitempty"`
	PaymentNetwork domain.PaymentNetwork    `json:"payment_network"`
	Status         domain.TransactionStatus `json:"status"`
	TxHash         string                   `json:"tx_hash,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

func newTransactionView(t *domain.Transaction) transactionView {
	v := transactionView{
		ID:             t.ID,
		UserID:         t.ClientID,
		Type:           t.Type,
		Amount:         t.Amount,
		PaymentNetwork: t.PaymentNetwork,
		Status:         t.Status,
		TxHash:         t.Hash(),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.WalletAddress != nil {
		v.WalletAddress = *t.WalletAddress
	}
	return v
}

type sweepLegView struct {
	Contract string          `json:"contract,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	TxHash   string          `json:"tx_hash"`
	Intent   uuid.UUID       `json:"intent"`
}

type sweepView struct {
	Success           bool              `json:"success"`
	NothingToTransfer bool              `json:"nothing_to_transfer,omitempty"`
	Stage             domain.SweepStage `json:"stage"`
	StablecoinAmount  decimal.Decimal   `json:"stablecoin_amount"`
	StablecoinTxHash  string            `json:"stablecoin_tx_hash,omitempty"`
	Legs              []sweepLegView    `json:"legs,omitempty"`
	NativeAmount      decimal.Decimal   `json:"native_amount"`
	NativeTxHash      string            `json:"native_tx_hash,omitempty"`
	GasTopUpTxHash    string            `json:"gas_top_up_tx_hash,omitempty"`
	NonceWaitTimedOut bool              `json:"nonce_wait_timed_out,omitempty"`
	Error             string            `json:"error,omitempty"`
}

func newSweepView(r *domain.SweepResult) sweepView {
	return sweepView{
		Success:           r.Success,
		NothingToTransfer: r.NothingToTransfer,
		Stage:             r.Stage,
		StablecoinAmount:  r.StablecoinAmount,
		StablecoinTxHash:  r.StablecoinTxHash,
		Legs: generic.MapSlice(r.StablecoinLegs, func(leg domain.SweepLeg) sweepLegView {
			return sweepLegView{Contract: leg.Contract, Amount: leg.Amount, TxHash: leg.TxHash, Intent: leg.Intent}
		}),
		NativeAmount:      r.NativeAmount,
		NativeTxHash:      r.NativeTxHash,
		GasTopUpTxHash:    r.GasTopUpTxHash,
		NonceWaitTimedOut: r.NonceWaitTimedOut,
		Error:             r.Error,
	}
}
