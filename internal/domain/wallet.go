// internal/domain/wallet.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TempWalletStatus is the lifecycle state of a temporary deposit wallet
type TempWalletStatus string

const (
	TempWalletActive    TempWalletStatus = "ACTIVE"
	TempWalletCompleted TempWalletStatus = "COMPLETED"
	TempWalletInactive  TempWalletStatus = "INACTIVE"
)

// TempWallet is a per-user deposit address holding an encrypted private key.
// At most one ACTIVE wallet exists per (UserID, Network).
type TempWallet struct {
	ID      int64
	UserID  string
	Address string
	Network Network

	// Credentials: "iv_hex:ciphertext_hex", or legacy plaintext on old rows
	PrivateKey        string
	EncryptionKeyHash *string

	Status        TempWalletStatus
	TotalReceived decimal.Decimal
	LastCheckedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *TempWallet) IsActive() bool {
	return w.Status == TempWalletActive
}

// KeyHash returns the stored key hash or "" for rows written before hashes were recorded
func (w *TempWallet) KeyHash() string {
	if w.EncryptionKeyHash == nil {
		return ""
	}
	return *w.EncryptionKeyHash
}

// GeneratedWallet is a freshly generated keypair. PrivateKey is plaintext and
// must be encrypted before it leaves the process.
type GeneratedWallet struct {
	Address    string
	PrivateKey string
	PublicKey  string
	Network    Network
}

// MasterWallet is the platform-controlled wallet that funds gas and pays withdrawals
type MasterWallet struct {
	Network    Network
	Address    string
	PrivateKey string
}

// WalletBalances is a point-in-time read of both assets on a wallet
type WalletBalances struct {
	Address    string
	Network    Network
	Native     decimal.Decimal
	Stablecoin decimal.Decimal
	CheckedAt  time.Time
}

// WalletBalanceView pairs a temp wallet with its latest balances
type WalletBalanceView struct {
	WalletID int64            `json:"wallet_id"`
	UserID   string           `json:"user_id"`
	Address  string           `json:"address"`
	Network  Network          `json:"network"`
	Status   TempWalletStatus `json:"status"`
	Native   decimal.Decimal  `json:"native"`
	Stable   decimal.Decimal  `json:"stablecoin"`
}
