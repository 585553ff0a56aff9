// internal/domain/chain.go
package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ChainAdapter is the uniform surface every settlement chain implements.
// Amounts crossing this boundary are human units (TRX, POL, USDT, USDC).
type ChainAdapter interface {
	// Network returns the chain identifier
	Network() Network

	// NativeSymbol returns the gas coin symbol (TRX, POL)
	NativeSymbol() string

	// StablecoinSymbol returns the settled token symbol (USDT, USDC)
	StablecoinSymbol() string

	// GenerateWallet creates a new keypair
	GenerateWallet(ctx context.Context) (*GeneratedWallet, error)

	// ValidateAddress validates address format
	ValidateAddress(address string) error

	GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// GetStablecoinBalance returns the token balance normalized to 6 decimals
	GetStablecoinBalance(ctx context.Context, address string) (decimal.Decimal, error)

	TransferStablecoin(ctx context.Context, req *TransferRequest) (*TransferResult, error)
	TransferNative(ctx context.Context, req *TransferRequest) (*TransferResult, error)

	// WaitForConfirmation polls until the transaction is final, failed, or timeout elapses
	WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*Confirmation, error)

	// EstimateRequiredGas returns the native amount needed to move a stablecoin transfer
	EstimateRequiredGas(ctx context.Context, req *GasEstimateRequest) (*GasEstimate, error)

	// GetNonceState reports pending vs latest nonce. Chains without nonces report equal values.
	GetNonceState(ctx context.Context, address string) (*NonceState, error)
}

// TransferRequest describes a transfer signed with PrivateKey.
// Nonce and Gas pin the submission when set. Contract restricts a stablecoin
// transfer to one token contract on chains that hold the asset on several.
type TransferRequest struct {
	From       string
	To         string
	Amount     decimal.Decimal
	PrivateKey string
	Contract   string
	Nonce      *uint64
	Gas        *GasEstimate
}

// TransferLeg is the part of a stablecoin transfer sent from one token contract
type TransferLeg struct {
	Contract string
	Amount   decimal.Decimal
}

// StablecoinSplitter is implemented by chains whose stablecoin balance spans several
// token contracts. The legs cover amount in full and are sent as separate transactions.
type StablecoinSplitter interface {
	PlanStablecoinTransfer(ctx context.Context, from string, amount decimal.Decimal) ([]TransferLeg, error)
}

// TransferResult is the canonical outcome of a broadcast
type TransferResult struct {
	TxHash      string
	Network     Network
	From        string
	To          string
	Amount      decimal.Decimal
	Nonce       *uint64
	SubmittedAt time.Time
}

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// Confirmation is the final on-chain state of a transaction
type Confirmation struct {
	TxHash      string
	Status      TxStatus
	BlockNumber int64
	Fee         decimal.Decimal
}

func (c *Confirmation) Succeeded() bool {
	return c != nil && c.Status == TxStatusConfirmed
}

// GasEstimateRequest describes the stablecoin transfer to price
type GasEstimateRequest struct {
	From     string
	To       string
	Amount   decimal.Decimal
	Contract string
}

// GasEstimate is the native cost of a stablecoin transfer.
// Units is energy on TRON and gas on EVM chains; UnitPrice is in base units (SUN / wei).
type GasEstimate struct {
	Units      uint64
	UnitPrice  *big.Int
	NativeCost decimal.Decimal
	Simulated  bool
}

// NonceState is the pending vs mined transaction count of an address
type NonceState struct {
	Pending uint64
	Latest  uint64
}

// HasPending reports whether the address has unmined transactions
func (n *NonceState) HasPending() bool {
	return n.Pending > n.Latest
}
