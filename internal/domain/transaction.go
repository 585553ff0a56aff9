// internal/domain/transaction.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the ledger transaction kind
type TransactionType string

const (
	TransactionTypeCharge           TransactionType = "CHARGE"
	TransactionTypeWithdraw         TransactionType = "WITHDRAW"
	TransactionTypeMilestonePayment TransactionType = "MILESTONE_PAYMENT"
)

// TransactionStatus represents ledger transaction status
type TransactionStatus string

const (
	TransactionStatusDraft     TransactionStatus = "DRAFT"
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusSuccess   TransactionStatus = "SUCCESS"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// Transaction is a ledger record of money moving in or out of a user's balance
type Transaction struct {
	ID              int64
	ClientID        string
	Type            TransactionType
	Amount          decimal.Decimal
	WalletAddress   *string
	PaymentNetwork  PaymentNetwork
	Status          TransactionStatus
	TransactionHash *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsWithdrawPending reports whether the record can still be accepted as a payout
func (t *Transaction) IsWithdrawPending() bool {
	return t.Type == TransactionTypeWithdraw && t.Status == TransactionStatusPending
}

func (t *Transaction) Hash() string {
	if t.TransactionHash == nil {
		return ""
	}
	return *t.TransactionHash
}

// TransactionFilter narrows ledger listings
type TransactionFilter struct {
	ClientID *string
	Type     *TransactionType
	Status   *TransactionStatus
	Limit    int
}
