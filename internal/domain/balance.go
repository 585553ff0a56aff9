// internal/domain/balance.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerScale is the number of decimal places kept in the internal ledger
const LedgerScale = 2

// Balance is a user's internal ledger balance. Amount only changes inside a database transaction.
type Balance struct {
	UserID    string
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

// LedgerAmount truncates a chain amount to ledger precision
func LedgerAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(LedgerScale)
}
