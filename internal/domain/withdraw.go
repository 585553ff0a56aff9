// internal/domain/withdraw.go
package domain

import (
	"errors"

	"github.com/jellydator/validation"
	"github.com/shopspring/decimal"
)

// WithdrawRequest asks for a ledger-backed payout to an external address
type WithdrawRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Destination string
	Network     PaymentNetwork
}

func (r WithdrawRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Destination, validation.Required),
		validation.Field(&r.Network, validation.Required, validation.In(PaymentNetworkUSDTTRC20, PaymentNetworkUSDCPolygon)),
		validation.Field(&r.Amount, validation.By(positiveAmount)),
	)
}

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	if !amount.Equal(LedgerAmount(amount)) {
		return errors.New("must have at most 2 decimal places")
	}
	return nil
}
