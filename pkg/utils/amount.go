// pkg/utils/amount.go
package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount to the smallest on-chain unit, truncating extra precision
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts smallest-unit integers to a human amount
func FromBaseUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// Normalize re-expresses a base-unit amount with fromDecimals as a human amount
// truncated to toDecimals places
func Normalize(amount *big.Int, fromDecimals, toDecimals int32) decimal.Decimal {
	return FromBaseUnits(amount, fromDecimals).Truncate(toDecimals)
}

// ToInt64Units converts to base units and fails if the value does not fit in int64
func ToInt64Units(amount decimal.Decimal, decimals int32) (int64, error) {
	units := ToBaseUnits(amount, decimals)
	if !units.IsInt64() {
		return 0, fmt.Errorf("amount %s overflows int64 base units", amount.String())
	}
	return units.Int64(), nil
}

// FormatAmount renders an amount with its symbol, trailing zeros trimmed
func FormatAmount(amount decimal.Decimal, symbol string) string {
	return fmt.Sprintf("%s %s", amount.String(), symbol)
}

// StringPtr returns pointer to string
func StringPtr(s string) *string {
	return &s
}
