package utils

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseUnitConversions(t *testing.T) {
	assert.Equal(t, "50000000", ToBaseUnits(decimal.RequireFromString("50"), 6).String())
	assert.Equal(t, "1234567", ToBaseUnits(decimal.RequireFromString("1.2345679"), 6).String())
	assert.Equal(t, "20000000000000000", ToBaseUnits(decimal.RequireFromString("0.02"), 18).String())

	assert.True(t, FromBaseUnits(big.NewInt(20_000), 6).Equal(decimal.RequireFromString("0.02")))
	assert.True(t, FromBaseUnits(nil, 6).IsZero())
}

func TestNormalize(t *testing.T) {
	// 18-decimal token normalized to 6 places
	v, ok := new(big.Int).SetString("1500000123456789012", 10)
	require.True(t, ok)
	assert.Equal(t, "1.5", Normalize(v, 18, 6).String())

	assert.Equal(t, "12.345678", Normalize(big.NewInt(12_345_678), 6, 6).String())
}

func TestToInt64Units(t *testing.T) {
	n, err := ToInt64Units(decimal.RequireFromString("1.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), n)

	_, err = ToInt64Units(decimal.RequireFromString("100000000000000"), 18)
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "50.1 USDT", FormatAmount(decimal.RequireFromString("50.10"), "USDT"))
}
