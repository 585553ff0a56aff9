// internal/chains/tron/utils.go
package tron

import (
	"fmt"

	"settlement-service/internal/domain"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
)

const (
	trxDecimals  = 6
	usdtDecimals = 6

	// mainnet address prefix byte
	addressPrefix = 0x41
)

// parseAddress safely converts a Base58 TRON address to Address type
func parseAddress(addr string) (address.Address, error) {
	parsed, err := address.Base58ToAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: TRON address %s: %v", domain.ErrInvalidAddress, addr, err)
	}
	if len(parsed) != address.AddressLength || parsed[0] != addressPrefix {
		return nil, fmt.Errorf("%w: TRON address %s", domain.ErrInvalidAddress, addr)
	}
	return parsed, nil
}

// validateTronAddress validates TRON address format
func validateTronAddress(addr string) error {
	_, err := parseAddress(addr)
	return err
}
