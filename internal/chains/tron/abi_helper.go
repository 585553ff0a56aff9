// internal/chains/tron/abi_helper.go
package tron

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TRC20 function selectors, as accepted by triggerconstantcontract
const (
	transferSelector  = "transfer(address,uint256)"
	balanceOfSelector = "balanceOf(address)"
)

// encodeAddressParam encodes a base58 address as a 32-byte ABI word (0x41 prefix dropped)
func encodeAddressParam(addr string) (string, error) {
	parsed, err := parseAddress(addr)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(common.LeftPadBytes(parsed.Bytes()[1:], 32)), nil
}

// encodeBalanceOfParams encodes balanceOf(owner) arguments
func encodeBalanceOfParams(owner string) (string, error) {
	return encodeAddressParam(owner)
}

// encodeTransferParams encodes transfer(to, amount) arguments
func encodeTransferParams(to string, amount *big.Int) (string, error) {
	toParam, err := encodeAddressParam(to)
	if err != nil {
		return "", err
	}
	if amount.Sign() < 0 {
		return "", fmt.Errorf("negative amount")
	}
	return toParam + hex.EncodeToString(common.LeftPadBytes(amount.Bytes(), 32)), nil
}

// decodeUint256Hex decodes the first 32-byte word of a constant_result entry
func decodeUint256Hex(word string) (*big.Int, error) {
	b, err := hexDecode(word)
	if err != nil {
		return nil, fmt.Errorf("invalid uint256 result: %w", err)
	}
	if len(b) > 32 {
		b = b[:32]
	}
	return new(big.Int).SetBytes(b), nil
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
