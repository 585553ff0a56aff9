// internal/chains/tron/wallet.go
package tron

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"settlement-service/internal/domain"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
)

func generateTronWallet() (*domain.GeneratedWallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return walletFromKey(privateKey), nil
}

// addressFromPrivateKey derives the base58 address of a hex private key
func addressFromPrivateKey(privateKeyHex string) (string, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	return walletFromKey(privateKey).Address, nil
}

func walletFromKey(privateKey *ecdsa.PrivateKey) *domain.GeneratedWallet {
	publicKey := privateKey.Public().(*ecdsa.PublicKey)

	return &domain.GeneratedWallet{
		Address:    address.PubkeyToAddress(*publicKey).String(),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(privateKey)),
		PublicKey:  hex.EncodeToString(crypto.FromECDSAPub(publicKey)),
		Network:    domain.NetworkTron,
	}
}
