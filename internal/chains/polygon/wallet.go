// internal/chains/polygon/wallet.go
package polygon

import (
	"crypto/ecdsa"
	"fmt"

	"settlement-service/internal/domain"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func generatePolygonWallet() (*domain.GeneratedWallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return walletFromKey(privateKey), nil
}

// addressFromPrivateKey derives the checksummed address of a hex private key
func addressFromPrivateKey(privateKeyHex string) (string, error) {
	privateKey, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	return walletFromKey(privateKey).Address, nil
}

func walletFromKey(privateKey *ecdsa.PrivateKey) *domain.GeneratedWallet {
	publicKey := privateKey.Public().(*ecdsa.PublicKey)

	return &domain.GeneratedWallet{
		Address:    crypto.PubkeyToAddress(*publicKey).Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(privateKey)),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(publicKey)),
		Network:    domain.NetworkPolygon,
	}
}
