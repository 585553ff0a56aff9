// internal/chains/polygon/signer.go
package polygon

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func parsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return privateKey, nil
}

// signTransaction signs a legacy transaction with EIP-155 replay protection
func signTransaction(tx *types.Transaction, privateKeyHex string, chainID *big.Int) (*types.Transaction, error) {
	privateKey, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return signedTx, nil
}

// recoverSigner recovers the sender address from a signed transaction
func recoverSigner(tx *types.Transaction, chainID *big.Int) (string, error) {
	sender, err := types.Sender(types.NewEIP155Signer(chainID), tx)
	if err != nil {
		return "", fmt.Errorf("failed to recover sender: %w", err)
	}
	return sender.Hex(), nil
}
