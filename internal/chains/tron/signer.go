// internal/chains/tron/signer.go
package tron

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"google.golang.org/protobuf/proto"
)

// signTransaction signs a TRON transaction in place
func signTransaction(tx *core.Transaction, privateKeyHex string) (*core.Transaction, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	hash, err := rawDataHash(tx)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	tx.Signature = [][]byte{signature}
	return tx, nil
}

// txID is the transaction id: hex(sha256(raw_data))
func txID(tx *core.Transaction) (string, error) {
	hash, err := rawDataHash(tx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

func rawDataHash(tx *core.Transaction) ([]byte, error) {
	if tx == nil || tx.RawData == nil {
		return nil, fmt.Errorf("transaction has no raw data")
	}

	rawData, err := proto.Marshal(tx.RawData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw data: %w", err)
	}

	hash := sha256.Sum256(rawData)
	return hash[:], nil
}

// signerAddress recovers the base58 address that signed tx
func signerAddress(tx *core.Transaction) (string, error) {
	if len(tx.Signature) == 0 {
		return "", fmt.Errorf("no signature found")
	}

	hash, err := rawDataHash(tx)
	if err != nil {
		return "", err
	}

	pubKey, err := crypto.SigToPub(hash, tx.Signature[0])
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}

	return address.PubkeyToAddress(*pubKey).String(), nil
}
