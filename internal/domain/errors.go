// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrWalletExists            = errors.New("active wallet already exists")
	ErrBalanceNotFound         = errors.New("balance not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrIntentNotFound          = errors.New("transfer intent not found")
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	ErrInvalidAddress          = errors.New("invalid address")
	ErrUnsupportedNetwork      = errors.New("unsupported network")
	ErrConfirmationTimeout     = errors.New("confirmation timeout")
	ErrTransactionFailed       = errors.New("transaction failed on chain")
	ErrTransferInFlight        = errors.New("transfer already in flight")
)

// ConfigurationError reports a missing or malformed setting detected at startup
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// DecryptionError reports that no configured key could decrypt a private key
type DecryptionError struct {
	WalletID  int64
	Address   string
	KeyHash   string
	KeysTried int
	Err       error
}

func (e *DecryptionError) Error() string {
	msg := fmt.Sprintf("failed to decrypt private key after trying %d key(s)", e.KeysTried)
	if e.KeyHash != "" {
		msg += fmt.Sprintf(" (stored key hash %s)", e.KeyHash)
	}
	if e.Address != "" {
		msg += fmt.Sprintf(" for wallet %d (%s): add the matching key to CRYPTO_FALLBACK_KEYS", e.WalletID, e.Address)
	}
	return msg
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// ChainTransientError is a retryable RPC failure (rate limit, timeout, 5xx)
type ChainTransientError struct {
	Network    Network
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *ChainTransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s %s: transient chain error (retry in %s): %v", e.Network, e.Op, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s %s: transient chain error: %v", e.Network, e.Op, e.Err)
}

func (e *ChainTransientError) Unwrap() error { return e.Err }

// InsufficientFundsError reports a balance that cannot cover a transfer,
// either on chain or in the internal ledger
type InsufficientFundsError struct {
	Scope     string
	Asset     string
	Available string
	Required  string
	Err       error
}

func (e *InsufficientFundsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("insufficient %s %s: %v", e.Scope, e.Asset, e.Err)
	}
	return fmt.Sprintf("insufficient %s %s: available %s, required %s", e.Scope, e.Asset, e.Available, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return e.Err }

// ReconciliationError is raised when funds moved on chain but the ledger could not record it.
// It always requires operator attention.
type ReconciliationError struct {
	Network Network
	TxHash  string
	Ref     string
	Err     error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation required for %s tx %s (ref %s): %v", e.Network, e.TxHash, e.Ref, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a ChainTransientError
func IsTransient(err error) bool {
	var te *ChainTransientError
	return errors.As(err, &te)
}

// IsInsufficientFunds reports whether err carries an InsufficientFundsError
func IsInsufficientFunds(err error) bool {
	var ie *InsufficientFundsError
	return errors.As(err, &ie)
}
