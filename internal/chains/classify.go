// internal/chains/classify.go
package chains

import (
	"context"
	"errors"
	"strings"

	"settlement-service/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var transientPatterns = []string{
	"429",
	"too many requests",
	"rate limit",
	"exceeds the limit",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	"temporarily unavailable",
	"server_busy",
	"header not found",
	"retry in",
}

var insufficientPatterns = []string{
	"insufficient funds",
	"insufficient balance",
	"balance is not sufficient",
	"transfer amount exceeds balance",
	"account resource insufficient",
	"not enough energy",
	"out of energy",
}

// Classify maps a raw RPC error onto the domain error taxonomy.
// Already-typed errors and context cancellation pass through unchanged.
func Classify(network domain.Network, op string, err error) error {
	if err == nil {
		return nil
	}

	if domain.IsTransient(err) || domain.IsInsufficientFunds(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
			return &domain.ChainTransientError{Network: network, Op: op, RetryAfter: RetryAfterHint(err.Error()), Err: err}
		}
	}

	msg := strings.ToLower(err.Error())

	for _, p := range insufficientPatterns {
		if strings.Contains(msg, p) {
			return &domain.InsufficientFundsError{Scope: "on-chain", Asset: string(network), Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ChainTransientError{Network: network, Op: op, Err: err}
	}

	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return &domain.ChainTransientError{Network: network, Op: op, RetryAfter: RetryAfterHint(msg), Err: err}
		}
	}

	return err
}
