// internal/chains/retry.go
package chains

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"settlement-service/internal/domain"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

var retryHintPattern = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*(ms|milliseconds?|s|secs?|seconds?|m|mins?|minutes?)?\b`)

// RetryAfterHint extracts "retry in N[unit]" from a provider message. Seconds when no unit is given.
func RetryAfterHint(msg string) time.Duration {
	m := retryHintPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil || n <= 0 {
		return 0
	}

	unit := time.Second
	switch u := strings.ToLower(m[2]); {
	case strings.HasPrefix(u, "ms"), strings.HasPrefix(u, "milli"):
		unit = time.Millisecond
	case u == "m", strings.HasPrefix(u, "min"):
		unit = time.Minute
	}

	return time.Duration(n * float64(unit))
}

// RetryPolicy retries transient chain failures with capped exponential backoff.
// A server-provided retry hint replaces the computed delay.
type RetryPolicy struct {
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
	logger    *zap.Logger
}

func NewRetryPolicy(attempts uint, baseDelay, maxDelay time.Duration, logger *zap.Logger) *RetryPolicy {
	if attempts == 0 {
		attempts = 1
	}
	return &RetryPolicy{
		Attempts:  attempts,
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		logger:    logger,
	}
}

// Do runs fn until it succeeds, fails with a non-transient error, or attempts run out.
// Errors returned by fn are classified before the retry decision.
func (p *RetryPolicy) Do(ctx context.Context, network domain.Network, op string, fn func(ctx context.Context) error) error {
	return retry.Do(
		func() error {
			return Classify(network, op, fn(ctx))
		},
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.BaseDelay),
		retry.DelayType(p.delay),
		retry.RetryIf(domain.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			chainRetries.WithLabelValues(string(network), op).Inc()
			p.logger.Warn("retrying chain call",
				zap.String("network", string(network)),
				zap.String("op", op),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}

func (p *RetryPolicy) delay(n uint, err error, config *retry.Config) time.Duration {
	var te *domain.ChainTransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter
	}
	if hint := RetryAfterHint(errString(err)); hint > 0 {
		return hint
	}

	d := retry.BackOffDelay(n, err, config)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
