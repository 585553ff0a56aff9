package chains

import (
	"context"
	"errors"
	"testing"
	"time"

	"settlement-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryAfterHint(t *testing.T) {
	cases := []struct {
		msg  string
		want time.Duration
	}{
		{"rate limited, retry in 2s", 2 * time.Second},
		{"Please retry in 1.5 seconds", 1500 * time.Millisecond},
		{"retry in 300ms", 300 * time.Millisecond},
		{"retry in 1 minute", time.Minute},
		{"retry in 4", 4 * time.Second},
		{"no hint here", 0},
	}

	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			assert.Equal(t, tc.want, RetryAfterHint(tc.msg))
		})
	}
}

func TestRetryPolicy_RetriesTransientOnly(t *testing.T) {
	p := NewRetryPolicy(4, time.Millisecond, 5*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	t.Run("transient then success", func(t *testing.T) {
		calls := 0
		err := p.Do(ctx, domain.NetworkTron, "balance", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("503 Service Unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		err := p.Do(ctx, domain.NetworkTron, "transfer", func(ctx context.Context) error {
			calls++
			return errors.New("invalid signature")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("insufficient funds is not retried", func(t *testing.T) {
		calls := 0
		err := p.Do(ctx, domain.NetworkPolygon, "transfer", func(ctx context.Context) error {
			calls++
			return errors.New("insufficient funds for gas * price + value")
		})
		assert.True(t, domain.IsInsufficientFunds(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		calls := 0
		err := p.Do(ctx, domain.NetworkPolygon, "nonce", func(ctx context.Context) error {
			calls++
			return errors.New("429 Too Many Requests")
		})
		assert.True(t, domain.IsTransient(err))
		assert.Equal(t, 4, calls)
	})
}

func TestRetryPolicy_HintOverridesBackoff(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond, time.Millisecond, zap.NewNop())

	err := &domain.ChainTransientError{Network: domain.NetworkTron, Op: "x", RetryAfter: 7 * time.Second, Err: errors.New("busy")}
	assert.Equal(t, 7*time.Second, p.delay(1, err, nil))

	assert.Equal(t, 3*time.Second, p.delay(1, errors.New("retry in 3s"), nil))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(domain.NetworkTron, "op", nil))

	err := Classify(domain.NetworkTron, "op", errors.New("connection reset by peer"))
	assert.True(t, domain.IsTransient(err))

	err = Classify(domain.NetworkTron, "op", context.DeadlineExceeded)
	assert.True(t, domain.IsTransient(err))

	err = Classify(domain.NetworkTron, "op", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsTransient(err))

	raw := errors.New("execution reverted")
	assert.Equal(t, raw, Classify(domain.NetworkPolygon, "op", raw))
}
