// internal/chains/lease.go
package chains

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes work on a key. Implementations may span processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ============================================================================
// IN-PROCESS
// ============================================================================

// LocalLocker serializes within one process
type LocalLocker struct {
	queue *TransferQueue
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{queue: NewTransferQueue()}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.queue.Do(ctx, key, fn)
}

// ============================================================================
// REDIS LEASE
// ============================================================================

var ErrLeaseNotAcquired = errors.New("lease not acquired")

const (
	releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	extendScript  = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
)

type leaseClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker holds a Redis lease for the duration of fn so that replicas
// sharing a master wallet never submit concurrently. The local queue keeps
// goroutines in this process from polling Redis against each other.
type RedisLocker struct {
	client   leaseClient
	local    *TransferQueue
	prefix   string
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
	logger   *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	return newRedisLocker(client, prefix, ttl, wait, logger)
}

func newRedisLocker(client leaseClient, prefix string, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{
		client:   client,
		local:    NewTransferQueue(),
		prefix:   prefix,
		ttl:      ttl,
		wait:     wait,
		interval: 200 * time.Millisecond,
		logger:   logger,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.local.Do(ctx, key, func(ctx context.Context) error {
		leaseKey := l.prefix + key
		token, err := l.acquire(ctx, leaseKey)
		if err != nil {
			return err
		}

		leaseCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			l.keepAlive(leaseCtx, leaseKey, token)
		}()

		defer func() {
			cancel()
			<-done
			// release on a fresh context so a cancelled caller still frees the lease
			releaseCtx, rc := context.WithTimeout(context.Background(), 5*time.Second)
			defer rc()
			if err := l.client.Eval(releaseCtx, releaseScript, []string{leaseKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release lease", zap.String("key", leaseKey), zap.Error(err))
			}
		}()

		return fn(leaseCtx)
	})
}

func (l *RedisLocker) acquire(ctx context.Context, key string) (string, error) {
	token, err := newLeaseToken()
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to acquire lease %s: %w", key, err)
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: %s held by another worker", ErrLeaseNotAcquired, key)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

func (l *RedisLocker) keepAlive(ctx context.Context, key, token string) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.client.Eval(ctx, extendScript, []string{key}, token, l.ttl.Milliseconds()).Int64()
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Warn("failed to extend lease", zap.String("key", key), zap.Error(err))
				continue
			}
			if err == nil && n == 0 {
				l.logger.Error("lease lost", zap.String("key", key))
				return
			}
		}
	}
}

func newLeaseToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lease token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
