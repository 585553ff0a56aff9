package chains

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLeaseClient struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeLeaseClient() *fakeLeaseClient {
	return &fakeLeaseClient{values: make(map[string]string)}
}

func (f *fakeLeaseClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLeaseClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	if script == releaseScript {
		delete(f.values, keys[0])
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeLeaseClient) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

func TestRedisLocker_AcquiresAndReleases(t *testing.T) {
	client := newFakeLeaseClient()
	l := newRedisLocker(client, "lease:", time.Minute, 50*time.Millisecond, zap.NewNop())

	err := l.WithLock(context.Background(), "TMaster", func(ctx context.Context) error {
		assert.True(t, client.held("lease:TMaster"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, client.held("lease:TMaster"))
}

func TestRedisLocker_HeldElsewhere(t *testing.T) {
	client := newFakeLeaseClient()
	client.values["lease:TMaster"] = "other-replica"
	l := newRedisLocker(client, "lease:", time.Minute, 20*time.Millisecond, zap.NewNop())
	l.interval = 5 * time.Millisecond

	called := false
	err := l.WithLock(context.Background(), "TMaster", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrLeaseNotAcquired))
	assert.False(t, called)
	// a foreign lease is never deleted
	assert.True(t, client.held("lease:TMaster"))
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	want := errors.New("boom")

	err := l.WithLock(context.Background(), "k", func(ctx context.Context) error { return want })
	assert.Equal(t, want, err)
}
