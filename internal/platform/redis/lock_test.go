package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_backend/internal/feature/convergence/domain"
)

// setupTestRedis creates a miniredis instance for testing.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func newTestLocker(client redis.Cmdable, wait time.Duration) *Locker {
	l := NewLocker(client, "run", time.Minute, wait, zerolog.Nop())
	l.retry = 5 * time.Millisecond
	return l
}

func TestLocker_LockAndRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := newTestLocker(client, 0)

	unlock, err := l.Lock(context.Background(), "BTCUSDT:1h")
	require.NoError(t, err)
	assert.True(t, mr.Exists("run:BTCUSDT:1h"))
	assert.Equal(t, time.Minute, mr.TTL("run:BTCUSDT:1h"))

	unlock()
	assert.False(t, mr.Exists("run:BTCUSDT:1h"))
}

func TestLocker_HeldKeyReturnsRunInProgress(t *testing.T) {
	client, _ := setupTestRedis(t)
	first := newTestLocker(client, 0)
	second := newTestLocker(client, 20*time.Millisecond)

	unlock, err := first.Lock(context.Background(), "BTCUSDT:1h")
	require.NoError(t, err)
	defer unlock()

	_, err = second.Lock(context.Background(), "BTCUSDT:1h")
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	// different pair, different key
	other, err := second.Lock(context.Background(), "ETHUSDT:1h")
	require.NoError(t, err)
	other()
}

func TestLocker_RetriesUntilFree(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := newTestLocker(client, time.Second)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	second, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	second()
}

func TestLocker_ReleaseKeepsForeignToken(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := newTestLocker(client, 0)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// the key expired and another holder took it
	require.NoError(t, mr.Set("run:k", "someone-else"))
	unlock()

	v, err := mr.Get("run:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestLocker_ExpiredKeyCanBeRetaken(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := newTestLocker(client, 0)

	_, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func TestLocker_ContextCancelled(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := newTestLocker(client, time.Minute)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := newTestLocker(client, 0)
	mr.Close()

	_, err := l.Lock(context.Background(), "k")
	assert.ErrorContains(t, err, "redis lock run:k")
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()

	rdb, err := NewRedisClient(context.Background(), Config{Addr: addr}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, rdb.Close())

	// 停止後のアドレスには接続できない
	mr.Close()
	_, err = NewRedisClient(context.Background(), Config{Addr: addr}, zerolog.Nop())
	assert.Error(t, err)
}
