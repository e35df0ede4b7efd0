package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_ZeroWaitFailsFast(t *testing.T) {
	m := New(0)

	unlock, err := m.Lock(context.Background(), "BTCUSDT:1h")
	require.NoError(t, err)

	_, err = m.Lock(context.Background(), "BTCUSDT:1h")
	assert.ErrorIs(t, err, ErrBusy)

	// other keys are independent
	other, err := m.Lock(context.Background(), "ETHUSDT:1h")
	require.NoError(t, err)
	other()

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, m.Len())
}

func TestMap_CustomBusyError(t *testing.T) {
	errHeld := errors.New("held")
	m := New(0, WithBusyError(errHeld))

	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	_, err = m.Lock(context.Background(), "k")
	assert.ErrorIs(t, err, errHeld)
}

func TestMap_WaitsForRelease(t *testing.T) {
	m := New(time.Second)

	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	second, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)
	second()
	assert.Equal(t, 0, m.Len())
}

func TestMap_WaitBudgetExpires(t *testing.T) {
	m := New(20 * time.Millisecond)

	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	_, err = m.Lock(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, m.Len())
}

func TestMap_ContextCancelled(t *testing.T) {
	m := New(time.Minute)

	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMap_MutualExclusion(t *testing.T) {
	m := New(5 * time.Second)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.Len())
}

type mockLocker struct {
	LockFunc func(ctx context.Context, key string) (func(), error)
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	return m.LockFunc(ctx, key)
}

func TestChain(t *testing.T) {
	t.Run("releases in reverse order", func(t *testing.T) {
		var events []string
		named := func(name string) Locker {
			return &mockLocker{LockFunc: func(context.Context, string) (func(), error) {
				events = append(events, "lock "+name)
				return func() { events = append(events, "unlock "+name) }, nil
			}}
		}

		unlock, err := Chain(named("local"), nil, named("redis")).Lock(context.Background(), "k")
		require.NoError(t, err)
		unlock()

		assert.Equal(t, []string{"lock local", "lock redis", "unlock redis", "unlock local"}, events)
	})

	t.Run("failure releases what was taken", func(t *testing.T) {
		errRemote := errors.New("remote busy")
		local := New(0)

		_, err := Chain(local, &mockLocker{LockFunc: func(context.Context, string) (func(), error) {
			return nil, errRemote
		}}).Lock(context.Background(), "k")

		assert.ErrorIs(t, err, errRemote)
		assert.Equal(t, 0, local.Len())
	})
}
