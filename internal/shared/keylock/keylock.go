// Package keylock provides per-key mutual exclusion within one process.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when the key stays held for the whole wait budget.
var ErrBusy = errors.New("keylock: key is busy")

// Locker acquires a lock for a key and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Map holds one lock per key. Entries are dropped when nobody holds or waits on them.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
	busy  error
}

var _ Locker = (*Map)(nil)

// Option configures Map.
type Option func(*Map)

// WithBusyError replaces ErrBusy with err.
func WithBusyError(err error) Option {
	return func(m *Map) {
		if err != nil {
			m.busy = err
		}
	}
}

// New returns a Map that waits up to wait for a held key. A zero wait fails immediately.
func New(wait time.Duration, opts ...Option) *Map {
	m := &Map{locks: make(map[string]*entry), wait: wait, busy: ErrBusy}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lock blocks until key is free, the wait budget runs out or ctx is done.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	e := m.acquire(key)

	if err := m.take(ctx, e); err != nil {
		m.release(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			m.release(key, e)
		})
	}, nil
}

func (m *Map) take(ctx context.Context, e *entry) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	default:
	}
	if m.wait <= 0 {
		return m.busy
	}

	timer := time.NewTimer(m.wait)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return m.busy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Map) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Map) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Chain takes every locker in order and releases them in reverse.
// If one fails, the ones already taken are released before the error is returned.
func Chain(lockers ...Locker) Locker {
	return chain(lockers)
}

type chain []Locker

func (c chain) Lock(ctx context.Context, key string) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		if l == nil {
			continue
		}
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return releaseAll, nil
}
