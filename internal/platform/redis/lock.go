package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/feature/convergence/usecase"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a distributed per-key lock built on SET NX PX.
type Locker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	log    zerolog.Logger
}

var _ usecase.RunLocker = (*Locker)(nil)

// NewLocker creates a Locker. ttl bounds how long a crashed holder keeps the key;
// wait bounds how long Lock keeps retrying before returning domain.ErrRunInProgress.
func NewLocker(client redis.Cmdable, prefix string, ttl, wait time.Duration, log zerolog.Logger) *Locker {
	if prefix == "" {
		prefix = "lock"
	}
	return &Locker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		retry:  100 * time.Millisecond,
		log:    log,
	}
}

func (l *Locker) lockKey(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

// Lock takes the key or fails with domain.ErrRunInProgress once the wait budget is spent.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	k := l.lockKey(key)
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", k, err)
		}
		if ok {
			return func() { l.release(k, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, domain.ErrRunInProgress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// release uses a fresh context so a cancelled run still frees its key.
func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.log.Warn().Err(err).Str("key", key).Msg("redis lock release failed")
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
