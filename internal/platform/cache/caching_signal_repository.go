// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/feature/convergence/usecase"
)

// SignalRepository is the store being decorated.
type SignalRepository interface {
	usecase.SignalWriter
	usecase.SignalReader
}

// CachingSignalRepository decorates a SignalRepository with Redis caching.
// Reads are cached per (pair, limit); a successful replace drops every cached read of the pair.
type CachingSignalRepository struct {
	inner     SignalRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var (
	_ usecase.SignalWriter = (*CachingSignalRepository)(nil)
	_ usecase.SignalReader = (*CachingSignalRepository)(nil)
)

// NewCachingSignalRepository decorates a SignalRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "signals".
func NewCachingSignalRepository(rdb *redis.Client, ttl time.Duration, inner SignalRepository, namespace string) *CachingSignalRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "signals"
	}
	return &CachingSignalRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// ReplaceAll replaces the pair's signals and invalidates its cache entries.
func (c *CachingSignalRepository) ReplaceAll(ctx context.Context, pair entity.Pair, signals []entity.ScoredSignal) (usecase.WriteResult, error) {
	res, err := c.inner.ReplaceAll(ctx, pair, signals)
	if err != nil {
		return res, err
	}
	if c.rdb == nil {
		return res, nil
	}
	// キャッシュ削除の失敗は書き込み結果に影響させない
	_ = c.deleteByPattern(ctx, c.cacheKeyPrefix(pair)+"*")
	return res, nil
}

// Find retrieves signals, checking cache first then falling back to the database.
func (c *CachingSignalRepository) Find(ctx context.Context, pair entity.Pair, limit int) ([]entity.ScoredSignal, error) {
	if c.rdb == nil {
		return c.inner.Find(ctx, pair, limit)
	}

	key := c.cacheKey(pair, limit)

	// 1) キャッシュ確認
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.ScoredSignal
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) DBへフォールバック
	out, err := c.inner.Find(ctx, pair, limit)
	if err != nil {
		return nil, err
	}

	// 3) キャッシュ保存（ベストエフォート）
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

func (c *CachingSignalRepository) cacheKey(pair entity.Pair, limit int) string {
	return fmt.Sprintf("%s%d", c.cacheKeyPrefix(pair), limit)
}

func (c *CachingSignalRepository) cacheKeyPrefix(pair entity.Pair) string {
	return fmt.Sprintf("%s:%s:%s:", c.namespace, safe(pair.Symbol), safe(pair.Timeframe))
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingSignalRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe encodes a key segment reversibly. The key separator and SCAN glob
// characters never survive unescaped, so distinct pairs never share a key.
func safe(s string) string {
	return url.QueryEscape(s)
}
