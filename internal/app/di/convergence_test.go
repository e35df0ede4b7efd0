package di

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"signal_backend/internal/config"
	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/platform/cache"
	"signal_backend/internal/platform/db"
	"signal_backend/internal/platform/metrics"
	"signal_backend/internal/shared/keylock"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/missing.yaml")
	require.NoError(t, err)
	cfg.Redis.LockWait = 0
	return cfg
}

func TestNewSignalRepository(t *testing.T) {
	gdb := setupTestDB(t)

	_, cached := NewSignalRepository(setupTestRedis(t), gdb, time.Minute).(*cache.CachingSignalRepository)
	assert.True(t, cached, "redis available: expected caching decorator")

	_, cached = NewSignalRepository(nil, gdb, time.Minute).(*cache.CachingSignalRepository)
	assert.False(t, cached, "no redis: expected plain repository")
}

func TestNewRunLocker(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	t.Run("local only", func(t *testing.T) {
		local := keylock.New(0, keylock.WithBusyError(domain.ErrRunInProgress))
		l := NewRunLocker(local, nil, cfg.Redis, zerolog.Nop())
		assert.Same(t, local, l)
	})

	t.Run("local and redis", func(t *testing.T) {
		rdb := setupTestRedis(t)
		local := keylock.New(0, keylock.WithBusyError(domain.ErrRunInProgress))
		l := NewRunLocker(local, rdb, cfg.Redis, zerolog.Nop())

		unlock, err := l.Lock(ctx, "BTCUSDT:1h")
		require.NoError(t, err)
		n, err := rdb.Exists(ctx, "signals:run:BTCUSDT:1h").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		// a second process sharing redis but not the local map is refused
		other := NewRunLocker(keylock.New(0), rdb, cfg.Redis, zerolog.Nop())
		_, err = other.Lock(ctx, "BTCUSDT:1h")
		assert.ErrorIs(t, err, domain.ErrRunInProgress)

		unlock()
		n, err = rdb.Exists(ctx, "signals:run:BTCUSDT:1h").Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestNewConvergence_RunsEndToEnd(t *testing.T) {
	gdb := setupTestDB(t)
	in := &Infra{
		Config:  testConfig(t),
		Log:     zerolog.Nop(),
		DB:      gdb,
		Metrics: metrics.New(),
		Locks:   keylock.New(0, keylock.WithBusyError(domain.ErrRunInProgress)),
	}
	c := NewConvergence(in)
	ctx := context.Background()
	pair := entity.Pair{Symbol: "BTCUSDT", Timeframe: "1h"}

	require.NoError(t, gdb.Exec(`INSERT INTO key_candles (symbol, timeframe, candle_index, open, high, low, close, volume, body_percentage, is_key_candle)
		VALUES ('BTCUSDT', '1h', 42, 100, 110, 95, 108, 80, 60, true)`).Error)
	require.NoError(t, gdb.Exec(`INSERT INTO detect_accumulation_zone_results (symbol, timeframe, start_idx, end_idx, quality_score)
		VALUES ('BTCUSDT', '1h', 40, 50, 0.8)`).Error)
	require.NoError(t, gdb.Exec(`INSERT INTO mini_trend_results (symbol, timeframe, start_idx, end_idx, direction, slope, r_squared)
		VALUES ('BTCUSDT', '1h', 35, 45, 'bullish', 50, 0.9)`).Error)

	report, err := c.Detect.Run(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matches)
	assert.Equal(t, 1, report.Written)

	signals, err := c.Signals.List(ctx, pair, 0)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, 42, signals[0].CandleIndex)

	pairs, err := c.Pairs.ListPairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []entity.Pair{pair}, pairs)

	diag, err := c.Diagnose.Diagnose(ctx, pair, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{42}, diag.ExactMatches)
}
