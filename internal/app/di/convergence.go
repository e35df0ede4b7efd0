package di

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"signal_backend/internal/config"
	"signal_backend/internal/feature/convergence/adapters"
	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/feature/convergence/transport/handler"
	"signal_backend/internal/feature/convergence/usecase"
	"signal_backend/internal/platform/cache"
	"signal_backend/internal/platform/kafka"
	infraredis "signal_backend/internal/platform/redis"
	"signal_backend/internal/shared/keylock"
)

// NewSignalRepository returns the triple_signals store.
// If Redis is available, reads go through the Redis cache. Otherwise, they hit the database directly.
func NewSignalRepository(rdb *redis.Client, db *gorm.DB, ttl time.Duration) cache.SignalRepository {
	repo := adapters.NewSignalRepository(db)
	if rdb != nil {
		return cache.NewCachingSignalRepository(rdb, ttl, repo, "signals")
	}
	return repo
}

// NewRunLocker chains the in-process lock with the Redis lock when Redis is available.
func NewRunLocker(local *keylock.Map, rdb *redis.Client, cfg config.RedisConfig, log zerolog.Logger) usecase.RunLocker {
	if rdb == nil {
		return local
	}
	return keylock.Chain(local, infraredis.NewLocker(rdb, "signals:run", cfg.LockTTL, cfg.LockWait, log))
}

// PairLister discovers the pairs present in the detector tables.
type PairLister interface {
	ListPairs(ctx context.Context) ([]entity.Pair, error)
}

// Convergence bundles the usecases of the convergence feature.
type Convergence struct {
	Detect   *usecase.DetectUsecase
	Signals  *usecase.SignalsUsecase
	Diagnose *usecase.DiagnoseUsecase
	Pairs    PairLister
}

// NewConvergence wires the convergence feature on top of in.
func NewConvergence(in *Infra) *Convergence {
	cfg := in.Config
	source := adapters.NewComponentSource(in.DB)
	repo := NewSignalRepository(in.Redis, in.DB, cfg.Redis.CacheTTL)

	opts := []usecase.DetectOption{
		usecase.WithLocker(NewRunLocker(in.Locks, in.Redis, cfg.Redis, in.Log)),
		usecase.WithMetrics(in.Metrics),
		usecase.WithLogger(in.Log.With().Str("component", "detect").Logger()),
	}
	if in.Producer != nil {
		opts = append(opts, usecase.WithPublisher(kafka.NewSignalPublisher(in.Producer), cfg.Kafka.MinScore))
	}

	return &Convergence{
		Detect:   usecase.NewDetectUsecase(source, repo, opts...),
		Signals:  usecase.NewSignalsUsecase(repo),
		Diagnose: usecase.NewDiagnoseUsecase(source),
		Pairs:    source,
	}
}

// NewConvergenceHandler builds the HTTP handler for the feature.
func NewConvergenceHandler(c *Convergence, cfg config.DetectConfig) *handler.ConvergenceHandler {
	return handler.NewConvergenceHandler(c.Detect, c.Signals, c.Diagnose, cfg.RunTimeout, cfg.Tolerance)
}
