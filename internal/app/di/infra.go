// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"signal_backend/internal/config"
	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/platform/db"
	"signal_backend/internal/platform/kafka"
	"signal_backend/internal/platform/metrics"
	infraredis "signal_backend/internal/platform/redis"
	"signal_backend/internal/shared/keylock"
)

// Infra holds the long-lived connections built from config.
// Redis and Producer are nil when the feature is disabled or unreachable.
type Infra struct {
	Config   *config.Config
	Log      zerolog.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	Producer *kafka.Producer
	Metrics  *metrics.Recorder
	Locks    *keylock.Map
}

// NewInfra opens the database and, when enabled, Redis and the Kafka producer.
// An unreachable Redis is logged and the service runs without cache and distributed lock.
func NewInfra(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Infra, error) {
	gdb, err := db.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	in := &Infra{
		Config:  cfg,
		Log:     log,
		DB:      gdb,
		Metrics: metrics.New(),
		Locks:   keylock.New(cfg.Redis.LockWait, keylock.WithBusyError(domain.ErrRunInProgress)),
	}

	if cfg.Redis.Enabled {
		rdb, err := infraredis.NewRedisClient(ctx, infraredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without cache and distributed lock")
		} else {
			in.Redis = rdb
		}
	}

	if cfg.Kafka.Enabled {
		p, err := kafka.NewProducer(
			kafka.WithBrokers(cfg.Kafka.Brokers),
			kafka.WithTopic(cfg.Kafka.Topic),
			kafka.WithCompression(cfg.Kafka.Compression),
		)
		if err != nil {
			_ = in.Close()
			return nil, err
		}
		in.Producer = p
	}
	return in, nil
}

// PingDB is the readiness check for the database.
func (in *Infra) PingDB(ctx context.Context) error {
	sqlDB, err := in.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// PingRedis is the readiness check for Redis.
func (in *Infra) PingRedis(ctx context.Context) error {
	return in.Redis.Ping(ctx).Err()
}

// Close releases every connection, flushing the producer first.
func (in *Infra) Close() error {
	var errs []error
	if in.Producer != nil {
		errs = append(errs, in.Producer.Close())
	}
	if in.Redis != nil {
		errs = append(errs, in.Redis.Close())
	}
	if in.DB != nil {
		if sqlDB, err := in.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
