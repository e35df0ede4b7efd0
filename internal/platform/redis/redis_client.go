package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config is the subset of the redis settings the client needs.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings. The ping is bounded by a short timeout.
func NewRedisClient(ctx context.Context, cfg Config, log zerolog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 接続確認
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		log.Error().Err(err).Str("address", cfg.Addr).Msg("redis connection failed")
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	log.Info().Str("address", cfg.Addr).Msg("redis connection successful")
	return rdb, nil
}
