package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"signal_backend/internal/app/di"
	"signal_backend/internal/config"
	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", config.DefaultPath), "path to the YAML config file")
	symbol := flag.String("symbol", "", "symbol to process; empty runs every configured or discovered pair")
	timeframe := flag.String("timeframe", "", "timeframe to process, required with -symbol")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := di.NewInfra(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise infrastructure")
	}
	conv := di.NewConvergence(infra)

	pairs, err := selectPairs(ctx, *symbol, *timeframe, cfg.Pairs, conv.Pairs)
	if err != nil {
		_ = infra.Close()
		log.Fatal().Err(err).Msg("failed to select pairs")
	}

	failed := runAll(ctx, conv.Detect, pairs, cfg.Detect, log)
	if err := infra.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close infrastructure")
	}
	if failed > 0 {
		log.Error().Int("failed", failed).Int("pairs", len(pairs)).Msg("detect finished with failures")
		os.Exit(1)
	}
	log.Info().Int("pairs", len(pairs)).Msg("detect ok")
}

type runner interface {
	Run(ctx context.Context, pair entity.Pair) (entity.RunReport, error)
}

// selectPairs picks the -symbol/-timeframe pair, else the configured pairs, else every pair found in key_candles.
func selectPairs(ctx context.Context, symbol, timeframe string, configured []config.PairConfig, lister di.PairLister) ([]entity.Pair, error) {
	if symbol != "" || timeframe != "" {
		p := entity.Pair{Symbol: symbol, Timeframe: timeframe}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("-symbol and -timeframe: %w", err)
		}
		return []entity.Pair{p}, nil
	}
	if len(configured) > 0 {
		out := make([]entity.Pair, 0, len(configured))
		for _, pc := range configured {
			out = append(out, entity.Pair{Symbol: pc.Symbol, Timeframe: pc.Timeframe})
		}
		return out, nil
	}
	pairs, err := lister.ListPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, errors.New("no pairs configured and none found in key_candles")
	}
	return pairs, nil
}

// runAll processes pairs one after another and returns how many failed.
// A zero RunTimeout means no per-pair deadline.
// A cancelled context stops the loop; the remaining pairs count as failed.
func runAll(ctx context.Context, r runner, pairs []entity.Pair, cfg config.DetectConfig, log zerolog.Logger) int {
	failed := 0
	for i, p := range pairs {
		if ctx.Err() != nil {
			return failed + len(pairs) - i
		}
		_, err := runOne(ctx, r, p, cfg.RunTimeout)
		if err != nil {
			failed++
			log.Error().Err(err).Str("symbol", p.Symbol).Str("timeframe", p.Timeframe).Msg("pair failed")
		}
	}
	return failed
}

func runOne(ctx context.Context, r runner, p entity.Pair, timeout time.Duration) (entity.RunReport, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.Run(ctx, p)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
