package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal_backend/internal/app/di"
	"signal_backend/internal/app/router"
	"signal_backend/internal/config"
	"signal_backend/internal/platform/http/handler"
	"signal_backend/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", config.DefaultPath), "path to the YAML config file")
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
	defer func() {
		if err := infra.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close infrastructure")
		}
	}()

	conv := di.NewConvergence(infra)

	checks := map[string]handler.Check{"db": infra.PingDB}
	if infra.Redis != nil {
		checks["redis"] = infra.PingRedis
	}
	r := router.NewRouter(di.NewConvergenceHandler(conv, cfg.Detect), router.Options{
		Log:            log,
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        infra.Metrics.Handler(),
		Ready:          handler.Ready(2*time.Second, checks),
	})

	// JWT_SECRETチェック（開発中の注意喚起）
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set; the run endpoint rejects every request")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
