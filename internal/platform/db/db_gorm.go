package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"signal_backend/internal/config"
	"signal_backend/internal/feature/convergence/adapters"
)

// retryInterval is the pause between connection attempts.
var retryInterval = 3 * time.Second

// Config holds what is needed to reach Postgres, over TCP or a Cloud SQL socket.
type Config struct {
	User         string
	Password     string
	Name         string
	Host         string
	Port         string
	SSLMode      string
	InstanceName string
}

// ConfigFrom maps the database section of the service config.
func ConfigFrom(c config.DatabaseConfig) Config {
	return Config{
		User:         c.User,
		Password:     c.Password,
		Name:         c.Name,
		Host:         c.Host,
		Port:         c.Port,
		SSLMode:      c.SSLMode,
		InstanceName: c.InstanceName,
	}
}

// BuildDSN returns a libpq keyword/value DSN. InstanceName takes precedence over Host/Port.
func BuildDSN(cfg Config) string {
	if cfg.InstanceName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s",
			cfg.InstanceName, cfg.User, cfg.Password, cfg.Name)
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslmode)
}

// ConnectWithRetry calls opener until it succeeds or timeout has passed since the first attempt.
func ConnectWithRetry(dsn string, timeout time.Duration, opener func(string) (*gorm.DB, error)) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("db connect failed after %s: %w", timeout, err)
		}
		time.Sleep(retryInterval)
	}
}

// Open connects to Postgres with retries and migrates the tables when asked to.
func Open(c config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	dsn := BuildDSN(ConfigFrom(c))
	attempt := 0
	db, err := ConnectWithRetry(dsn, c.ConnectTimeout, func(dsn string) (*gorm.DB, error) {
		attempt++
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			if err = ping(db); err != nil {
				closeDB(db)
			}
		}
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("db connect failed, retrying")
		}
		return db, err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", c.Name).Msg("db connection successful")

	if c.RunMigrations {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		log.Info().Msg("db migrations applied")
	}
	return db, nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Migrate creates or updates the detector input tables and triple_signals.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migrate: nil db")
	}
	if err := db.AutoMigrate(
		&adapters.KeyCandleModel{},
		&adapters.ZoneModel{},
		&adapters.TrendModel{},
		&adapters.SignalModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
