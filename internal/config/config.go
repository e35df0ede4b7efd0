// Package config loads the service configuration from YAML with defaults and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no -config flag or CONFIG_PATH is given.
const DefaultPath = "config/config.yaml"

type Config struct {
	Environment string         `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         LogConfig      `yaml:"log"`
	HTTP        HTTPConfig     `yaml:"http"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Kafka       KafkaConfig    `yaml:"kafka"`
	Auth        AuthConfig     `yaml:"auth"`
	Detect      DetectConfig   `yaml:"detect"`
	Pairs       []PairConfig   `yaml:"pairs" validate:"dive"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host           string        `yaml:"host" default:"localhost"`
	Port           string        `yaml:"port" default:"5432"`
	User           string        `yaml:"user" default:"postgres"`
	Password       string        `yaml:"password"`
	Name           string        `yaml:"name" default:"signals" validate:"required"`
	SSLMode        string        `yaml:"sslmode" default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	InstanceName   string        `yaml:"instance_name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"60s"`
	RunMigrations  bool          `yaml:"run_migrations"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
	LockTTL  time.Duration `yaml:"lock_ttl" default:"6m" validate:"gt=0"`
	LockWait time.Duration `yaml:"lock_wait" default:"5s"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic       string   `yaml:"topic" default:"triple-signals" validate:"required_if=Enabled true"`
	Compression string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MinScore    float64  `yaml:"min_score" default:"0.7" validate:"gte=0,lte=1"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" default:"1h"`
}

type DetectConfig struct {
	RunTimeout time.Duration `yaml:"run_timeout" default:"5m" validate:"gt=0"`
	Tolerance  int           `yaml:"tolerance" default:"5" validate:"gte=0"`
}

type PairConfig struct {
	Symbol    string `yaml:"symbol" validate:"required"`
	Timeframe string `yaml:"timeframe" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses a YAML configuration file, applies defaults and validates the result.
// A missing file is not an error; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML, overrides it with environment variables and validates it.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("ENVIRONMENT", &c.Environment)
	set("LOG_LEVEL", &c.Log.Level)
	set("DB_HOST", &c.Database.Host)
	set("DB_PORT", &c.Database.Port)
	set("DB_USER", &c.Database.User)
	set("DB_PASSWORD", &c.Database.Password)
	set("DB_NAME", &c.Database.Name)
	set("INSTANCE_CONNECTION_NAME", &c.Database.InstanceName)
	set("REDIS_ADDR", &c.Redis.Addr)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("KAFKA_TOPIC", &c.Kafka.Topic)
	set("JWT_SECRET", &c.Auth.JWTSecret)

	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("RUN_MIGRATIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_MIGRATIONS: %w", err)
		}
		c.Database.RunMigrations = b
	}
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.HTTP.Port = p
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			fe := ves[0]
			return fmt.Errorf("%s fails %s %s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return err
	}
	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required in production")
	}
	// ランの途中でRedisロックが失効しないようにする
	if c.Redis.Enabled && c.Redis.LockTTL < c.Detect.RunTimeout {
		return fmt.Errorf("redis.lock_ttl (%s) must be at least detect.run_timeout (%s)", c.Redis.LockTTL, c.Detect.RunTimeout)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
