// Package config loads sagaflow process configuration from SAGAFLOW_*
// environment variables.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger, err := cfg.NewLogger()
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/petrijr/sagaflow/pkg/api"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
)

// Event sinks.
const (
	EventsMemory = "memory"
	EventsRedis  = "redis"
)

// Parallel policies.
const (
	PolicyWaitAll        = "wait-all"
	PolicyCancelSiblings = "cancel-siblings"
)

// Config holds the configuration of a sagaflow process.
type Config struct {
	LogLevel  string `env:"SAGAFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SAGAFLOW_LOG_FORMAT" envDefault:"json"`

	// Store selects the run store backend.
	Store       string `env:"SAGAFLOW_STORE" envDefault:"memory"`
	SQLiteDSN   string `env:"SAGAFLOW_SQLITE_DSN" envDefault:"file:sagaflow.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"`
	PostgresDSN string `env:"SAGAFLOW_POSTGRES_DSN"`
	RedisAddr   string `env:"SAGAFLOW_REDIS_ADDR" envDefault:"localhost:6379"`
	MongoURI    string `env:"SAGAFLOW_MONGO_URI" envDefault:"mongodb://localhost:27017"`

	// Events selects the event sink.
	Events          string `env:"SAGAFLOW_EVENTS" envDefault:"memory"`
	EventStreamsMax int64  `env:"SAGAFLOW_EVENT_STREAM_MAXLEN" envDefault:"10000"`

	ParallelPolicy string `env:"SAGAFLOW_PARALLEL_POLICY" envDefault:"wait-all"`

	// RecoverAfter is the minimum age of a non-terminal run before startup
	// recovery marks it interrupted. Zero recovers every such run and is
	// only safe with a single worker process per store.
	RecoverAfter time.Duration `env:"SAGAFLOW_RECOVER_AFTER" envDefault:"10m"`

	Workers     WorkerConfig
	MetricsAddr string `env:"SAGAFLOW_METRICS_ADDR" envDefault:":9090"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count       int           `env:"SAGAFLOW_WORKERS" envDefault:"2"`
	MaxAttempts int           `env:"SAGAFLOW_WORKER_MAX_ATTEMPTS" envDefault:"3"`
	Backoff     time.Duration `env:"SAGAFLOW_WORKER_BACKOFF" envDefault:"200ms"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.LogFormat)
	}

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLiteDSN == "" {
			return fmt.Errorf("sqlite DSN is required")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo URI is required")
		}
	default:
		return fmt.Errorf("unsupported store: %s", c.Store)
	}

	switch c.Events {
	case EventsMemory:
	case EventsRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported event sink: %s", c.Events)
	}

	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.RecoverAfter < 0 {
		return fmt.Errorf("recover-after must not be negative")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Workers.MaxAttempts < 1 {
		return fmt.Errorf("worker max attempts must be at least 1")
	}
	return nil
}

// Policy returns the configured default parallel policy.
func (c *Config) Policy() (api.ParallelPolicy, error) {
	switch c.ParallelPolicy {
	case "", PolicyWaitAll:
		return api.ParallelWaitAll, nil
	case PolicyCancelSiblings:
		return api.ParallelCancelSiblings, nil
	default:
		return 0, fmt.Errorf("invalid parallel policy: %s (must be %s or %s)", c.ParallelPolicy, PolicyWaitAll, PolicyCancelSiblings)
	}
}

// NewLogger builds a zap logger for the configured level and format.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build()
}
