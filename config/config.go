package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Addr                string        `env:"GIFTS_ADDR"                  envDefault:":5000"`
	Store               string        `env:"GIFTS_STORE"                 envDefault:"memory"`
	DatabaseURL         string        `env:"GIFTS_DATABASE_URL"          envDefault:"host=localhost port=5432 user=postgres password=postgres dbname=gifts sslmode=disable"`
	SQLitePath          string        `env:"GIFTS_SQLITE_PATH"           envDefault:"groupgifts.db"`
	EventBuffer         int           `env:"GIFTS_EVENT_BUFFER"          envDefault:"100"`
	ShutdownTimeout     time.Duration `env:"GIFTS_SHUTDOWN_TIMEOUT"      envDefault:"10s"`
	DefaultDeadlineDays int           `env:"GIFTS_DEFAULT_DEADLINE_DAYS" envDefault:"30"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Store {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.EventBuffer <= 0 {
		return Config{}, fmt.Errorf("event buffer must be positive, got %d", cfg.EventBuffer)
	}
	if cfg.DefaultDeadlineDays <= 0 {
		return Config{}, fmt.Errorf("default deadline days must be positive, got %d", cfg.DefaultDeadlineDays)
	}
	return cfg, nil
}

func (c Config) DefaultDeadline() time.Duration {
	return time.Duration(c.DefaultDeadlineDays) * 24 * time.Hour
}
