// internal/config/config.go
//
// Server configuration read from the environment.
// Responsibilities:
//   - Load an optional .env file (values already in the environment win).
//   - Parse variables into Config with defaults.
//   - Validate combinations the server cannot start with.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Ledger backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full server configuration.
type Config struct {
	Port      string `env:"PORT" envDefault:"5175"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" | "console"

	DBPath        string `env:"DB_PATH" envDefault:"./data/guessroom.db"`
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"sqlite"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"guessroom:"`

	RoomIdleTimeout   time.Duration `env:"ROOM_IDLE_TIMEOUT" envDefault:"30m"`
	PlayerIdleTimeout time.Duration `env:"PLAYER_IDLE_TIMEOUT" envDefault:"5m"`
	MailboxSize       int           `env:"MAILBOX_SIZE" envDefault:"64"`
	HistoryLimit      int           `env:"HISTORY_LIMIT" envDefault:"100"`

	ClientOrigin   string `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load reads envFiles (default ".env", missing files are ignored) and parses the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return Parse()
}

// Parse reads Config from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LedgerBackend = strings.ToLower(strings.TrimSpace(cfg.LedgerBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.LedgerBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND: unknown backend %q", c.LedgerBackend))
	}
	if c.LedgerBackend == BackendSQLite && c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH: required for the sqlite backend"))
	}
	if c.LedgerBackend == BackendRedis && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR: required for the redis backend"))
	}
	if c.MailboxSize <= 0 {
		errs = append(errs, errors.New("MAILBOX_SIZE: must be positive"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT: must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }
