// Package config loads the application configuration and grouping
// definitions.
//
// The application file is YAML; every setting can be overridden from the
// environment (AUTOCAT_*). Grouping definitions are CUE files, compiled
// into grouping.Grouping values with source positions on errors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/autocat/internal/queryir"
	"github.com/roach88/autocat/internal/querysql"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
	LockNone  = "none"
)

// Config is the application configuration.
type Config struct {
	Database     DatabaseConfig `yaml:"database"`
	Log          LogConfig      `yaml:"log"`
	Lock         LockConfig     `yaml:"lock"`
	Runner       RunnerConfig   `yaml:"runner"`
	Metrics      MetricsConfig  `yaml:"metrics"`
	GroupingsDir string         `yaml:"groupings_dir"`
}

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MembershipTable string `yaml:"membership_table"`
	// Transaction wraps each run's delete and insert in one transaction.
	Transaction *bool `yaml:"transaction"`
}

// LogConfig selects the logger mode: dev, debug or prod.
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// LockConfig selects the per-grouping lock backend.
type LockConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// RunnerConfig bounds batch concurrency.
type RunnerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// MetricsConfig sets the Prometheus listen address for serve.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "autocat.db",
			MembershipTable: "grouping_items",
		},
		Log:          LogConfig{Mode: "dev"},
		Lock:         LockConfig{Backend: LockLocal, TTL: 30 * time.Second},
		Runner:       RunnerConfig{Concurrency: 4},
		Metrics:      MetricsConfig{Addr: ":9090"},
		GroupingsDir: "groupings",
	}
}

// TransactionEnabled reports whether runs are transactional (default true).
func (c Config) TransactionEnabled() bool {
	return c.Database.Transaction == nil || *c.Database.Transaction
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, out any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// applyEnv overrides fields from AUTOCAT_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("AUTOCAT_DB_DRIVER", &c.Database.Driver)
	str("AUTOCAT_DB_DSN", &c.Database.DSN)
	str("AUTOCAT_MEMBERSHIP_TABLE", &c.Database.MembershipTable)
	str("AUTOCAT_LOG_MODE", &c.Log.Mode)
	str("AUTOCAT_LOCK_BACKEND", &c.Lock.Backend)
	str("AUTOCAT_REDIS_ADDR", &c.Lock.RedisAddr)
	str("AUTOCAT_METRICS_ADDR", &c.Metrics.Addr)
	str("AUTOCAT_GROUPINGS_DIR", &c.GroupingsDir)

	if v, ok := lookup("AUTOCAT_CONCURRENCY"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("AUTOCAT_CONCURRENCY: %w", err)
		}
		c.Runner.Concurrency = n
	}
	if v, ok := lookup("AUTOCAT_LOCK_TTL"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("AUTOCAT_LOCK_TTL: %w", err)
		}
		c.Lock.TTL = d
	}
	if v, ok := lookup("AUTOCAT_TRANSACTION"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("AUTOCAT_TRANSACTION: %w", err)
		}
		c.Database.Transaction = &b
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := querysql.DialectForDriver(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if !queryir.ValidIdentifier(c.Database.MembershipTable) {
		return fmt.Errorf("database.membership_table: invalid name %q", c.Database.MembershipTable)
	}
	switch strings.ToLower(c.Log.Mode) {
	case "", "dev", "development", "debug", "prod", "production":
	default:
		return fmt.Errorf("log.mode: unknown mode %q", c.Log.Mode)
	}
	switch c.Lock.Backend {
	case LockLocal, LockNone:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return errors.New("lock.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("lock.backend: unknown backend %q", c.Lock.Backend)
	}
	if c.Lock.TTL < 0 {
		return errors.New("lock.ttl must not be negative")
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be positive, got %d", c.Runner.Concurrency)
	}
	return nil
}
