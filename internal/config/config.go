// Package config loads the bandit configuration: defaults, then a YAML file,
// then BANDIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/bandit/internal/logging"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the process configuration shared by the CLI commands.
type Config struct {
	Listen          string        `mapstructure:"listen" env:"BANDIT_LISTEN"`
	SitesDir        string        `mapstructure:"sites_dir" env:"BANDIT_SITES_DIR"`
	SiteName        string        `mapstructure:"site" env:"BANDIT_SITE"`
	Timeout         time.Duration `mapstructure:"timeout" env:"BANDIT_TIMEOUT"`
	Defer           bool          `mapstructure:"defer" env:"BANDIT_DEFER"`
	FallbackVariant string        `mapstructure:"fallback_variant" env:"BANDIT_FALLBACK_VARIANT"`
	LogLevel        string        `mapstructure:"log_level" env:"BANDIT_LOG_LEVEL"`
	LogFormat       string        `mapstructure:"log_format" env:"BANDIT_LOG_FORMAT"`

	Storage StorageConfig `mapstructure:"storage" envPrefix:"BANDIT_STORAGE_"`
	Metrics MetricsConfig `mapstructure:"metrics" envPrefix:"BANDIT_METRICS_"`
}

// StorageConfig selects the session backend.
type StorageConfig struct {
	Backend string      `mapstructure:"backend" env:"BACKEND"`
	Dir     string      `mapstructure:"dir" env:"DIR"`
	Redis   RedisConfig `mapstructure:"redis" envPrefix:"REDIS_"`
	// EncryptionKey is a base64 AES-256 key; when set, values are encrypted at rest.
	EncryptionKey string `mapstructure:"encryption_key" env:"ENCRYPTION_KEY"`
	// FallbackKeys still decrypt values written before a key rotation.
	FallbackKeys []string `mapstructure:"fallback_keys" env:"FALLBACK_KEYS" envSeparator:","`
}

// RedisConfig configures the Redis session store and locker.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" env:"ADDR"`
	Password string        `mapstructure:"password" env:"PASSWORD"`
	DB       int           `mapstructure:"db" env:"DB"`
	Prefix   string        `mapstructure:"prefix" env:"PREFIX"`
	TTL      time.Duration `mapstructure:"ttl" env:"TTL"`
	Lock     bool          `mapstructure:"lock" env:"LOCK"`
}

// MetricsConfig configures the event pipeline.
type MetricsConfig struct {
	// EventsPath enables the SQLite event store.
	EventsPath string `mapstructure:"events_path" env:"EVENTS_PATH"`
	// IngestURL forwards batches to a remote /api/metrics endpoint.
	IngestURL     string        `mapstructure:"ingest_url" env:"INGEST_URL"`
	BatchSize     int           `mapstructure:"batch_size" env:"BATCH_SIZE"`
	FlushInterval time.Duration `mapstructure:"flush_interval" env:"FLUSH_INTERVAL"`
	Prometheus    bool          `mapstructure:"prometheus" env:"PROMETHEUS"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:    ":8080",
		SitesDir:  "sites",
		SiteName:  "default",
		LogLevel:  "info",
		LogFormat: "text",
		Storage: StorageConfig{
			Backend: BackendMemory,
			Dir:     ".bandit/sessions",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "bandit:",
				TTL:    30 * time.Minute,
			},
		},
		Metrics: MetricsConfig{
			BatchSize:     50,
			FlushInterval: 5 * time.Second,
			Prometheus:    true,
		},
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ParseEnv loads configuration from environment variables.
// Variables that are not set leave the current value untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks enumerations and bounds.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.Metrics.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("metrics batch_size must be positive"))
	}
	if c.SiteName == "" {
		errs = append(errs, fmt.Errorf("site name is required"))
	}
	return errors.Join(errs...)
}

// decodeYAML goes through a generic map so mapstructure can apply the
// duration hook and reject unknown keys.
func decodeYAML(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		DecodeHook:  durationHook,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook accepts "750ms"-style strings or bare numbers as milliseconds.
func durationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return data, nil
	}
}
