// Package config loads the settings of the parley binary from a YAML file,
// an optional .env file and PARLEY_* environment variables, in that order
// of increasing precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. PARLEY_STORE_DRIVER.
const EnvPrefix = "PARLEY"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Flows     FlowsConfig     `yaml:"flows"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	HTTP      HTTPConfig      `yaml:"http"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Security  SecurityConfig  `yaml:"security"`
}

type FlowsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the session directory of the file driver.
	Path string `yaml:"path"`
	// DSN is the data source of the sqlite and postgres drivers.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	// Lock serializes sessions and scheduler sweeps across replicas.
	Lock    bool          `yaml:"lock"`
	LockTTL time.Duration `yaml:"lock_ttl" split_words:"true"`
}

type AMQPConfig struct {
	// URL enables the RabbitMQ channel when set.
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size" split_words:"true"`
	Workers   int           `yaml:"workers"`
	// Retention purges terminal sessions idle for longer; zero keeps them.
	Retention time.Duration `yaml:"retention"`
}

type EngineConfig struct {
	MaxSteps     int `yaml:"max_steps" split_words:"true"`
	MaxInputSize int `yaml:"max_input_size" split_words:"true"`
}

type SecurityConfig struct {
	// EncryptionKey is a base64 AES-256 key; when set, session variables are encrypted at rest.
	EncryptionKey string   `yaml:"encryption_key" split_words:"true"`
	FallbackKeys  []string `yaml:"fallback_keys" split_words:"true"`
	// PIIPatterns are regular expressions over variable names masked before saving.
	PIIPatterns []string `yaml:"pii_patterns" split_words:"true"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Flows: FlowsConfig{Dir: "flows"},
		Log:   LogConfig{Level: "info", Format: string(logging.FormatText)},
		Store: StoreConfig{Driver: DriverMemory, Path: ".parley/sessions", Table: "parley_sessions"},
		Redis: RedisConfig{Addr: "localhost:6379", Prefix: "parley:", LockTTL: 30 * time.Second},
		AMQP:  AMQPConfig{Exchange: "parley.events"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{
			Interval:  5 * time.Second,
			BatchSize: 500,
			Workers:   16,
		},
		Engine: EngineConfig{MaxSteps: 100, MaxInputSize: 4096},
	}
}

// Load reads path (skipped when empty), then dotenv, then the environment.
func Load(path string, dotenv ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := loadDotEnv(dotenv...); err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the files that exist. Variables already set win.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file driver"))
		}
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if c.Scheduler.Workers <= 0 {
		errs = append(errs, errors.New("scheduler.workers must be positive"))
	}
	if _, _, err := c.Security.Keys(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger builds the application logger.
func (l LogConfig) Logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format), nil
}

// NeedsRedis reports whether any component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Store.Driver == DriverRedis || c.Redis.Lock
}

// Keys decodes the encryption keys. A nil active key disables encryption.
func (s SecurityConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, errors.New("security.fallback_keys need an encryption_key")
		}
		return nil, nil, nil
	}
	if active, err = decodeKey(s.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("security.encryption_key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("security.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
