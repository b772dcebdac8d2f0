// Package config loads authgate settings from an optional YAML file and
// AUTHGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Ledger backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Boundary   BoundaryConfig   `mapstructure:"boundary"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	MCP        MCPConfig        `mapstructure:"mcp"`
}

// LogConfig selects level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LedgerConfig selects where sealed entries live and how they are signed.
type LedgerConfig struct {
	Backend          string `mapstructure:"backend"`
	Path             string `mapstructure:"path"`
	SignatureVersion int    `mapstructure:"signature_version"`
}

// RedisConfig is used when the ledger backend is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CheckpointConfig enables encryption of checkpoint snapshots at rest.
// Keys are hex-encoded 32-byte AES keys; an empty EncryptionKey disables it.
type CheckpointConfig struct {
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

// BoundaryConfig tunes the mutation boundary. The hold threshold is fixed.
type BoundaryConfig struct {
	ActionTTL        time.Duration `mapstructure:"action_ttl"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// HTTPConfig is the audit API listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// MCPConfig is the SSE port for `authgate mcp --sse`.
type MCPConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads configuration from path (optional) and env.
// Env var overrides use prefix AUTHGATE_, e.g. AUTHGATE_LEDGER_BACKEND.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.path", "authgate.db")
	v.SetDefault("ledger.signature_version", 1)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "authgate:")
	v.SetDefault("checkpoint.encryption_key", "")
	v.SetDefault("checkpoint.fallback_keys", []string{})
	v.SetDefault("boundary.action_ttl", "0s")
	v.SetDefault("boundary.progress_interval", "16ms")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("mcp.port", 8081)

	v.SetConfigType("yaml")
	if path == "" {
		path = os.Getenv("AUTHGATE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("AUTHGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return decode(v.AllSettings())
}

func decode(settings map[string]any) (Config, error) {
	var c Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(settings); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings no component can honor.
func (c Config) Validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend))
	}
	if c.Ledger.Backend == BackendSQLite && c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger.path is required for the sqlite backend"))
	}
	if c.Checkpoint.EncryptionKey == "" && len(c.Checkpoint.FallbackKeys) > 0 {
		errs = append(errs, errors.New("checkpoint.fallback_keys requires checkpoint.encryption_key"))
	}
	if c.Boundary.ActionTTL < 0 {
		errs = append(errs, errors.New("boundary.action_ttl must not be negative"))
	}
	if c.Boundary.ProgressInterval <= 0 {
		errs = append(errs, errors.New("boundary.progress_interval must be positive"))
	}
	return errors.Join(errs...)
}
