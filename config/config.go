// Package config loads CLI configuration from a YAML file and WASMBRIDGE_*
// environment variables, and builds the process logger from it.
package config

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WASMBRIDGE_"

// Config is the top-level configuration file.
type Config struct {
	Engine engine.Config `yaml:"engine"`
	Log    Log           `yaml:"log"`

	// MetricsAddr serves Prometheus metrics on this address when non-empty,
	// e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
}

// Log configures the process logger.
type Log struct {
	// Level is one of debug, info, warn, error. Empty means warn.
	Level string `yaml:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`

	// File additionally writes JSON logs to a rotated file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used without a file.
func Default() Config {
	return Config{
		Engine: engine.DefaultConfig(),
		Log: Log{
			Level:      "warn",
			MaxSizeMB:  16,
			MaxBackups: 4,
			MaxAgeDays: 7,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "read config")
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "parse "+path)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WASMBRIDGE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok
	}

	if v, ok := get("BACKEND"); ok {
		c.Engine.Backend = engine.Backend(v)
	}
	if v, ok := get("MODE"); ok {
		c.Engine.Mode = engine.Mode(v)
	}
	if v, ok := get("CACHE_DIR"); ok {
		c.Engine.CacheDir = v
	}
	if v, ok := get("MEMORY_LIMIT_PAGES"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return envError("MEMORY_LIMIT_PAGES", v, err)
		}
		c.Engine.MemoryLimitPages = uint32(n)
	}
	if v, ok := get("CLOSE_ON_CONTEXT_DONE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("CLOSE_ON_CONTEXT_DONE", v, err)
		}
		c.Engine.CloseOnContextDone = b
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FILE"); ok {
		c.Log.File = v
	}
	if v, ok := get("LOG_DEVELOPMENT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("LOG_DEVELOPMENT", v, err)
		}
		c.Log.Development = b
	}
	if v, ok := get("METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}

func envError(name, value string, err error) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
		Value(value).
		Cause(err).
		Detail("invalid %s%s", EnvPrefix, name).
		Build()
}

// Validate checks the engine section and the log level.
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	return nil
}

func (l Log) level() (zapcore.Level, error) {
	if l.Level == "" {
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return 0, errors.InvalidArgument(errors.PhaseConfig, "unknown log level %q", l.Level)
	}
	return lvl, nil
}
