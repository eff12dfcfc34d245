// Package config loads the optional tuning file consulted by
// cmd/cachify-server. The wire protocol and listen port never go
// through here; this only adjusts internal engine/server knobs.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	// EnvKey names the environment variable identifying which
	// deployment environment the server is running in.
	EnvKey = "CACHIFY_ENV"
	// DefaultEnv is used when EnvKey is unset.
	DefaultEnv = "local"
)

// Default tuning values; a missing or partially-specified config file
// falls back to these per field.
const (
	DefaultStripes         = 128
	DefaultIdleTimeout     = time.Second
	DefaultReadBufferBytes = 4096
)

// Config holds the tunable knobs cmd/cachify-server resolves before
// constructing the engine and listener. None of these fields affect
// wire-protocol semantics.
type Config struct {
	Stripes         int           `mapstructure:"stripes"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ReadBufferBytes int           `mapstructure:"read_buffer_bytes"`
}

// Defaults returns a Config populated with the server's baseline
// tuning values.
func Defaults() Config {
	return Config{
		Stripes:         DefaultStripes,
		IdleTimeout:     DefaultIdleTimeout,
		ReadBufferBytes: DefaultReadBufferBytes,
	}
}

// Load resolves a Config starting from Defaults, then overlaying an
// optional YAML file at path. An empty path is not an error: the
// server starts with defaults when no -config flag was given. A path
// that does point somewhere but can't be read or parsed is an error —
// the caller should treat this as fatal rather than start with
// defaults silently different from what the operator asked for.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return Config{}, errors.Errorf("config file %q: %w", path, err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix())
	v.AutomaticEnv()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("stripes", cfg.Stripes)
	v.SetDefault("idle_timeout", cfg.IdleTimeout)
	v.SetDefault("read_buffer_bytes", cfg.ReadBufferBytes)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Errorf("read config %q: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Errorf("parse config %q: %w", path, err)
	}
	if cfg.Stripes < 1 {
		return Config{}, errors.Errorf("config %q: stripes must be >= 1, got %d", path, cfg.Stripes)
	}
	return cfg, nil
}

func envPrefix() string { return "CACHIFY" }

// Env returns the active CACHIFY_ENV value, defaulting to DefaultEnv.
// cmd/cachify-server logs this at startup for operator visibility; it
// does not by itself select a config file path (that's -config).
func Env() string {
	if v := os.Getenv(EnvKey); v != "" {
		return v
	}
	return DefaultEnv
}
