// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

// Package config loads process configuration.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults
//  2. a YAML file (--config, else $XDG_CONFIG_HOME/pronoia/config.yaml when present)
//  3. PRONOIA_* environment variables (PRONOIA_TOKEN_SECRET sets token.secret)
//  4. command-line flags the user actually set
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/pronoia/pronoia/internal/auth"
	"github.com/pronoia/pronoia/internal/logging"
	"github.com/pronoia/pronoia/internal/store"
	"github.com/pronoia/pronoia/internal/xdg"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "PRONOIA_"

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the complete process configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Storage  string         `koanf:"storage"`
	Token    TokenConfig    `koanf:"token"`
	Hasher   HasherConfig   `koanf:"hasher"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string `koanf:"url"`
	ConnectAttempts int    `koanf:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
}

// TokenConfig configures bearer token signing.
type TokenConfig struct {
	Secret string        `koanf:"secret"`
	Issuer string        `koanf:"issuer"`
	TTL    time.Duration `koanf:"ttl"`
}

// HasherConfig holds the argon2id cost parameters for new hashes.
type HasherConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	argon := auth.DefaultArgon2Params()
	return map[string]any{
		"http.addr":                 ":8080",
		"metrics.addr":              "127.0.0.1:9100",
		"database.url":              "",
		"database.connect_attempts": store.DefaultConnectAttempts,
		"database.auto_migrate":     false,
		"storage":                   StoragePostgres,
		"token.secret":              "",
		"token.issuer":              auth.DefaultTokenIssuer,
		"token.ttl":                 auth.DefaultTokenTTL,
		"hasher.time":               argon.Time,
		"hasher.memory_kib":         argon.MemoryKiB,
		"hasher.threads":            argon.Threads,
		"log.format":                logging.FormatJSON,
		"log.level":                 "info",
	}
}

// Sources selects where Load reads from beyond the defaults and environment.
type Sources struct {
	// File is an explicit config file path. It must exist when set.
	File string
	// Flags, when non-nil, overrides keys for every flag the user changed.
	// Flag names map to keys by replacing the first '-' with '.', so
	// --http-addr sets http.addr and --storage sets storage; --migrate
	// sets database.auto_migrate.
	Flags *pflag.FlagSet
}

// Load builds a Config from all sources. The result is not validated.
func Load(src Sources) (*Config, error) {
	k := koanf.New(".")

	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	path := src.File
	if path == "" {
		defaultPath, ok, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
		if ok {
			path = defaultPath
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if src.Flags != nil {
		provider := posflag.ProviderWithFlag(src.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := flagKey(f.Name)
			if !k.Exists(key) {
				return "", nil
			}
			return key, posflag.FlagVal(src.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// sections are the nested config groups; everything else is a top-level key.
var sections = map[string]bool{
	"http": true, "metrics": true, "database": true,
	"token": true, "hasher": true, "log": true,
}

// envKey maps PRONOIA_DATABASE_CONNECT_ATTEMPTS to database.connect_attempts.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if section, rest, ok := strings.Cut(key, "_"); ok && sections[section] {
		return section + "." + rest
	}
	return key
}

// flagAliases are flags whose names do not follow the section-key pattern.
var flagAliases = map[string]string{
	"migrate": "database.auto_migrate",
}

// flagKey maps --database-connect-attempts to database.connect_attempts.
func flagKey(name string) string {
	if key, ok := flagAliases[name]; ok {
		return key
	}
	if section, rest, ok := strings.Cut(name, "-"); ok && sections[section] {
		return section + "." + strings.ReplaceAll(rest, "-", "_")
	}
	return strings.ReplaceAll(name, "-", "_")
}

// Validate checks the configuration for the selected storage backend.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http.addr").Errorf("http.addr is required")
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").
				With("key", "database.url").
				Errorf("database.url is required for postgres storage (set %sDATABASE_URL)", EnvPrefix)
		}
		if c.Database.ConnectAttempts < 1 {
			return oops.Code("CONFIG_INVALID").
				With("key", "database.connect_attempts").
				Errorf("database.connect_attempts must be at least 1")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("key", "storage").
			Errorf("storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}
	if err := c.TokenConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "token").Wrap(err)
	}
	if err := c.Argon2Params().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "hasher").Wrap(err)
	}
	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return oops.Code("CONFIG_INVALID").
			With("key", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}
	return nil
}

// TokenConfig returns the signing configuration for auth.NewJWTService.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(c.Token.Secret),
		Issuer: c.Token.Issuer,
		TTL:    c.Token.TTL,
	}
}

// Argon2Params returns the hasher parameters with the default salt and key sizes.
func (c *Config) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Time = c.Hasher.Time
	p.MemoryKiB = c.Hasher.MemoryKiB
	p.Threads = c.Hasher.Threads
	return p
}
