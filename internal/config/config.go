// Package config loads application configuration from environment variables
// and an optional YAML file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key to form its variable name.
const EnvPrefix = "MODELDESK"

// Config holds the application configuration.
type Config struct {
	DBPath     string
	ListenAddr string

	// SecretKey is the 32-byte AES-256 key for the local credential tier.
	// Nil disables that tier.
	SecretKey []byte

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	KeyringService string
	Account        string
	ProviderHost   string

	CatalogTTL   time.Duration
	IssueTimeout time.Duration

	LogLevel slog.Level
}

// HasRemoteSettings returns true when a Redis address is configured. Without
// one, settings live only in the local SQLite store.
func (c *Config) HasRemoteSettings() bool {
	return c.RedisAddr != ""
}

// HasSecretKey returns true when the local credential tier can encrypt.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) > 0
}

var defaults = map[string]any{
	"db_path":         "modeldesk.db",
	"listen_addr":     "127.0.0.1:8080",
	"secret_key":      "",
	"redis_addr":      "",
	"redis_password":  "",
	"redis_db":        "0",
	"redis_prefix":    "modeldesk",
	"keyring_service": "modeldesk",
	"account":         "default",
	"provider_host":   "api.openai.com",
	"catalog_ttl":     "5m",
	"issue_timeout":   "30s",
	"log_level":       "info",
}

// Load reads configuration and returns a validated Config. Values come from
// MODELDESK_* environment variables, then from the YAML file named by
// MODELDESK_CONFIG (if set), then from built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DBPath:         v.GetString("db_path"),
		ListenAddr:     v.GetString("listen_addr"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisPrefix:    v.GetString("redis_prefix"),
		KeyringService: v.GetString("keyring_service"),
		Account:        v.GetString("account"),
		ProviderHost:   v.GetString("provider_host"),
	}

	var err error
	if cfg.SecretKey, err = parseSecretKey(v.GetString("secret_key")); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseNonNegative(v.GetString("redis_db"), "REDIS_DB"); err != nil {
		return nil, err
	}
	if cfg.CatalogTTL, err = parsePositiveDuration(v.GetString("catalog_ttl"), "CATALOG_TTL"); err != nil {
		return nil, err
	}
	if cfg.IssueTimeout, err = parsePositiveDuration(v.GetString("issue_timeout"), "ISSUE_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("%s_LOG_LEVEL has invalid level %q: %w", EnvPrefix, v.GetString("log_level"), err)
	}

	if cfg.DBPath == "" {
		return nil, errors.New(EnvPrefix + "_DB_PATH must not be empty")
	}
	if cfg.Account == "" {
		return nil, errors.New(EnvPrefix + "_ACCOUNT must not be empty")
	}
	if cfg.ProviderHost == "" {
		return nil, errors.New(EnvPrefix + "_PROVIDER_HOST must not be empty")
	}

	return cfg, nil
}

func parseSecretKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%s_SECRET_KEY must be 64 hex characters (32 bytes)", EnvPrefix)
	}
	return key, nil
}

func parseNonNegative(raw, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s_%s must be a non-negative integer, got %q", EnvPrefix, name, raw)
	}
	return n, nil
}

func parsePositiveDuration(raw, name string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s_%s has invalid duration %q: %w", EnvPrefix, name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s_%s must be positive, got %s", EnvPrefix, name, d)
	}
	return d, nil
}
