// Package config loads and validates client config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds client configuration loaded from the environment.
type Config struct {
	// APIURL is the base URL of the SecureVote service (e.g. http://127.0.0.1:8000).
	APIURL string `mapstructure:"SECUREVOTE_API_URL"`
	// DBPath is the path of the local SQLite store (token slot + vote receipts).
	// Empty means ~/.securevote/securevote.db.
	DBPath string `mapstructure:"SECUREVOTE_DB_PATH"`
	// HTTPTimeout bounds each service call (e.g. "15s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`
	// OTLPEndpoint is the OTLP collector endpoint (e.g. http://localhost:4317).
	// Empty disables telemetry.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("SECUREVOTE_API_URL", "")
	v.SetDefault("SECUREVOTE_DB_PATH", "")
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIURL == "" {
		return nil, errors.New("config: SECUREVOTE_API_URL must be set")
	}

	return &cfg, nil
}

// Timeout parses HTTPTimeout as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// DatabasePath returns DBPath, or the per-user default under the home
// directory when unset.
func (c *Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".securevote", "securevote.db"), nil
}
