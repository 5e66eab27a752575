// Package config provides client configuration through environment variables,
// an optional .env file and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
type Config struct {
	// ServerURL is the base URL of the credential service.
	ServerURL string
	// AccountFile is the path of the encoded account file.
	AccountFile string
	// StoreDir is the directory of the on-disk cache store. Empty keeps the
	// cache in memory.
	StoreDir string

	// CacheTTL is the lifetime of the local cache key and its entries.
	CacheTTL time.Duration

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries on transport failures.
	MaxRetries int
	// RateLimitRequestsPerSec paces outgoing requests. Zero disables pacing.
	RateLimitRequestsPerSec float64
	// RateLimitBurst is the burst size for request pacing.
	RateLimitBurst int

	// Concurrency bounds parallel record decryption.
	Concurrency int

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// MetricsEnabled indicates whether operation metrics are recorded.
	MetricsEnabled bool
	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string

	// ServeAddr is the listen address of the local fake service.
	ServeAddr string
}

// fileConfig mirrors Config for YAML. Unset fields leave the current value.
type fileConfig struct {
	ServerURL               *string        `yaml:"serverURL"`
	AccountFile             *string        `yaml:"accountFile"`
	StoreDir                *string        `yaml:"storeDir"`
	CacheTTL                *time.Duration `yaml:"cacheTTL"`
	Timeout                 *time.Duration `yaml:"timeout"`
	MaxRetries              *int           `yaml:"maxRetries"`
	RateLimitRequestsPerSec *float64       `yaml:"rateLimitRequestsPerSec"`
	RateLimitBurst          *int           `yaml:"rateLimitBurst"`
	Concurrency             *int           `yaml:"concurrency"`
	LogLevel                *string        `yaml:"logLevel"`
	MetricsEnabled          *bool          `yaml:"metricsEnabled"`
	MetricsNamespace        *string        `yaml:"metricsNamespace"`
	ServeAddr               *string        `yaml:"serveAddr"`
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	loadDotEnv()

	return &Config{
		ServerURL:   env.GetString("SKAP_SERVER_URL", "http://localhost:8080"),
		AccountFile: env.GetString("SKAP_ACCOUNT_FILE", "account.skap"),
		StoreDir:    env.GetString("SKAP_STORE_DIR", ""),

		CacheTTL: env.GetDuration("SKAP_CACHE_TTL_SECONDS", 3600, time.Second),

		Timeout:                 env.GetDuration("SKAP_TIMEOUT_SECONDS", 30, time.Second),
		MaxRetries:              env.GetInt("SKAP_MAX_RETRIES", 0),
		RateLimitRequestsPerSec: env.GetFloat64("SKAP_RATE_LIMIT_REQUESTS_PER_SEC", 0),
		RateLimitBurst:          env.GetInt("SKAP_RATE_LIMIT_BURST", 1),

		Concurrency: env.GetInt("SKAP_CONCURRENCY", 8),

		LogLevel: env.GetString("SKAP_LOG_LEVEL", "info"),

		MetricsEnabled:   env.GetBool("SKAP_METRICS_ENABLED", false),
		MetricsNamespace: env.GetString("SKAP_METRICS_NAMESPACE", "skap"),

		ServeAddr: env.GetString("SKAP_SERVE_ADDR", "127.0.0.1:8080"),
	}
}

// LoadFile loads configuration from the environment and then overlays the
// YAML file at path. An empty path is the same as Load.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Merge(data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays the fields set in the YAML document data.
func (c *Config) Merge(data []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	setIf(&c.ServerURL, f.ServerURL)
	setIf(&c.AccountFile, f.AccountFile)
	setIf(&c.StoreDir, f.StoreDir)
	setIf(&c.CacheTTL, f.CacheTTL)
	setIf(&c.Timeout, f.Timeout)
	setIf(&c.MaxRetries, f.MaxRetries)
	setIf(&c.RateLimitRequestsPerSec, f.RateLimitRequestsPerSec)
	setIf(&c.RateLimitBurst, f.RateLimitBurst)
	setIf(&c.Concurrency, f.Concurrency)
	setIf(&c.LogLevel, f.LogLevel)
	setIf(&c.MetricsEnabled, f.MetricsEnabled)
	setIf(&c.MetricsNamespace, f.MetricsNamespace)
	setIf(&c.ServeAddr, f.ServeAddr)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadDotEnv searches for a .env file from the current directory up to the
// root directory and loads the first one found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
