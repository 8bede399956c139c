// Package common provides shared utilities for the screening service.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the screening service.
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Screening   ScreeningConfig `toml:"screening"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
	Logging     LoggingConfig  `toml:"logging"`
	Auth        AuthConfig     `toml:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	User      string `toml:"user"`
	Pass      string `toml:"pass"`
}

// ScreeningConfig holds the dispatch/worker/retention tuning knobs (§4).
type ScreeningConfig struct {
	// SyncThreshold is the pending+running queue depth above which the
	// Dispatcher switches from synchronous screening to enqueueing (§4.4).
	SyncThreshold int `toml:"sync_threshold"`

	// WorkerCount is the number of concurrent job-processing goroutines.
	WorkerCount int `toml:"worker_count"`

	// WorkerPollSeconds is the idle poll interval between queue claims.
	WorkerPollSeconds int `toml:"worker_poll_seconds"`

	// CleanupEveryNLoops triggers a retention sweep every N poll iterations.
	CleanupEveryNLoops int `toml:"cleanup_every_n_loops"`

	// JobRetentionDays bounds how long terminal job rows are kept.
	JobRetentionDays int `toml:"job_retention_days"`

	// EvidenceRetentionMonths bounds how long expired evidence rows are
	// kept before being purged. Zero disables the sweep.
	EvidenceRetentionMonths int `toml:"evidence_retention_months"`

	// ValidityDays is the evidence cache TTL (§3).
	ValidityDays int `toml:"validity_days"`

	// MatchThreshold / SuggestionThreshold are the Matcher's score cutoffs (§4.5).
	MatchThreshold      float64 `toml:"match_threshold"`
	SuggestionThreshold float64 `toml:"suggestion_threshold"`

	// MatcherDeadlineSeconds bounds a single Screen call.
	MatcherDeadlineSeconds int `toml:"matcher_deadline_seconds"`

	// InternalApiKey gates the refresh/review/admin surface (§4.9).
	InternalApiKey string `toml:"internal_api_key"`

	// InternalIpAllowlist is an optional CIDR allowlist for the internal
	// surface, in addition to the API key.
	InternalIpAllowlist []string `toml:"internal_ip_allowlist"`

	// TrustedProxyIps lists proxies allowed to set X-Forwarded-For for
	// client-IP rate limiting purposes.
	TrustedProxyIps []string `toml:"trusted_proxy_ips"`
}

// RateLimitConfig holds per-IP and per-account rate governor settings (§4.9).
type RateLimitConfig struct {
	// RequestsPerSecond / Burst configure the per-IP token bucket.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`

	// StorageUrl points at a shared backend for the rate governor in a
	// multi-instance deployment. Empty means process-local only.
	StorageUrl string `toml:"storage_url"`
}

// AuthConfig holds JWT signing configuration for actor authentication.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"` // duration string, default "24h"
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://127.0.0.1:8000/rpc",
			Namespace: "opcheck",
			Database:  "opcheck",
			User:      "root",
			Pass:      "root",
		},
		Screening: ScreeningConfig{
			SyncThreshold:           5,
			WorkerCount:             2,
			WorkerPollSeconds:       5,
			CleanupEveryNLoops:      50,
			JobRetentionDays:        7,
			EvidenceRetentionMonths: 0,
			ValidityDays:            365,
			MatchThreshold:          75,
			SuggestionThreshold:     60,
			MatcherDeadlineSeconds:  30,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Auth: AuthConfig{
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "24h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/opcheck.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier).
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("OPCHECK_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("OPCHECK_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("OPCHECK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("OPCHECK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("OPCHECK_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("OPCHECK_STORAGE_NAMESPACE"); v != "" {
		config.Storage.Namespace = v
	}
	if v := os.Getenv("OPCHECK_STORAGE_DATABASE"); v != "" {
		config.Storage.Database = v
	}
	if v := os.Getenv("OPCHECK_STORAGE_USER"); v != "" {
		config.Storage.User = v
	}
	if v := os.Getenv("OPCHECK_STORAGE_PASS"); v != "" {
		config.Storage.Pass = v
	}

	if v := os.Getenv("OPCHECK_SYNC_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Screening.SyncThreshold = n
		}
	}
	if v := os.Getenv("OPCHECK_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Screening.WorkerCount = n
		}
	}
	if v := os.Getenv("OPCHECK_INTERNAL_API_KEY"); v != "" {
		config.Screening.InternalApiKey = v
	}

	if v := os.Getenv("OPCHECK_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("OPCHECK_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired reports the names of required fields left at insecure
// defaults or empty, for a production readiness check at startup.
func (c *Config) ValidateRequired() []string {
	var missing []string
	switch {
	case c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "dev-jwt-secret-change-in-production":
		missing = append(missing, "auth.jwt_secret")
	case len(c.Auth.JWTSecret) < 32:
		missing = append(missing, "auth.jwt_secret (minimum 32 characters)")
	}
	if c.Screening.InternalApiKey == "" {
		missing = append(missing, "screening.internal_api_key")
	}
	if c.Storage.Address == "" {
		missing = append(missing, "storage.address")
	}
	return missing
}
