// Package config loads and validates the pipeline's environment-variable
// configuration (spec.md §6), the same pattern pkg/database/config.go
// uses for the teacher's Postgres connection settings: a typed struct,
// a LoadFromEnv constructor with defaults, and an eager Validate pass.
//
// Unlike the teacher's YAML-driven pkg/config (registries of agents,
// chains, MCP servers), this pipeline has no nested registry structure to
// load — every field named in spec.md §6 is env-only, so there is no
// "unknown key" rejection concept the way the teacher rejects unknown
// YAML keys; every *known* key is still validated.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the single validated configuration struct spec.md §9 asks
// for in place of the teacher's dynamic feature-flag dictionaries.
type Config struct {
	StoreAPIKey            string
	ExtractionAPIKey       string
	MasterEncryptionKey    string
	CacheEncryptionEnabled bool

	RateLimitRPS float64
	CacheDir     string
	LogLevel     string

	// Derived operational defaults (spec.md §5), overridable by callers
	// that embed Config in a larger options struct but not by raw env
	// vars — these are algorithm parameters, not deployment knobs.
	StoreCallTimeout    time.Duration
	ExtractionTimeout   time.Duration
	TranscriptTimeout   time.Duration
	BatchPerTranscript  time.Duration
	BatchMinimumFloor   time.Duration
	DefaultConcurrency  int
	MaxConcurrency      int
	SchemaCacheTTL      time.Duration
	DedupHighThreshold  float64
	DedupLowThreshold   float64
	OverwriteConfidence float64
	JobResultTTL        time.Duration
}

// LoadFromEnv reads the environment variables enumerated in spec.md §6,
// applies defaults, and validates. STORE_API_KEY and EXTRACTION_API_KEY
// are always required; MASTER_ENCRYPTION_KEY is required only when
// cacheEncryptionEnabled is true, with no fallback value (spec.md §9
// Open Question 3).
func LoadFromEnv(cacheEncryptionEnabled bool) (*Config, error) {
	rps, err := parseFloatOrDefault("RATE_LIMIT_RPS", 3.0)
	if err != nil {
		return nil, fieldErr("RATE_LIMIT_RPS", "not a number: %w", err)
	}

	cfg := &Config{
		StoreAPIKey:            os.Getenv("STORE_API_KEY"),
		ExtractionAPIKey:       os.Getenv("EXTRACTION_API_KEY"),
		MasterEncryptionKey:    os.Getenv("MASTER_ENCRYPTION_KEY"),
		CacheEncryptionEnabled: cacheEncryptionEnabled,
		RateLimitRPS:           rps,
		CacheDir:               getEnvOrDefault("CACHE_DIR", "./.cache"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),

		StoreCallTimeout:    30 * time.Second,
		ExtractionTimeout:   60 * time.Second,
		TranscriptTimeout:   10 * time.Minute,
		BatchPerTranscript:  30 * time.Second,
		BatchMinimumFloor:   10 * time.Minute,
		DefaultConcurrency:  4,
		MaxConcurrency:      16,
		SchemaCacheTTL:      5 * time.Minute,
		DedupHighThreshold:  90,
		DedupLowThreshold:   75,
		OverwriteConfidence: 0.85,
		JobResultTTL:        24 * time.Hour,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field's constraints (spec.md §4.1, §6, §9).
func (c *Config) Validate() error {
	if c.StoreAPIKey == "" {
		return fieldErr("STORE_API_KEY", "is required")
	}
	if c.ExtractionAPIKey == "" {
		return fieldErr("EXTRACTION_API_KEY", "is required")
	}
	if c.CacheEncryptionEnabled && c.MasterEncryptionKey == "" {
		return fieldErr("MASTER_ENCRYPTION_KEY", "is required when cache encryption is enabled (no fallback)")
	}
	if c.RateLimitRPS < 0.1 || c.RateLimitRPS > 10 {
		return fieldErr("RATE_LIMIT_RPS", "must be in [0.1, 10], got %v", c.RateLimitRPS)
	}
	if c.CacheDir == "" {
		return fieldErr("CACHE_DIR", "must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fieldErr("LOG_LEVEL", "invalid value %q", c.LogLevel)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseFloatOrDefault(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}
