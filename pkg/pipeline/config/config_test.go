package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"STORE_API_KEY", "EXTRACTION_API_KEY", "MASTER_ENCRYPTION_KEY", "RATE_LIMIT_RPS", "CACHE_DIR", "LOG_LEVEL"} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadFromEnvRequiresStoreAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXTRACTION_API_KEY", "x")
	_, err := LoadFromEnv(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_API_KEY")
}

func TestLoadFromEnvAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_API_KEY", "sk")
	t.Setenv("EXTRACTION_API_KEY", "ek")

	cfg, err := LoadFromEnv(false)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.RateLimitRPS)
	assert.Equal(t, "./.cache", cfg.CacheDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvRejectsRateOutOfRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_API_KEY", "sk")
	t.Setenv("EXTRACTION_API_KEY", "ek")
	t.Setenv("RATE_LIMIT_RPS", "50")

	_, err := LoadFromEnv(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_RPS")
}

func TestLoadFromEnvRequiresMasterKeyOnlyWhenEncryptionEnabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_API_KEY", "sk")
	t.Setenv("EXTRACTION_API_KEY", "ek")

	_, err := LoadFromEnv(false)
	require.NoError(t, err)

	_, err = LoadFromEnv(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTER_ENCRYPTION_KEY")

	t.Setenv("MASTER_ENCRYPTION_KEY", "k")
	_, err = LoadFromEnv(true)
	require.NoError(t, err)
}

func TestLoadFromEnvRejectsInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_API_KEY", "sk")
	t.Setenv("EXTRACTION_API_KEY", "ek")
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := LoadFromEnv(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}
