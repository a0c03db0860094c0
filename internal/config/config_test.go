package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	original, had := os.LookupEnv(key)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, original)
		} else {
			os.Unsetenv(key)
		}
	})
	os.Setenv(key, value)
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_PATH", "UPSTREAM_REQUESTS_PER_SECOND", "COLLECTOR_MAX_CONCURRENCY", "API_KEY"} {
		withEnv(t, key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "./data/market.db", cfg.DatabasePath)
	assert.Equal(t, 2.0, cfg.UpstreamRequestsPerSecond)
	assert.Equal(t, 4, cfg.CollectorMaxConcurrency)
	assert.Equal(t, "", cfg.APIKey)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	withEnv(t, "PORT", "9090")
	withEnv(t, "API_KEY", "secret-key")
	withEnv(t, "UPSTREAM_REQUESTS_PER_SECOND", "5.5")
	withEnv(t, "CACHE_FAST_TTL", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "secret-key", cfg.APIKey)
	assert.Equal(t, 5.5, cfg.UpstreamRequestsPerSecond)
	assert.Equal(t, 10e9, float64(cfg.CacheFastTTL))
}

func TestValidate_RejectsMissingDatabasePath(t *testing.T) {
	cfg := &Config{DatabasePath: "", UpstreamRequestsPerSecond: 1, CollectorMaxConcurrency: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_PATH")
}

func TestValidate_RejectsNonPositiveRate(t *testing.T) {
	cfg := &Config{DatabasePath: "x.db", UpstreamRequestsPerSecond: 0, CollectorMaxConcurrency: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_REQUESTS_PER_SECOND")
}
