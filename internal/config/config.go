// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Server
	Port    int
	DevMode bool
	APIKey  string

	// Database
	DatabasePath string

	// Upstream collection
	UpstreamBaseURL           string
	UpstreamRequestsPerSecond float64
	UpstreamMaxRetries        int
	UpstreamRetryBaseDelay    time.Duration
	CollectorMaxConcurrency   int
	CollectorDefaultDays      int

	// Cache
	CacheMaxEntries  int
	CacheFastTTL     time.Duration
	CacheNormalTTL   time.Duration
	CacheSlowTTL     time.Duration
	CacheStatusTTL   time.Duration

	// Scheduler (cron expressions, evaluated in Asia/Seoul)
	DailyCollectionCron     string
	IntradayCollectionCron  string
	FundamentalsCron        string
	CatalogRefreshCron      string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables, loading a .env file
// first if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnvAsInt("PORT", 8080),
		DevMode: getEnvAsBool("DEV_MODE", false),
		APIKey:  getEnv("API_KEY", ""),

		DatabasePath: getEnv("DATABASE_PATH", "./data/market.db"),

		UpstreamBaseURL:           getEnv("UPSTREAM_BASE_URL", "https://finance.naver.com"),
		UpstreamRequestsPerSecond: getEnvAsFloat("UPSTREAM_REQUESTS_PER_SECOND", 2.0),
		UpstreamMaxRetries:        getEnvAsInt("UPSTREAM_MAX_RETRIES", 3),
		UpstreamRetryBaseDelay:    getEnvAsDuration("UPSTREAM_RETRY_BASE_DELAY", 500*time.Millisecond),
		CollectorMaxConcurrency:   getEnvAsInt("COLLECTOR_MAX_CONCURRENCY", 4),
		CollectorDefaultDays:      getEnvAsInt("COLLECTOR_DEFAULT_DAYS", 30),

		CacheMaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
		CacheFastTTL:    getEnvAsDuration("CACHE_FAST_TTL", 30*time.Second),
		CacheNormalTTL:  getEnvAsDuration("CACHE_NORMAL_TTL", 60*time.Second),
		CacheSlowTTL:    getEnvAsDuration("CACHE_SLOW_TTL", 300*time.Second),
		CacheStatusTTL:  getEnvAsDuration("CACHE_STATUS_TTL", 10*time.Second),

		DailyCollectionCron:    getEnv("DAILY_COLLECTION_CRON", "0 0 16 * * *"),
		IntradayCollectionCron: getEnv("INTRADAY_COLLECTION_CRON", "0 */5 9-15 * * MON-FRI"),
		FundamentalsCron:       getEnv("FUNDAMENTALS_CRON", "0 30 16 * * MON-FRI"),
		CatalogRefreshCron:     getEnv("CATALOG_REFRESH_CRON", "0 0 7 * * MON"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.UpstreamRequestsPerSecond <= 0 {
		return fmt.Errorf("UPSTREAM_REQUESTS_PER_SECOND must be positive")
	}
	if c.CollectorMaxConcurrency <= 0 {
		return fmt.Errorf("COLLECTOR_MAX_CONCURRENCY must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
