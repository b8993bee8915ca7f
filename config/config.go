package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP API and websocket gateway
	GatewayAddr string
	CORSOrigin  string

	// TOTP secret for /api/auth. Empty disables authentication.
	TOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string

	// Upstream exchange endpoints. Overridable for tests and mirrors.
	BinanceBaseURL  string
	OKXBaseURL      string
	ProviderTimeout time.Duration

	// Fraction of the expected bar count that makes the cache sufficient.
	CacheSufficiency float64

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Redis is optional: leave REDIS_ADDR empty to run on SQLite alone.
func Load() *Config {
	return &Config{
		GatewayAddr: getEnv("GATEWAY_ADDR", ":8080"),
		CORSOrigin:  getEnv("CORS_ORIGIN", "*"),
		TOTPSecret:  getEnv("TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/tradelab.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		BinanceBaseURL:  getEnv("BINANCE_BASE_URL", ""),
		OKXBaseURL:      getEnv("OKX_BASE_URL", ""),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),

		CacheSufficiency: getEnvFloat("CACHE_SUFFICIENCY", 0.9),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
