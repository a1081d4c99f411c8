package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Feed (internal/feed, C1)
	FeedMode    string // "sim" or "live"
	FeedWSURL   string
	FeedHistURL string
	FeedSeed    int64

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string

	// Tradable symbols and enabled timeframes
	Symbols     string
	EnabledTFs  string

	// Per-session default preferences (spec §3 Preferences)
	DefaultRiskTier string
}

// Load reads configuration from environment variables with sensible
// defaults, optionally seeded from a local .env file first (teacher's
// getEnv/mustEnv pattern, plus godotenv for local dev).
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}

	return &Config{
		FeedMode:    getEnv("FEED_MODE", "sim"),
		FeedWSURL:   getEnv("FEED_WS_URL", ""),
		FeedHistURL: getEnv("FEED_HISTORY_URL", ""),
		FeedSeed:    getEnvInt64("FEED_SEED", 1),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/snapshots.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),

		Symbols: getEnv("SYMBOLS", "EURUSD,GBPUSD,USDJPY"),

		// Default TFs: 1m, 5m, 15m
		EnabledTFs: getEnv("ENABLED_TFS", "60,300,900"),

		DefaultRiskTier: getEnv("DEFAULT_RISK_TIER", "moderate"),
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframe
// durations in seconds.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// ParseSymbols parses the comma-separated Symbols string.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using default", key, v)
		return fallback
	}
	return n
}
