// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"certalign/internal/alignment"
)

// Config holds all environment-driven settings.
type Config struct {
	ReferencePath string
	TolerancePx   float64
	MaxAttempts   int
	BandsFile     string

	DarkPixelThreshold int
	MinDarkRowPixels   int
	MinDarkColPixels   int

	CacheFile     string
	CacheTTLHours int
	StatsFile     string

	RedisURL    string
	DatabaseURL string
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ReferencePath:      getEnv("CERTALIGN_REFERENCE", ""),
		TolerancePx:        getEnvFloat("CERTALIGN_TOLERANCE_PX", 0.02),
		MaxAttempts:        getEnvInt("CERTALIGN_MAX_ATTEMPTS", 30),
		BandsFile:          getEnv("CERTALIGN_BANDS_FILE", ""),
		DarkPixelThreshold: getEnvInt("CERTALIGN_DARK_THRESHOLD", 200),
		MinDarkRowPixels:   getEnvInt("CERTALIGN_MIN_DARK_ROW", 100),
		MinDarkColPixels:   getEnvInt("CERTALIGN_MIN_DARK_COL", 10),
		CacheFile:          getEnv("CERTALIGN_CACHE_FILE", "position_cache.json"),
		CacheTTLHours:      getEnvInt("CERTALIGN_CACHE_TTL_HOURS", 24),
		StatsFile:          getEnv("CERTALIGN_STATS_FILE", "alignment_stats.json"),
		RedisURL:           getEnv("CERTALIGN_REDIS_URL", ""),
		DatabaseURL:        getEnv("CERTALIGN_DATABASE_URL", ""),
	}

	if cfg.TolerancePx <= 0 {
		return nil, fmt.Errorf("CERTALIGN_TOLERANCE_PX must be positive, got %g", cfg.TolerancePx)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("CERTALIGN_MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.DarkPixelThreshold < 0 || cfg.DarkPixelThreshold > 255 {
		return nil, fmt.Errorf("CERTALIGN_DARK_THRESHOLD must be in [0, 255], got %d", cfg.DarkPixelThreshold)
	}

	return cfg, nil
}

// ExtractorOptions converts the configured thresholds.
func (c *Config) ExtractorOptions() alignment.ExtractorOptions {
	return alignment.ExtractorOptions{
		DarkPixelThreshold: uint8(c.DarkPixelThreshold),
		MinDarkRowPixels:   c.MinDarkRowPixels,
		MinDarkColPixels:   c.MinDarkColPixels,
	}
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
