// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"strconv"
)

// Defaults for parsing and caching knobs.
const (
	DefaultFetchWorkers     = 8
	DefaultStreamCacheItems = 64
	DefaultMaxBodyBytes     = 50_000_000
)

// Config holds all configuration for the trace engine.
type Config struct {
	FetchWorkers     int // STREAMLENS_FETCH_WORKERS, parallel artifact readers per archive
	StreamCacheItems int // STREAMLENS_STREAM_CACHE_ITEMS, manifest streams cached per trace
	MaxBodyBytes     int // STREAMLENS_MAX_BODY_BYTES, per-entry body size cap

	// Logging configuration
	LogLevel      string // LOG_LEVEL, default "info"
	LogFile       string // LOG_FILE, default "" (stderr only)
	LogMaxSizeMB  int    // LOG_MAX_SIZE_MB, default 10
	LogMaxBackups int    // LOG_MAX_BACKUPS, default 3
	LogMaxAgeDays int    // LOG_MAX_AGE_DAYS, default 28
	LogCompress   bool   // LOG_COMPRESS, default true
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		FetchWorkers:     getEnvInt("STREAMLENS_FETCH_WORKERS", DefaultFetchWorkers),
		StreamCacheItems: getEnvInt("STREAMLENS_STREAM_CACHE_ITEMS", DefaultStreamCacheItems),
		MaxBodyBytes:     getEnvInt("STREAMLENS_MAX_BODY_BYTES", DefaultMaxBodyBytes),

		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFile:       getEnvString("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// CapBody enforces the per-entry body size limit, truncating oversized
// bodies rather than failing the parse.
func (c *Config) CapBody(b []byte) []byte {
	if c.MaxBodyBytes > 0 && len(b) > c.MaxBodyBytes {
		return b[:c.MaxBodyBytes]
	}
	return b
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
