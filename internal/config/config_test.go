package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, DefaultFetchWorkers, cfg.FetchWorkers)
	assert.Equal(t, DefaultStreamCacheItems, cfg.StreamCacheItems)
	assert.Equal(t, DefaultMaxBodyBytes, cfg.MaxBodyBytes)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.LogFile)
	assert.True(t, cfg.LogCompress)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STREAMLENS_FETCH_WORKERS", "3")
	t.Setenv("STREAMLENS_STREAM_CACHE_ITEMS", "7")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_COMPRESS", "false")

	cfg := Load()

	assert.Equal(t, 3, cfg.FetchWorkers)
	assert.Equal(t, 7, cfg.StreamCacheItems)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.LogCompress)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("STREAMLENS_FETCH_WORKERS", "many")

	cfg := Load()
	assert.Equal(t, DefaultFetchWorkers, cfg.FetchWorkers)
}

func TestCapBody(t *testing.T) {
	cfg := &Config{MaxBodyBytes: 4}

	assert.Equal(t, []byte("abcd"), cfg.CapBody([]byte("abcdef")))
	assert.Equal(t, []byte("ab"), cfg.CapBody([]byte("ab")))

	unlimited := &Config{MaxBodyBytes: 0}
	assert.Equal(t, []byte("abcdef"), unlimited.CapBody([]byte("abcdef")))
}
