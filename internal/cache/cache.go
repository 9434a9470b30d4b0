// Package cache provides caching utilities for the trace engine.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/streamlens/streamlens/pkg/abr"
)

// StreamKey identifies a cached manifest stream: the canonical URL key plus
// the detector generation it was built under. A detector mutation bumps the
// generation, so stale groupings simply miss.
type StreamKey struct {
	Canonical  string
	Generation uint64
}

// StreamCache is an LRU cache of constructed manifest streams for one trace.
type StreamCache struct {
	cache *lru.Cache[StreamKey, *abr.ManifestStream]
}

// NewStreamCache creates an LRU cache holding up to maxItems streams.
func NewStreamCache(maxItems int) (*StreamCache, error) {
	c, err := lru.New[StreamKey, *abr.ManifestStream](maxItems)
	if err != nil {
		return nil, err
	}
	return &StreamCache{cache: c}, nil
}

// Get retrieves a stream by key.
func (c *StreamCache) Get(key StreamKey) (*abr.ManifestStream, bool) {
	return c.cache.Get(key)
}

// Put adds or updates a stream in the cache.
func (c *StreamCache) Put(key StreamKey, stream *abr.ManifestStream) {
	c.cache.Add(key, stream)
}

// Len returns the current number of cached streams.
func (c *StreamCache) Len() int {
	return c.cache.Len()
}
