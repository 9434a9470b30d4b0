package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamlens/streamlens/pkg/abr"
	"github.com/streamlens/streamlens/pkg/types"
)

func testStream(t *testing.T) *abr.ManifestStream {
	t.Helper()
	s, err := abr.NewManifestStream([]*types.Entry{{
		Index:    0,
		ID:       "a",
		Request:  types.Request{Method: "GET", URL: "https://x.example.com/live.m3u8"},
		Response: types.Response{StatusCode: 200, MIMEType: "application/vnd.apple.mpegurl"},
		Timeline: types.Timeline{RequestStart: time.Now()},
	}})
	require.NoError(t, err)
	return s
}

func TestStreamCache_PutGet(t *testing.T) {
	c, err := NewStreamCache(4)
	require.NoError(t, err)

	key := StreamKey{Canonical: "https://x.example.com/live.m3u8", Generation: 0}
	_, ok := c.Get(key)
	assert.False(t, ok)

	stream := testStream(t)
	c.Put(key, stream)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, stream, got)
	assert.Equal(t, 1, c.Len())
}

func TestStreamCache_GenerationSeparatesKeys(t *testing.T) {
	c, err := NewStreamCache(4)
	require.NoError(t, err)

	c.Put(StreamKey{Canonical: "k", Generation: 0}, testStream(t))

	_, ok := c.Get(StreamKey{Canonical: "k", Generation: 1})
	assert.False(t, ok)
}

func TestStreamCache_Eviction(t *testing.T) {
	c, err := NewStreamCache(2)
	require.NoError(t, err)

	stream := testStream(t)
	for i := 0; i < 3; i++ {
		c.Put(StreamKey{Canonical: fmt.Sprintf("k%d", i)}, stream)
	}

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(StreamKey{Canonical: "k0"})
	assert.False(t, ok)
	_, ok = c.Get(StreamKey{Canonical: "k2"})
	assert.True(t, ok)
}
