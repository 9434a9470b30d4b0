package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMIME(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", NormalizeMIME("application/vnd.apple.mpegURL; charset=utf-8"))
	assert.Equal(t, "text/html", NormalizeMIME(" text/HTML "))
	assert.Equal(t, "", NormalizeMIME(""))
}

func TestFormatFromMIME(t *testing.T) {
	f, ok := FormatFromMIME("application/vnd.apple.mpegurl")
	assert.True(t, ok)
	assert.Equal(t, FormatHLS, f)

	f, ok = FormatFromMIME("application/x-mpegURL")
	assert.True(t, ok)
	assert.Equal(t, FormatHLS, f)

	f, ok = FormatFromMIME("application/dash+xml; charset=utf-8")
	assert.True(t, ok)
	assert.Equal(t, FormatDASH, f)

	_, ok = FormatFromMIME("video/mp4")
	assert.False(t, ok)

	_, ok = FormatFromMIME("")
	assert.False(t, ok)
}

func TestIsGenericMIME(t *testing.T) {
	assert.True(t, IsGenericMIME(""))
	assert.True(t, IsGenericMIME("application/octet-stream"))
	assert.True(t, IsGenericMIME("text/plain; charset=utf-8"))
	assert.False(t, IsGenericMIME("application/json"))
}

func TestFormatFromPath(t *testing.T) {
	f, ok := FormatFromPath("/live/master.m3u8")
	assert.True(t, ok)
	assert.Equal(t, FormatHLS, f)

	f, ok = FormatFromPath("/vod/manifest.mpd")
	assert.True(t, ok)
	assert.Equal(t, FormatDASH, f)

	_, ok = FormatFromPath("/seg/chunk.ts")
	assert.False(t, ok)
}

func TestFormatFromURL_IgnoresQuery(t *testing.T) {
	f, ok := FormatFromURL("https://cdn.example.com/live/master.m3u8?tok=abc.mpd")
	assert.True(t, ok)
	assert.Equal(t, FormatHLS, f)
}
