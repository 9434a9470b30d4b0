package proxyman

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/pkg/types"
)

func newTestAdapter() *Adapter {
	return New(config.Load())
}

func buildArchive(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.proxymanlogv2")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

const memberJSON = `{
  "id": "abc123",
  "name": "cdn.example.com",
  "request": {
    "host": "cdn.example.com",
    "port": 443,
    "isSSL": true,
    "method": {"name": "GET"},
    "scheme": "https",
    "fullPath": "https://cdn.example.com/live/master.m3u8?tok=1",
    "uri": "/live/master.m3u8?tok=1",
    "version": {"major": 1, "minor": 1},
    "header": {"entries": [{"key": {"name": "Accept"}, "value": "*/*", "isEnabled": true}]},
    "bodyData": ""
  },
  "response": {
    "status": {"code": 200, "phrase": "OK", "strict": true},
    "version": {"major": 1, "minor": 1},
    "header": {"entries": [{"key": {"name": "Content-Type"}, "value": "application/vnd.apple.mpegurl", "isEnabled": true}]},
    "bodyData": "I0VYVE0zVQo=",
    "bodySize": 8,
    "bodyEncodedSize": 8
  },
  "timing": {
    "requestStartedAt": 1714564800.0,
    "requestEndedAt": 1714564800.005,
    "responseStartedAt": 1714564800.055,
    "responseEndedAt": 1714564800.08
  },
  "style": {"comment": "master manifest", "color": 2}
}`

func TestProxyman_Parse(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"request_0_abc123": memberJSON,
	})

	entries, err := newTestAdapter().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, 0, entry.Index)
	assert.Equal(t, "abc123", entry.ID)
	assert.Equal(t, "GET", entry.Request.Method)
	assert.Equal(t, "https://cdn.example.com/live/master.m3u8?tok=1", entry.Request.URL)
	assert.Equal(t, "*/*", entry.Request.Headers.Get("Accept"))
	assert.Equal(t, 200, entry.Response.StatusCode)
	assert.Equal(t, "application/vnd.apple.mpegurl", entry.Response.MIMEType)
	assert.Equal(t, []byte("#EXTM3U\n"), entry.Response.Body)
	assert.Equal(t, "master manifest", entry.Meta.Comment)
	assert.Equal(t, "green", entry.Meta.Highlight)
	assert.Equal(t, types.FileFormatProxyman, entry.Meta.SourceFormat)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, entry.Timeline.RequestStart.Equal(start))
	assert.True(t, entry.Timeline.RequestEnd.Equal(start.Add(5*time.Millisecond)))
	assert.True(t, entry.Timeline.ResponseStart.Equal(start.Add(55*time.Millisecond)))
	assert.True(t, entry.Timeline.ResponseEnd.Equal(start.Add(80*time.Millisecond)))
}

func TestProxyman_Parse_OrdersByMemberIndex(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"request_2_c": `{"id": "c", "request": {"fullPath": "https://x.example.com/c"}, "response": {"status": {"code": 200}}, "timing": {}}`,
		"request_0_a": `{"id": "a", "request": {"fullPath": "https://x.example.com/a"}, "response": {"status": {"code": 200}}, "timing": {}}`,
		"request_1_b": `{"id": "b", "request": {"fullPath": "https://x.example.com/b"}, "response": {"status": {"code": 200}}, "timing": {}}`,
		"metadata":    `{}`,
	})

	entries, err := newTestAdapter().Parse(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
	assert.Equal(t, "c", entries[2].ID)
	// Indexes are reassigned densely, whatever the archive numbering.
	for i, entry := range entries {
		assert.Equal(t, i, entry.Index)
	}
}

func TestProxyman_Parse_MalformedMemberFails(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"request_0_a": `{"id": "a", "request": {"fullPath": "https://x.example.com/a"}, "response": {"status": {"code": 200}}, "timing": {}}`,
		"request_1_b": `{not json`,
	})

	_, err := newTestAdapter().Parse(path)
	assert.ErrorIs(t, err, types.ErrMalformedInput)
}

func TestProxyman_Parse_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.proxymanlogv2")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := newTestAdapter().Parse(path)
	assert.ErrorIs(t, err, types.ErrMalformedInput)
}

func TestProxyman_Sniff(t *testing.T) {
	a := newTestAdapter()

	path := buildArchive(t, map[string]string{"request_0_a": "{}"})
	assert.True(t, a.Sniff(path))

	text := filepath.Join(t.TempDir(), "fake.proxymanlogv2")
	require.NoError(t, os.WriteFile(text, []byte("nope"), 0o644))
	assert.False(t, a.Sniff(text))
}

func TestProxyman_RoundTrip(t *testing.T) {
	a := newTestAdapter()
	src := buildArchive(t, map[string]string{"request_0_abc123": memberJSON})

	entries, err := a.Parse(src)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.proxymanlogv2")
	require.NoError(t, a.Serialize(entries, dest))

	reparsed, err := a.Parse(dest)
	require.NoError(t, err)
	require.Len(t, reparsed, 1)

	want, got := entries[0], reparsed[0]
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Request.URL, got.Request.URL)
	assert.Equal(t, want.Request.Headers, got.Request.Headers)
	assert.Equal(t, want.Response.StatusCode, got.Response.StatusCode)
	assert.Equal(t, want.Response.Body, got.Response.Body)
	assert.Equal(t, want.Meta.Comment, got.Meta.Comment)
	assert.Equal(t, want.Meta.Highlight, got.Meta.Highlight)
	assert.True(t, want.Timeline.RequestStart.Equal(got.Timeline.RequestStart))
	assert.True(t, want.Timeline.ResponseEnd.Equal(got.Timeline.ResponseEnd))
}

func TestProxyman_Serialize_RewritesSyntheticIDs(t *testing.T) {
	a := newTestAdapter()
	entries := []*types.Entry{{
		Index:    0,
		ID:       "index-0",
		Request:  types.Request{Method: "GET", URL: "https://x.example.com/a"},
		Response: types.Response{StatusCode: 200},
	}}

	dest := filepath.Join(t.TempDir(), "out.proxymanlogv2")
	require.NoError(t, a.Serialize(entries, dest))

	r, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)
	assert.Equal(t, "request_0_entry_0", r.File[0].Name)
}
