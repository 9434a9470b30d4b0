package abr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamlens/streamlens/pkg/types"
)

func TestDetector_Classify_MIMEWins(t *testing.T) {
	d := NewDetector()

	// A manifest MIME type wins even when the extension disagrees.
	f, ok := d.Classify("application/dash+xml", "https://cdn.example.com/live/master.m3u8")
	require.True(t, ok)
	assert.Equal(t, types.FormatDASH, f)
}

func TestDetector_Classify_GenericFallsBackToExtension(t *testing.T) {
	d := NewDetector()

	f, ok := d.Classify("application/octet-stream", "https://cdn.example.com/live/master.m3u8")
	require.True(t, ok)
	assert.Equal(t, types.FormatHLS, f)

	f, ok = d.Classify("", "https://cdn.example.com/vod/manifest.mpd")
	require.True(t, ok)
	assert.Equal(t, types.FormatDASH, f)
}

func TestDetector_Classify_SpecificMIMEVetoesExtension(t *testing.T) {
	d := NewDetector()

	// A concrete non-manifest MIME type blocks the extension fallback.
	_, ok := d.Classify("video/mp4", "https://cdn.example.com/live/master.m3u8")
	assert.False(t, ok)
}

func TestDetector_Classify_NotAManifest(t *testing.T) {
	d := NewDetector()

	_, ok := d.Classify("video/mp4", "https://cdn.example.com/seg/0001.ts")
	assert.False(t, ok)

	_, ok = d.Classify("", "https://cdn.example.com/seg/0001.ts")
	assert.False(t, ok)
}

func TestDetector_Canonicalize_StripsIgnoredParams(t *testing.T) {
	d := NewDetector().IgnoreQueryParams("token", "session")

	got := d.Canonicalize("https://cdn.example.com/live/master.m3u8?a=1&token=xyz&b=2&session=s1")
	assert.Equal(t, "https://cdn.example.com/live/master.m3u8?a=1&b=2", got)
}

func TestDetector_Canonicalize_PreservesOrderAndEncoding(t *testing.T) {
	d := NewDetector().IgnoreQueryParams("tok")

	got := d.Canonicalize("https://cdn.example.com/p.m3u8?z=%2Fa%2Fb&tok=1&a=2")
	assert.Equal(t, "https://cdn.example.com/p.m3u8?z=%2Fa%2Fb&a=2", got)
}

func TestDetector_Canonicalize_DropsFragment(t *testing.T) {
	d := NewDetector()

	got := d.Canonicalize("https://cdn.example.com/p.m3u8?a=1#section")
	assert.Equal(t, "https://cdn.example.com/p.m3u8?a=1", got)
}

func TestDetector_Canonicalize_Idempotent(t *testing.T) {
	d := NewDetector().IgnoreQueryParams("tok")

	once := d.Canonicalize("https://cdn.example.com/p.m3u8?tok=1&a=2")
	twice := d.Canonicalize(once)
	assert.Equal(t, once, twice)
}

func TestDetector_Canonicalize_UnparseableIsOwnKey(t *testing.T) {
	d := NewDetector()

	raw := "http://bad url with spaces\x7f"
	assert.Equal(t, raw, d.Canonicalize(raw))
}

func TestDetector_IgnoreQueryParams_AdditiveAndIdempotent(t *testing.T) {
	d := NewDetector()
	assert.Equal(t, uint64(0), d.Generation())

	d.IgnoreQueryParams("a", "b")
	gen := d.Generation()
	assert.Equal(t, uint64(1), gen)

	// Re-adding known names changes nothing.
	d.IgnoreQueryParams("a")
	assert.Equal(t, gen, d.Generation())

	d.IgnoreQueryParams("c")
	assert.Equal(t, gen+1, d.Generation())
	assert.Equal(t, []string{"a", "b", "c"}, d.IgnoredQueryParams())
}

func manifestEntry(index int, url, mime string, at time.Time) *types.Entry {
	return &types.Entry{
		Index: index,
		ID:    "id-" + url + "-" + at.String(),
		Request: types.Request{
			Method: "GET",
			URL:    url,
		},
		Response: types.Response{
			StatusCode: 200,
			MIMEType:   mime,
		},
		Timeline: types.Timeline{RequestStart: at},
	}
}

func TestDetectManifestURLs_DedupByCanonicalKey(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector().IgnoreQueryParams("tok")

	entries := []*types.Entry{
		manifestEntry(0, "https://x.example.com/live.m3u8?tok=1", "application/vnd.apple.mpegurl", base),
		manifestEntry(1, "https://x.example.com/seg/000.ts", "video/mp2t", base.Add(time.Second)),
		manifestEntry(2, "https://x.example.com/live.m3u8?tok=2", "application/vnd.apple.mpegurl", base.Add(10*time.Second)),
		manifestEntry(3, "https://y.example.com/vod.mpd", "application/dash+xml", base.Add(15*time.Second)),
		manifestEntry(4, "https://x.example.com/live.m3u8?tok=3", "application/vnd.apple.mpegurl", base.Add(20*time.Second)),
	}

	urls := DetectManifestURLs(entries, d, nil)
	require.Len(t, urls, 2)
	// First-seen URL represents the group.
	assert.Equal(t, "https://x.example.com/live.m3u8?tok=1", urls[0].URL)
	assert.Equal(t, types.FormatHLS, urls[0].Format)
	assert.Equal(t, "https://y.example.com/vod.mpd", urls[1].URL)
	assert.Equal(t, types.FormatDASH, urls[1].Format)
}

func TestDetectManifestURLs_FormatFilter(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector()

	entries := []*types.Entry{
		manifestEntry(0, "https://x.example.com/live.m3u8", "application/vnd.apple.mpegurl", base),
		manifestEntry(1, "https://y.example.com/vod.mpd", "application/dash+xml", base),
	}

	dash := types.FormatDASH
	urls := DetectManifestURLs(entries, d, &dash)
	require.Len(t, urls, 1)
	assert.Equal(t, "https://y.example.com/vod.mpd", urls[0].URL)
}

func TestDetectManifestURLs_EmptyOnNoManifests(t *testing.T) {
	d := NewDetector()
	entries := []*types.Entry{
		manifestEntry(0, "https://x.example.com/app.js", "text/javascript", time.Now()),
	}

	assert.Empty(t, DetectManifestURLs(entries, d, nil))
}
