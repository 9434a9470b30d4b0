package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamlens/streamlens/pkg/types"
)

func indexedEntry(index int, url, mime string) *types.Entry {
	return &types.Entry{
		Index:    index,
		ID:       url,
		Request:  types.Request{Method: "GET", URL: url},
		Response: types.Response{StatusCode: 200, MIMEType: mime},
	}
}

func buildTestIndex() *Index {
	return Build([]*types.Entry{
		indexedEntry(0, "https://cdn.example.com/live/main.m3u8", "application/vnd.apple.mpegurl"),
		indexedEntry(1, "https://cdn.example.com/seg/000.ts", "video/mp2t"),
		indexedEntry(2, "https://ads.example.com/vast.xml", "application/xml"),
		indexedEntry(3, "https://CDN.example.com/live/main.m3u8", "application/vnd.apple.mpegurl"),
	})
}

func TestIndex_All(t *testing.T) {
	ix := buildTestIndex()
	assert.Equal(t, uint64(4), ix.All().GetCardinality())
}

func TestIndex_ByHost_CaseInsensitive(t *testing.T) {
	ix := buildTestIndex()

	bm := ix.ByHost("cdn.example.com")
	assert.Equal(t, []uint32{0, 1, 3}, bm.ToArray())

	bm = ix.ByHost("CDN.EXAMPLE.COM")
	assert.Equal(t, []uint32{0, 1, 3}, bm.ToArray())
}

func TestIndex_ByPath(t *testing.T) {
	ix := buildTestIndex()

	bm := ix.ByPath("/live/main.m3u8")
	assert.Equal(t, []uint32{0, 3}, bm.ToArray())
}

func TestIndex_ByMIME(t *testing.T) {
	ix := buildTestIndex()

	bm := ix.ByMIME("video/mp2t")
	assert.Equal(t, []uint32{1}, bm.ToArray())
}

func TestIndex_MissingKeyIsEmpty(t *testing.T) {
	ix := buildTestIndex()

	assert.True(t, ix.ByHost("nobody.example.com").IsEmpty())
	assert.True(t, ix.ByMIME("application/wasm").IsEmpty())
}

func TestIndex_LookupsReturnClones(t *testing.T) {
	ix := buildTestIndex()

	bm := ix.ByHost("cdn.example.com")
	bm.Clear()

	fresh := ix.ByHost("cdn.example.com")
	require.False(t, fresh.IsEmpty())
	assert.Equal(t, uint64(3), fresh.GetCardinality())
}
