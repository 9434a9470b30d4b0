// Package index maintains inverted indexes over trace entries using
// Roaring bitmaps. Document ids are the entries' source-order indexes.
package index

import (
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/streamlens/streamlens/pkg/types"
)

// Index holds per-attribute bitmaps for one trace. It is built once after
// load and never mutated, so lookups need no synchronization.
type Index struct {
	all     *roaring.Bitmap
	idxHost map[string]*roaring.Bitmap
	idxPath map[string]*roaring.Bitmap
	idxMIME map[string]*roaring.Bitmap
}

// Build indexes the given entries by request host (lowercased), URL path,
// and response MIME type.
func Build(entries []*types.Entry) *Index {
	ix := &Index{
		all:     roaring.New(),
		idxHost: make(map[string]*roaring.Bitmap),
		idxPath: make(map[string]*roaring.Bitmap),
		idxMIME: make(map[string]*roaring.Bitmap),
	}

	for _, entry := range entries {
		docID := uint32(entry.Index)
		ix.all.Add(docID)

		if host := strings.ToLower(entry.Request.Host()); host != "" {
			addToBitmap(ix.idxHost, host, docID)
		}
		if p := entry.Request.Path(); p != "" {
			addToBitmap(ix.idxPath, p, docID)
		}
		if mime := entry.Response.MIMEType; mime != "" {
			addToBitmap(ix.idxMIME, mime, docID)
		}
	}
	return ix
}

func addToBitmap(m map[string]*roaring.Bitmap, key string, docID uint32) {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	bm.Add(docID)
}

// All returns a copy of the bitmap holding every document id.
func (ix *Index) All() *roaring.Bitmap {
	return ix.all.Clone()
}

// ByHost returns the bitmap for a host (case-insensitive), or an empty
// bitmap when no entry matches.
func (ix *Index) ByHost(host string) *roaring.Bitmap {
	return lookup(ix.idxHost, strings.ToLower(host))
}

// ByPath returns the bitmap for an exact URL path.
func (ix *Index) ByPath(path string) *roaring.Bitmap {
	return lookup(ix.idxPath, path)
}

// ByMIME returns the bitmap for a response MIME type.
func (ix *Index) ByMIME(mime string) *roaring.Bitmap {
	return lookup(ix.idxMIME, mime)
}

func lookup(m map[string]*roaring.Bitmap, key string) *roaring.Bitmap {
	if bm, ok := m[key]; ok {
		return bm.Clone()
	}
	return roaring.New()
}
