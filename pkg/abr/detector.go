// Package abr implements ABR manifest detection: classifying captured
// entries as HLS/DASH manifest requests, canonicalizing their URLs for
// grouping, and navigating the resulting manifest streams.
package abr

import (
	"net/url"
	"sort"
	"strings"

	"github.com/streamlens/streamlens/pkg/types"
)

// Detector holds per-trace detection configuration: the set of query
// parameter names stripped during URL canonicalization.
//
// A Detector is not internally synchronized; callers sharing one across
// goroutines must serialize access.
type Detector struct {
	ignored    map[string]struct{}
	generation uint64
}

// NewDetector creates a detector with an empty ignore-set.
func NewDetector() *Detector {
	return &Detector{ignored: make(map[string]struct{})}
}

// IgnoreQueryParams adds the given parameter names to the ignore-set and
// returns the receiver for chaining. Adding is idempotent; names are never
// removed.
func (d *Detector) IgnoreQueryParams(names ...string) *Detector {
	changed := false
	for _, name := range names {
		if _, ok := d.ignored[name]; !ok {
			d.ignored[name] = struct{}{}
			changed = true
		}
	}
	if changed {
		d.generation++
	}
	return d
}

// IgnoredQueryParams returns a sorted copy of the ignore-set.
func (d *Detector) IgnoredQueryParams() []string {
	names := make([]string, 0, len(d.ignored))
	for name := range d.ignored {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generation returns a counter that increments whenever the configuration
// changes. Derived caches key on it to invalidate stale groupings.
func (d *Detector) Generation() uint64 {
	return d.generation
}

// Classify determines whether a response MIME type and request URL identify
// an ABR manifest. Precedence: an exact manifest MIME match wins even when
// the URL extension disagrees; when the MIME type is absent or generic
// (octet-stream, text/plain) the URL path extension decides; anything else
// is not a manifest.
func (d *Detector) Classify(mimeType, rawURL string) (types.Format, bool) {
	if format, ok := types.FormatFromMIME(mimeType); ok {
		return format, true
	}
	if types.IsGenericMIME(mimeType) {
		return types.FormatFromURL(rawURL)
	}
	return "", false
}

// Canonicalize returns the grouping key for a URL: the URL with ignored
// query parameters removed and the remaining parameters kept in their
// original relative order. Fragments are dropped. An unparseable URL is its
// own key; canonicalization never fails outright.
func (d *Detector) Canonicalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = d.stripIgnored(u.RawQuery)
	}
	return u.String()
}

// stripIgnored removes ignored parameters from a raw query string while
// preserving the encoding and order of the remaining ones.
func (d *Detector) stripIgnored(rawQuery string) string {
	if len(d.ignored) == 0 {
		return rawQuery
	}
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		name, _, _ := strings.Cut(part, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if _, ok := d.ignored[name]; ok {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

// DecoratedURL is a detected manifest URL paired with its ABR format.
type DecoratedURL struct {
	// URL is the first-seen request URL for the canonical group, as captured.
	URL string
	// Format is the classified streaming protocol.
	Format types.Format

	key string
}

// DetectManifestURLs scans entries in order and returns one DecoratedURL per
// canonical manifest key, first-seen URL and order preserved. When filter is
// non-nil only that format is returned. It never fails; a trace without
// manifest-like entries yields an empty slice.
func DetectManifestURLs(entries []*types.Entry, d *Detector, filter *types.Format) []DecoratedURL {
	var urls []DecoratedURL
	seen := make(map[string]bool)

	for _, entry := range entries {
		format, ok := d.Classify(entry.Response.MIMEType, entry.Request.URL)
		if !ok {
			continue
		}
		if filter != nil && format != *filter {
			continue
		}
		key := d.Canonicalize(entry.Request.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		urls = append(urls, DecoratedURL{URL: entry.Request.URL, Format: format, key: key})
	}
	return urls
}
