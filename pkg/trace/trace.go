// Package trace provides the immutable container for a loaded capture
// trace: ordered entry access, filtering, id lookups, ABR manifest
// detection and stream navigation, and export to other capture formats.
package trace

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/streamlens/streamlens/internal/cache"
	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/format"
	"github.com/streamlens/streamlens/internal/index"
	"github.com/streamlens/streamlens/pkg/abr"
	"github.com/streamlens/streamlens/pkg/types"
)

// Trace is an ordered, immutable collection of captured entries.
//
// A Trace is not internally synchronized; concurrent readers are safe
// only as long as nobody mutates the detector's configuration.
type Trace struct {
	entries  []*types.Entry
	byID     map[string]*types.Entry
	path     string
	source   types.FileFormat
	detector *abr.Detector
	idx      *index.Index
	streams  *cache.StreamCache
	cfg      *config.Config
}

// Open loads a capture file, detecting its format by extension and
// content signature.
func Open(path string) (*Trace, error) {
	cfg := config.Load()
	setupLogging(cfg)
	registry := format.NewRegistry(cfg)
	adapter, err := registry.Detect(path)
	if err != nil {
		return nil, err
	}
	entries, err := adapter.Parse(path)
	if err != nil {
		return nil, err
	}
	t, err := New(entries)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	t.path = path
	t.source = adapter.FileFormat()
	slog.Debug("trace loaded", "path", path, "format", adapter.FileFormat(), "entries", len(entries))
	return t, nil
}

// New builds a trace from an explicit entry list. Entries must carry
// dense 0..n-1 indexes and unique ids.
func New(entries []*types.Entry) (*Trace, error) {
	cfg := config.Load()
	byID := make(map[string]*types.Entry, len(entries))
	for i, entry := range entries {
		if entry.Index != i {
			return nil, fmt.Errorf("%w: entry %d carries index %d", types.ErrPrecondition, i, entry.Index)
		}
		if entry.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", types.ErrPrecondition, i)
		}
		if _, dup := byID[entry.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entry id %q", types.ErrPrecondition, entry.ID)
		}
		byID[entry.ID] = entry
	}

	streams, err := cache.NewStreamCache(cfg.StreamCacheItems)
	if err != nil {
		return nil, err
	}

	return &Trace{
		entries:  entries,
		byID:     byID,
		detector: abr.NewDetector(),
		idx:      index.Build(entries),
		streams:  streams,
		cfg:      cfg,
	}, nil
}

// Len returns the number of entries.
func (t *Trace) Len() int {
	return len(t.entries)
}

// Entries returns the entries in capture order. The returned slice is a
// copy; the entries themselves are shared.
func (t *Trace) Entries() []*types.Entry {
	out := make([]*types.Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// At returns the entry at position i, or nil when out of range.
func (t *Trace) At(i int) *types.Entry {
	if i < 0 || i >= len(t.entries) {
		return nil
	}
	return t.entries[i]
}

// Path returns the source file path, empty for traces built with New.
func (t *Trace) Path() string {
	return t.path
}

// SourceFormat returns the capture format the trace was loaded from.
func (t *Trace) SourceFormat() types.FileFormat {
	return t.source
}

// Detector returns the trace's manifest detector. Mutating its ignore
// set changes how ManifestURLs and ManifestStream group URLs.
func (t *Trace) Detector() *abr.Detector {
	return t.detector
}

// FilterOptions narrow a trace to matching entries. All set criteria
// must hold (logical AND).
type FilterOptions struct {
	// Host matches the request host case-insensitively.
	Host string
	// URL matches the full request URL exactly.
	URL string
	// Path matches the URL path component exactly.
	Path string
	// PartialURL matches any URL containing the substring.
	PartialURL string
	// Pattern matches any URL the expression matches.
	Pattern *regexp.Regexp
	// MIME matches the normalized response MIME type exactly.
	MIME string
}

// Filter returns entries matching all set criteria, in capture order.
// Host, path and MIME criteria resolve through bitmap indexes; the rest
// scan the surviving candidates.
func (t *Trace) Filter(opts FilterOptions) []*types.Entry {
	candidates := t.idx.All()
	if opts.Host != "" {
		candidates.And(t.idx.ByHost(strings.ToLower(opts.Host)))
	}
	if opts.Path != "" {
		candidates.And(t.idx.ByPath(opts.Path))
	}
	if opts.MIME != "" {
		candidates.And(t.idx.ByMIME(opts.MIME))
	}

	matched := make([]*types.Entry, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		entry := t.entries[it.Next()]
		if opts.URL != "" && entry.Request.URL != opts.URL {
			continue
		}
		if opts.PartialURL != "" && !strings.Contains(entry.Request.URL, opts.PartialURL) {
			continue
		}
		if opts.Pattern != nil && !opts.Pattern.MatchString(entry.Request.URL) {
			continue
		}
		matched = append(matched, entry)
	}
	return matched
}

// EntryByID returns the entry with the given id.
func (t *Trace) EntryByID(id string) (*types.Entry, error) {
	entry, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: entry id %q", types.ErrNotFound, id)
	}
	return entry, nil
}

// EntriesByIDs returns entries in the requested order. Unknown ids are
// omitted rather than failing the whole lookup.
func (t *Trace) EntriesByIDs(ids []string) []*types.Entry {
	out := make([]*types.Entry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := t.byID[id]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// NextEntryByID walks n steps along the manifest stream the entry
// belongs to. direction is +1 (later) or -1 (earlier).
func (t *Trace) NextEntryByID(id string, direction, n int) (*types.Entry, error) {
	entry, err := t.EntryByID(id)
	if err != nil {
		return nil, err
	}
	stream, err := t.ManifestStream(entry.Request.URL)
	if err != nil {
		return nil, err
	}
	return stream.RelativeEntry(entry, direction, n)
}

// ManifestURLs returns the distinct manifest URLs detected in the trace,
// one per canonical key in first-seen order. A non-nil filter restricts
// the result to one format.
func (t *Trace) ManifestURLs(filter *types.Format) []abr.DecoratedURL {
	return abr.DetectManifestURLs(t.entries, t.detector, filter)
}

// ManifestStream groups every entry whose canonical URL matches rawURL's
// into a time-ordered stream. Streams are cached per canonical key and
// detector generation, so changing the ignore set rebuilds them.
func (t *Trace) ManifestStream(rawURL string) (*abr.ManifestStream, error) {
	key := cache.StreamKey{
		Canonical:  t.detector.Canonicalize(rawURL),
		Generation: t.detector.Generation(),
	}
	if stream, ok := t.streams.Get(key); ok {
		return stream, nil
	}

	var matched []*types.Entry
	for _, entry := range t.entries {
		if t.detector.Canonicalize(entry.Request.URL) == key.Canonical {
			matched = append(matched, entry)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: no entries for manifest URL %s", types.ErrNotFound, rawURL)
	}

	stream, err := abr.NewManifestStream(matched)
	if err != nil {
		return nil, err
	}
	t.streams.Put(key, stream)
	return stream, nil
}
