package abr

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/streamlens/streamlens/pkg/types"
)

// Position selects which neighbor FindEntryByTime returns relative to the
// target time.
type Position string

const (
	PositionNearest Position = "nearest"
	PositionBefore  Position = "before"
	PositionAfter   Position = "after"
)

// ManifestStream is a read-only, time-ordered view over the entries of one
// canonical manifest URL. It holds references into the backing trace, not
// copies; for a loaded trace the snapshot never goes stale.
type ManifestStream struct {
	entries []*types.Entry
	times   []time.Time
	format  types.Format
}

// NewManifestStream builds a stream from the given entries, sorting them by
// request-start time ascending with ties broken by original index. Entries
// without a request-start timestamp sort first.
func NewManifestStream(entries []*types.Entry) (*ManifestStream, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: manifest stream needs at least one entry", types.ErrPrecondition)
	}

	sorted := make([]*types.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		ti, tj := sorted[i].Timeline.RequestStart, sorted[j].Timeline.RequestStart
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return sorted[i].Index < sorted[j].Index
	})

	times := make([]time.Time, len(sorted))
	for i, entry := range sorted {
		times[i] = entry.Timeline.RequestStart
	}

	s := &ManifestStream{entries: sorted, times: times}
	first := sorted[0]
	if format, ok := types.FormatFromMIME(first.Response.MIMEType); ok {
		s.format = format
	} else if format, ok := types.FormatFromURL(first.Request.URL); ok {
		s.format = format
	}
	return s, nil
}

// Len returns the number of entries in the stream.
func (s *ManifestStream) Len() int {
	return len(s.entries)
}

// At returns the entry at position i in time order.
func (s *ManifestStream) At(i int) *types.Entry {
	return s.entries[i]
}

// Entries returns the sorted entries. The slice is a copy; the entries are
// shared with the backing trace.
func (s *ManifestStream) Entries() []*types.Entry {
	out := make([]*types.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Format returns the stream's classified protocol, or an empty Format when
// the member entries do not classify.
func (s *ManifestStream) Format() types.Format {
	return s.format
}

// OriginalPath returns the request path shared by the member entries, with
// query parameters stripped. Intended for display and labeling.
func (s *ManifestStream) OriginalPath() string {
	u, err := url.Parse(s.entries[0].Request.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

// FindEntryByTime locates an entry by wall-clock time.
//
// PositionBefore selects the entry with the greatest request-start <= target,
// PositionAfter the smallest request-start >= target, and PositionNearest the
// entry minimizing the absolute distance, preferring the earlier entry on
// ties. tolerance bounds the allowed distance in every mode; an entry outside
// it, a negative tolerance, or an unknown position yields (nil, false).
// Absence of a match is a valid result, never an error.
func (s *ManifestStream) FindEntryByTime(target time.Time, position Position, tolerance time.Duration) (*types.Entry, bool) {
	if len(s.entries) == 0 || tolerance < 0 {
		return nil, false
	}

	// First index with request-start >= target.
	idx := sort.Search(len(s.times), func(i int) bool {
		return !s.times[i].Before(target)
	})

	switch position {
	case PositionBefore:
		// Entries at idx may equal the target exactly.
		last := idx - 1
		for last+1 < len(s.times) && s.times[last+1].Equal(target) {
			last++
		}
		if last < 0 {
			return nil, false
		}
		if target.Sub(s.times[last]) > tolerance {
			return nil, false
		}
		return s.entries[last], true

	case PositionAfter:
		if idx >= len(s.times) {
			return nil, false
		}
		if s.times[idx].Sub(target) > tolerance {
			return nil, false
		}
		return s.entries[idx], true

	case PositionNearest:
		var best *types.Entry
		var bestDist time.Duration
		if idx > 0 {
			best = s.entries[idx-1]
			bestDist = target.Sub(s.times[idx-1])
		}
		if idx < len(s.times) {
			dist := s.times[idx].Sub(target)
			// Equal distance prefers the earlier entry.
			if best == nil || dist < bestDist {
				best = s.entries[idx]
				bestDist = dist
			}
		}
		if best == nil || bestDist > tolerance {
			return nil, false
		}
		return best, true
	}

	return nil, false
}

// RelativeEntry returns the member n positions away from entry in the given
// direction (+1 forward, -1 backward). The reference entry must be a member
// of this stream (ErrPrecondition otherwise); a destination outside the
// stream yields ErrNotFound.
func (s *ManifestStream) RelativeEntry(entry *types.Entry, direction, n int) (*types.Entry, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", types.ErrPrecondition)
	}

	current := -1
	for i, member := range s.entries {
		if member.ID == entry.ID {
			current = i
			break
		}
	}
	if current < 0 {
		return nil, fmt.Errorf("%w: entry %s is not a member of this stream", types.ErrPrecondition, entry.ID)
	}

	target := current + direction*n
	if target < 0 || target >= len(s.entries) {
		return nil, fmt.Errorf("%w: position %d outside stream of length %d", types.ErrNotFound, target, len(s.entries))
	}
	return s.entries[target], nil
}
