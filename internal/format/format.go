// Package format defines the capture-format adapter contract and the
// dispatch that picks an adapter for a given path.
package format

import (
	"fmt"
	"os"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/format/bodylogger"
	"github.com/streamlens/streamlens/internal/format/har"
	"github.com/streamlens/streamlens/internal/format/multifile"
	"github.com/streamlens/streamlens/internal/format/proxyman"
	"github.com/streamlens/streamlens/pkg/types"
)

// Adapter reads one capture format into the canonical entry model.
type Adapter interface {
	// FileFormat identifies the format this adapter handles.
	FileFormat() types.FileFormat
	// Sniff reports whether the path looks like this format, by extension
	// and/or content signature. It must not fully parse the input.
	Sniff(path string) bool
	// Parse loads the ordered entry sequence. Structurally invalid content
	// yields an error wrapping types.ErrMalformedInput; entries are never
	// silently dropped.
	Parse(path string) ([]*types.Entry, error)
}

// Serializer is the inverse of Parse for writable formats.
type Serializer interface {
	// Serialize writes the entries to dest. Writes are atomic: a failure
	// leaves no partial artifact at dest.
	Serialize(entries []*types.Entry, dest string) error
}

// Registry holds the fixed set of adapters in sniff order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry builds the registry with all supported adapters.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		adapters: []Adapter{
			har.New(cfg),
			proxyman.New(cfg),
			bodylogger.New(cfg),
			multifile.New(cfg),
		},
	}
}

// ByFormat returns the adapter for a file format.
func (r *Registry) ByFormat(f types.FileFormat) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.FileFormat() == f {
			return a, true
		}
	}
	return nil, false
}

// SerializerFor returns the serializer for a writable format. Read-only
// formats yield ErrUnsupportedOperation.
func (r *Registry) SerializerFor(f types.FileFormat) (Serializer, error) {
	a, ok := r.ByFormat(f)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, f)
	}
	s, ok := a.(Serializer)
	if !ok {
		return nil, fmt.Errorf("%w: format %s is read-only", types.ErrUnsupportedOperation, f)
	}
	return s, nil
}

// Detect picks the adapter for a path. A missing path yields ErrNotFound;
// a path no adapter recognizes yields ErrUnsupportedFormat.
func (r *Registry) Detect(path string) (Adapter, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return nil, err
	}
	for _, a := range r.adapters {
		if a.Sniff(path) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: no adapter recognizes %s", types.ErrUnsupportedFormat, path)
}
