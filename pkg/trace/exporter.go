package trace

import (
	"fmt"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/format"
	"github.com/streamlens/streamlens/pkg/types"
)

// Exporter writes a trace's entries out in a writable capture format.
// Metadata a target format cannot represent is dropped; everything else
// (method, URL, headers, status, bodies, timing) round-trips.
type Exporter struct {
	trace *Trace
}

// NewExporter creates an exporter over the trace's full entry list.
func NewExporter(t *Trace) *Exporter {
	return &Exporter{trace: t}
}

// ToHAR writes the trace as a HAR 1.2 file.
func (e *Exporter) ToHAR(path string) error {
	return ExportHAR(e.trace.Entries(), path)
}

// ToProxyman writes the trace as a Proxyman log v2 archive.
func (e *Exporter) ToProxyman(path string) error {
	return ExportProxyman(e.trace.Entries(), path)
}

// ToMultifile writes the trace as a multifile folder.
func (e *Exporter) ToMultifile(dir string) error {
	return ExportMultifile(e.trace.Entries(), dir)
}

// ExportHAR writes an explicit entry list as a HAR 1.2 file.
func ExportHAR(entries []*types.Entry, path string) error {
	return export(entries, types.FileFormatHAR, path)
}

// ExportProxyman writes an explicit entry list as a Proxyman log v2
// archive.
func ExportProxyman(entries []*types.Entry, path string) error {
	return export(entries, types.FileFormatProxyman, path)
}

// ExportMultifile writes an explicit entry list as a multifile folder.
func ExportMultifile(entries []*types.Entry, dir string) error {
	return export(entries, types.FileFormatMultifile, dir)
}

func export(entries []*types.Entry, f types.FileFormat, dest string) error {
	registry := format.NewRegistry(config.Load())
	serializer, err := registry.SerializerFor(f)
	if err != nil {
		return err
	}
	if err := serializer.Serialize(entries, dest); err != nil {
		return fmt.Errorf("exporting %s: %w", dest, err)
	}
	return nil
}
