// Package types defines the canonical entry model shared by format
// adapters, the trace container, and the ABR detection engine.
package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FileFormat identifies a capture file format.
type FileFormat string

const (
	FileFormatHAR        FileFormat = "har"
	FileFormatProxyman   FileFormat = "proxymanlogv2"
	FileFormatBodyLogger FileFormat = "bodylogger"
	FileFormatMultifile  FileFormat = "multifile"
)

// Header is a single name/value pair. Order is preserved as captured.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered list of header pairs with case-insensitive lookup.
type Headers []Header

// Get returns the first value for the given header name (case-insensitive).
// Returns an empty string if the header is not found.
func (h Headers) Get(name string) string {
	for _, pair := range h {
		if strings.EqualFold(pair.Name, name) {
			return pair.Value
		}
	}
	return ""
}

// Values returns all values for the given header name (case-insensitive).
func (h Headers) Values(name string) []string {
	var values []string
	for _, pair := range h {
		if strings.EqualFold(pair.Name, name) {
			values = append(values, pair.Value)
		}
	}
	return values
}

// Clone returns a copy that shares no backing storage with the receiver.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Request holds the request half of a captured HTTP transaction.
type Request struct {
	Method  string
	URL     string
	Headers Headers
	Body    []byte
}

// Host returns the request URL's host without port, or an empty string when
// the URL cannot be parsed.
func (r *Request) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Path returns the request URL's path, or an empty string when the URL
// cannot be parsed.
func (r *Request) Path() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

// Response holds the response half of a captured HTTP transaction.
type Response struct {
	StatusCode int
	Headers    Headers
	Body       []byte
	// MIMEType is the media type resolved at parse time, stripped of
	// parameters such as charset.
	MIMEType string
}

// Timeline carries the wall-clock milestones of one transaction.
// A zero time means the source format did not record that milestone.
type Timeline struct {
	RequestStart  time.Time
	RequestEnd    time.Time
	ResponseStart time.Time
	ResponseEnd   time.Time
}

// Duration returns the total transaction time, or zero when either
// endpoint is unknown.
func (t Timeline) Duration() time.Duration {
	if t.RequestStart.IsZero() || t.ResponseEnd.IsZero() {
		return 0
	}
	return t.ResponseEnd.Sub(t.RequestStart)
}

// Meta carries format-specific metadata that the core does not interpret.
// Exporters round-trip what the destination format can represent and drop
// the rest silently.
type Meta struct {
	Comment     string
	Highlight   string
	Annotations map[string]string

	// BodyLogger-only fields.
	LogType       string
	ServiceID     string
	SessionID     string
	CorrelationID string

	SourceFormat FileFormat
}

// Entry is one captured HTTP transaction. Entries are constructed by format
// adapters and never mutated afterwards; they are owned by the Trace that
// loaded them.
type Entry struct {
	// Index is the 0-based position in source capture order.
	Index int
	// ID is a stable identifier, adapter-assigned or synthesized.
	ID string

	Request  Request
	Response Response
	Timeline Timeline
	Meta     Meta
}

// Summary returns a flat JSON-friendly view of the entry used by the query
// engine. Bodies are represented by their sizes only.
func (e *Entry) Summary() map[string]any {
	// Values stay within the types the query engine accepts (no int64,
	// no map[string]string).
	reqHeaders := make(map[string]any, len(e.Request.Headers))
	for _, h := range e.Request.Headers {
		reqHeaders[strings.ToLower(h.Name)] = h.Value
	}
	respHeaders := make(map[string]any, len(e.Response.Headers))
	for _, h := range e.Response.Headers {
		respHeaders[strings.ToLower(h.Name)] = h.Value
	}

	var startedAt any
	if !e.Timeline.RequestStart.IsZero() {
		startedAt = e.Timeline.RequestStart.UTC().Format(time.RFC3339Nano)
	}

	return map[string]any{
		"index":            e.Index,
		"id":               e.ID,
		"method":           e.Request.Method,
		"url":              e.Request.URL,
		"host":             e.Request.Host(),
		"path":             e.Request.Path(),
		"status":           e.Response.StatusCode,
		"mime_type":        e.Response.MIMEType,
		"request_headers":  reqHeaders,
		"response_headers": respHeaders,
		"req_body_bytes":   len(e.Request.Body),
		"resp_body_bytes":  len(e.Response.Body),
		"started_at":       startedAt,
		"duration_ms":      int(e.Timeline.Duration().Milliseconds()),
	}
}

func (e *Entry) String() string {
	return fmt.Sprintf("Entry(id=%s %s %s -> %d)",
		e.ID, e.Request.Method, e.Request.URL, e.Response.StatusCode)
}
