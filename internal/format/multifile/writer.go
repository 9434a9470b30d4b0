package multifile

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamlens/streamlens/pkg/types"
)

// mimeExtensions maps response MIME types to body-file extensions.
var mimeExtensions = map[string]string{
	"application/vnd.apple.mpegurl": ".m3u8",
	"application/x-mpegurl":         ".m3u8",
	"application/dash+xml":          ".mpd",
	"application/dash-xml":          ".mpd",
	"application/vnd.vast+xml":      ".xml",
	"application/vnd.vmap+xml":      ".xml",
	"application/xml":               ".xml",
	"text/xml":                      ".xml",
	"application/json":              ".json",
	"text/json":                     ".json",
}

// Serialize writes the entries as a multifile folder at dest. The folder
// is assembled in a temp directory next to dest and renamed into place.
func (a *Adapter) Serialize(entries []*types.Entry, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("destination %s already exists", dest)
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dest), ".multifile-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	for i, entry := range entries {
		if err := writeMember(tmp, i, entry); err != nil {
			os.RemoveAll(tmp)
			return err
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func writeMember(dir string, index int, entry *types.Entry) error {
	basename := fmt.Sprintf("request_%06d", index)

	meta := fromEntry(entry)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding meta %d: %w", index, err)
	}
	if err := os.WriteFile(filepath.Join(dir, basename+".meta.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing meta %d: %w", index, err)
	}

	bodyName := basename + ".body" + bodyExtension(entry)
	if err := os.WriteFile(filepath.Join(dir, bodyName), entry.Response.Body, 0o644); err != nil {
		return fmt.Errorf("writing body %d: %w", index, err)
	}

	for name, text := range entry.Meta.Annotations {
		annName := fmt.Sprintf("%s.%s.txt", basename, name)
		if err := os.WriteFile(filepath.Join(dir, annName), []byte(text), 0o644); err != nil {
			return fmt.Errorf("writing annotation %s: %w", annName, err)
		}
	}
	return nil
}

func fromEntry(entry *types.Entry) *metaFile {
	// The timestamp records the request start; elapsed_ms recovers the
	// response end on reimport.
	timestamp := entry.Timeline.RequestStart
	if timestamp.IsZero() {
		timestamp = entry.Timeline.ResponseEnd
	}
	var elapsed int64
	if !entry.Timeline.RequestStart.IsZero() && !entry.Timeline.ResponseEnd.IsZero() {
		elapsed = entry.Timeline.ResponseEnd.Sub(entry.Timeline.RequestStart).Milliseconds()
	}

	tsStr := ""
	if !timestamp.IsZero() {
		tsStr = timestamp.UTC().Format(time.RFC3339Nano)
	}

	return &metaFile{
		Timestamp: tsStr,
		Request: metaRequest{
			URL:     entry.Request.URL,
			Method:  entry.Request.Method,
			Headers: headerMap(entry.Request.Headers),
		},
		Response: metaResponse{
			StatusCode:  entry.Response.StatusCode,
			Headers:     headerMap(entry.Response.Headers),
			MimeType:    entry.Response.MIMEType,
			ContentType: entry.Response.Headers.Get("Content-Type"),
		},
		ElapsedMS: elapsed,
		Comment:   entry.Meta.Comment,
		Highlight: entry.Meta.Highlight,
	}
}

func headerMap(headers types.Headers) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Name] = h.Value
	}
	return m
}

// bodyExtension picks a file extension from the MIME type, falling back
// to the URL path's extension.
func bodyExtension(entry *types.Entry) string {
	if ext, ok := mimeExtensions[strings.ToLower(entry.Response.MIMEType)]; ok {
		return ext
	}
	if u, err := url.Parse(entry.Request.URL); err == nil {
		if ext := filepath.Ext(u.Path); ext != "" && ext != "." {
			return ext
		}
	}
	return ""
}
