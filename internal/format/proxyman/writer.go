package proxyman

import (
	"archive/zip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamlens/streamlens/pkg/types"
)

// Serialize writes the entries as a .proxymanlogv2 zip archive. The archive
// is assembled in a temp file next to dest and renamed into place, so a
// failed export never leaves a truncated file behind.
func (a *Adapter) Serialize(entries []*types.Entry, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".proxymanlogv2-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	zw := zip.NewWriter(tmp)
	for i, entry := range entries {
		if err := writeMember(zw, i, entry); err != nil {
			cleanup()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		cleanup()
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	return nil
}

func writeMember(zw *zip.Writer, index int, entry *types.Entry) error {
	id := memberID(index, entry.ID)
	w, err := zw.Create(fmt.Sprintf("request_%d_%s", index, id))
	if err != nil {
		return fmt.Errorf("creating member %d: %w", index, err)
	}
	raw := fromEntry(entry, id)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("encoding member %d: %w", index, err)
	}
	return nil
}

// memberID derives a filename-safe id. Synthetic ids of other formats
// ("index-N") are replaced so reimporting yields stable names.
func memberID(index int, id string) string {
	if id == "" || strings.HasPrefix(id, "index-") {
		return fmt.Sprintf("entry_%d", index)
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func fromEntry(entry *types.Entry, id string) *pmEntry {
	u, _ := url.Parse(entry.Request.URL)
	scheme, host, port, uri := "http", "", 0, entry.Request.URL
	if u != nil {
		if u.Scheme != "" {
			scheme = u.Scheme
		}
		host = u.Hostname()
		if p := u.Port(); p != "" {
			fmt.Sscanf(p, "%d", &port)
		} else if scheme == "https" {
			port = 443
		} else {
			port = 80
		}
		uri = u.RequestURI()
	}

	raw := &pmEntry{
		ID:   id,
		Name: host,
		Request: pmRequest{
			Host:     host,
			Port:     port,
			IsSSL:    scheme == "https",
			Method:   pmName{Name: entry.Request.Method},
			Scheme:   scheme,
			FullPath: entry.Request.URL,
			URI:      uri,
			Version:  pmVersion{Major: 1, Minor: 1},
			Header:   fromHeaders(entry.Request.Headers),
			BodyData: encodeBody(entry.Request.Body),
		},
		Response: pmResponse{
			Status:              pmStatus{Code: entry.Response.StatusCode, Strict: true},
			Version:             pmVersion{Major: 1, Minor: 1},
			Header:              fromHeaders(entry.Response.Headers),
			BodyData:            encodeBody(entry.Response.Body),
			BodySize:            len(entry.Response.Body),
			BodyEncodedSize:     len(entry.Response.Body),
			CustomPreviewerTabs: cloneMap(entry.Meta.Annotations),
		},
		Timing:   fromTimeline(&entry.Timeline),
		Style:    fromMeta(&entry.Meta),
		IsSSL:    scheme == "https",
		Timezone: "UTC",
	}
	return raw
}

func fromHeaders(headers types.Headers) pmHeader {
	entries := make([]pmHeaderEntry, 0, len(headers))
	for _, h := range headers {
		entries = append(entries, pmHeaderEntry{
			Key:       pmHeaderKey{Name: h.Name, NameInLowercase: strings.ToLower(h.Name)},
			Value:     h.Value,
			IsEnabled: true,
		})
	}
	return pmHeader{Entries: entries}
}

func fromTimeline(tl *types.Timeline) pmTiming {
	var timing pmTiming
	if !tl.RequestStart.IsZero() {
		timing.RequestStartedAt = unixSeconds(tl.RequestStart)
	}
	if !tl.RequestEnd.IsZero() {
		timing.RequestEndedAt = unixSeconds(tl.RequestEnd)
	}
	if !tl.ResponseStart.IsZero() {
		timing.ResponseStartedAt = unixSeconds(tl.ResponseStart)
	}
	if !tl.ResponseEnd.IsZero() {
		timing.ResponseEndedAt = unixSeconds(tl.ResponseEnd)
	}
	return timing
}

// unixSeconds emits the timestamp as fractional unix seconds at
// microsecond precision, matching what the reader reconstructs.
func unixSeconds(t time.Time) *float64 {
	s := float64(t.UnixMicro()) / 1e6
	return &s
}

func fromMeta(meta *types.Meta) *pmStyle {
	if meta.Comment == "" && meta.Highlight == "" {
		return nil
	}
	style := &pmStyle{Comment: meta.Comment}
	if meta.Highlight == "strike" {
		zero := 0
		style.TextStyle = &zero
	} else if code, ok := highlightColors[meta.Highlight]; ok {
		c := code
		style.Color = &c
	}
	return style
}

func encodeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(body)
}
