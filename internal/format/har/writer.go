package har

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/streamlens/streamlens/pkg/types"
)

const creatorName = "streamlens"
const creatorVersion = "1.0"

// Serialize writes the entries as a HAR 1.2 file. The file is assembled in a
// temporary sibling and renamed into place, so a failed write leaves no
// partial artifact at dest.
func (a *Adapter) Serialize(entries []*types.Entry, dest string) error {
	file := harFile{
		Log: harLog{
			Version: "1.2",
			Creator: harCreator{Name: creatorName, Version: creatorVersion},
			Entries: make([]harEntry, 0, len(entries)),
		},
	}
	for _, entry := range entries {
		file.Log.Entries = append(file.Log.Entries, fromEntry(entry))
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding HAR for %s: %w", dest, err)
	}

	return writeAtomic(dest, data)
}

// writeAtomic writes data to a temporary file in dest's directory and moves
// it into place.
func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".har-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("moving %s into place: %w", dest, err)
	}
	return nil
}

func fromEntry(entry *types.Entry) harEntry {
	raw := harEntry{
		Request:  fromRequest(&entry.Request),
		Response: fromResponse(&entry.Response),
		Comment:  entry.Meta.Comment,
	}

	tl := entry.Timeline
	if !tl.RequestStart.IsZero() {
		raw.StartedDateTime = tl.RequestStart.Format(time.RFC3339Nano)
		if d := tl.Duration(); d > 0 {
			raw.Time = float64(d) / float64(time.Millisecond)
		}
		raw.Timings = fromTimeline(tl)
	}
	return raw
}

func fromTimeline(tl types.Timeline) *harTimings {
	timings := &harTimings{Send: -1, Wait: -1, Receive: -1}
	cursor := tl.RequestStart
	if !tl.RequestEnd.IsZero() {
		timings.Send = float64(tl.RequestEnd.Sub(cursor)) / float64(time.Millisecond)
		cursor = tl.RequestEnd
	}
	if !tl.ResponseStart.IsZero() {
		timings.Wait = float64(tl.ResponseStart.Sub(cursor)) / float64(time.Millisecond)
		cursor = tl.ResponseStart
	}
	if !tl.ResponseEnd.IsZero() {
		timings.Receive = float64(tl.ResponseEnd.Sub(cursor)) / float64(time.Millisecond)
	}
	if timings.Send < 0 && timings.Wait < 0 && timings.Receive < 0 {
		return nil
	}
	return timings
}

func fromRequest(req *types.Request) harRequest {
	out := harRequest{
		Method:      req.Method,
		URL:         req.URL,
		HTTPVersion: "HTTP/1.1",
		Headers:     fromHeaders(req.Headers),
		QueryString: queryParams(req.URL),
		Cookies:     []harNameValue{},
		HeadersSize: headersSize(req.Headers),
		BodySize:    len(req.Body),
	}
	if len(req.Body) > 0 {
		post := &harPostData{MimeType: req.Headers.Get("Content-Type")}
		if utf8.Valid(req.Body) {
			post.Text = string(req.Body)
		} else {
			post.Text = base64.StdEncoding.EncodeToString(req.Body)
			post.Encoding = "base64"
		}
		out.PostData = post
	}
	return out
}

func fromResponse(resp *types.Response) harResponse {
	contentType := resp.Headers.Get("Content-Type")
	content := harContent{
		Size:     len(resp.Body),
		MimeType: contentType,
	}
	if len(resp.Body) > 0 {
		charset := charsetOf(contentType)
		switch {
		case isUTF8Charset(charset) && utf8.Valid(resp.Body):
			content.Text = string(resp.Body)
		default:
			if text, ok := decodeCharset(resp.Body, charset); ok && !isUTF8Charset(charset) {
				content.Text = text
			} else {
				content.Text = base64.StdEncoding.EncodeToString(resp.Body)
				content.Encoding = "base64"
			}
		}
	}
	return harResponse{
		Status:      resp.StatusCode,
		StatusText:  statusText(resp.StatusCode),
		HTTPVersion: "HTTP/1.1",
		Headers:     fromHeaders(resp.Headers),
		Cookies:     []harNameValue{},
		Content:     content,
		HeadersSize: headersSize(resp.Headers),
		BodySize:    len(resp.Body),
	}
}

func fromHeaders(headers types.Headers) []harNameValue {
	out := make([]harNameValue, 0, len(headers))
	for _, h := range headers {
		out = append(out, harNameValue{Name: h.Name, Value: h.Value})
	}
	return out
}

func headersSize(headers types.Headers) int {
	size := 0
	for _, h := range headers {
		// "Name: Value\r\n"
		size += len(h.Name) + len(h.Value) + 4
	}
	return size
}

func queryParams(rawURL string) []harNameValue {
	out := []harNameValue{}
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return out
	}
	// Pairs keep their original relative order.
	for _, part := range strings.Split(u.RawQuery, "&") {
		name, value, _ := strings.Cut(part, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		out = append(out, harNameValue{Name: name, Value: value})
	}
	return out
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}
