// Package har reads and writes HAR 1.2 (HTTP Archive) capture files.
package har

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/pkg/types"
)

// Adapter implements the HAR format.
type Adapter struct {
	cfg *config.Config
}

// New creates the HAR adapter.
func New(cfg *config.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// FileFormat returns the format tag.
func (a *Adapter) FileFormat() types.FileFormat {
	return types.FileFormatHAR
}

// Sniff recognizes .har files, or extensionless JSON files whose head
// carries a "log" object.
func (a *Adapter) Sniff(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if strings.EqualFold(filepath.Ext(path), ".har") {
		return true
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		head := readHead(path, 4096)
		trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, utf8BOM), " \t\r\n")
		return bytes.HasPrefix(trimmed, []byte("{")) && bytes.Contains(head, []byte(`"log"`))
	}
	return false
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readHead(path string, n int) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, n)
	read, _ := f.Read(buf)
	return buf[:read]
}

// Wire structures for the HAR 1.2 JSON layout.

type harFile struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Version string     `json:"version"`
	Creator harCreator `json:"creator"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	Timings         *harTimings `json:"timings,omitempty"`
	Comment         string      `json:"comment,omitempty"`
}

type harNameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harRequest struct {
	Method      string         `json:"method"`
	URL         string         `json:"url"`
	HTTPVersion string         `json:"httpVersion"`
	Headers     []harNameValue `json:"headers"`
	QueryString []harNameValue `json:"queryString"`
	Cookies     []harNameValue `json:"cookies"`
	PostData    *harPostData   `json:"postData,omitempty"`
	HeadersSize int            `json:"headersSize"`
	BodySize    int            `json:"bodySize"`
}

type harPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
	// Encoding is a common extension for binary request bodies.
	Encoding string `json:"encoding,omitempty"`
}

type harResponse struct {
	Status      int            `json:"status"`
	StatusText  string         `json:"statusText"`
	HTTPVersion string         `json:"httpVersion"`
	Headers     []harNameValue `json:"headers"`
	Cookies     []harNameValue `json:"cookies"`
	Content     harContent     `json:"content"`
	RedirectURL string         `json:"redirectURL"`
	HeadersSize int            `json:"headersSize"`
	BodySize    int            `json:"bodySize"`
}

type harContent struct {
	Size        int    `json:"size"`
	Compression int    `json:"compression,omitempty"`
	MimeType    string `json:"mimeType"`
	Text        string `json:"text,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

type harTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// Parse loads a HAR file into the canonical entry model.
func (a *Adapter) Parse(path string) ([]*types.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if err := validate(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedInput, path, err)
	}

	var file harFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedInput, path, err)
	}

	entries := make([]*types.Entry, 0, len(file.Log.Entries))
	for i, raw := range file.Log.Entries {
		entries = append(entries, a.buildEntry(i, &raw))
	}
	return entries, nil
}

func (a *Adapter) buildEntry(index int, raw *harEntry) *types.Entry {
	reqHeaders := toHeaders(raw.Request.Headers)
	respHeaders := toHeaders(raw.Response.Headers)

	contentType := respHeaders.Get("Content-Type")
	if contentType == "" {
		contentType = raw.Response.Content.MimeType
	}

	entry := &types.Entry{
		Index: index,
		ID:    fmt.Sprintf("index-%d", index),
		Request: types.Request{
			Method:  raw.Request.Method,
			URL:     raw.Request.URL,
			Headers: reqHeaders,
			Body:    a.cfg.CapBody(decodePostData(raw.Request.PostData)),
		},
		Response: types.Response{
			StatusCode: raw.Response.Status,
			Headers:    respHeaders,
			Body:       a.cfg.CapBody(decodeContent(&raw.Response.Content, respHeaders)),
			MIMEType:   types.NormalizeMIME(contentType),
		},
		Meta: types.Meta{
			Comment:      raw.Comment,
			SourceFormat: types.FileFormatHAR,
		},
	}
	entry.Timeline = buildTimeline(raw)
	return entry
}

func toHeaders(pairs []harNameValue) types.Headers {
	headers := make(types.Headers, 0, len(pairs))
	for _, pair := range pairs {
		headers = append(headers, types.Header{Name: pair.Name, Value: pair.Value})
	}
	return headers
}

func decodePostData(post *harPostData) []byte {
	if post == nil || post.Text == "" {
		return nil
	}
	if post.Encoding == "base64" {
		if decoded, err := base64.StdEncoding.DecodeString(post.Text); err == nil {
			return decoded
		}
	}
	return []byte(post.Text)
}

// decodeContent reconstructs the response body bytes. Base64 content decodes
// directly; plain text re-encodes into the charset the capture declared, so
// the result matches the original wire bytes.
func decodeContent(content *harContent, respHeaders types.Headers) []byte {
	if content.Text == "" {
		return nil
	}
	if content.Encoding == "base64" {
		if decoded, err := base64.StdEncoding.DecodeString(content.Text); err == nil {
			return decoded
		}
		return nil
	}
	charset := charsetOf(content.MimeType)
	if charset == "" {
		charset = charsetOf(respHeaders.Get("Content-Type"))
	}
	return encodeCharset(content.Text, charset)
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func buildTimeline(raw *harEntry) types.Timeline {
	var tl types.Timeline
	start, err := parseStartedDateTime(raw.StartedDateTime)
	if err != nil {
		return tl
	}
	tl.RequestStart = start

	if t := raw.Timings; t != nil && (t.Send >= 0 || t.Wait >= 0 || t.Receive >= 0) {
		cursor := start
		if t.Send >= 0 {
			cursor = cursor.Add(durationMs(t.Send))
			tl.RequestEnd = cursor
		}
		if t.Wait >= 0 {
			cursor = cursor.Add(durationMs(t.Wait))
			tl.ResponseStart = cursor
		}
		if t.Receive >= 0 {
			cursor = cursor.Add(durationMs(t.Receive))
			tl.ResponseEnd = cursor
		}
		return tl
	}
	if raw.Time > 0 {
		tl.ResponseEnd = start.Add(durationMs(raw.Time))
	}
	return tl
}

func parseStartedDateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty startedDateTime")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func durationMs(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
