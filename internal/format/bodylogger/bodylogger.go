// Package bodylogger reads server-side body logger text files (.log).
// The format is read-only: entries are reconstructed from log records,
// there is no faithful way to write one back.
package bodylogger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/pkg/types"
)

var (
	// timestampPattern delimits records. Some producers emit the
	// millisecond separator as ":" instead of ",".
	timestampPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}[,:]\d{3})`)

	requestTimePattern = regexp.MustCompile(`request_time=([\d.]+)`)
	startTagPattern    = regexp.MustCompile(`^\[(\w+)_START ([\w-]+)(?: ([\w.-]+))?\]`)

	mediaSeqPattern = regexp.MustCompile(`#EXT-X-MEDIA-SEQUENCE:(\d+)`)
	pdtPattern      = regexp.MustCompile(`#EXT-X-PROGRAM-DATE-TIME:([^,\n]+)`)
	vastPattern     = regexp.MustCompile(`(?i)<(\w*:)?VAST`)
	vmapPattern     = regexp.MustCompile(`(?i)<(\w*:)?VMAP`)
)

// Adapter implements the body logger format.
type Adapter struct {
	cfg *config.Config
}

// New creates the body logger adapter.
func New(cfg *config.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// FileFormat returns the format tag.
func (a *Adapter) FileFormat() types.FileFormat {
	return types.FileFormatBodyLogger
}

// Sniff recognizes .log files that open with a timestamped record.
func (a *Adapter) Sniff(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if !strings.EqualFold(filepath.Ext(path), ".log") {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 4096)
	n, _ := f.Read(head)
	return timestampPattern.Match(head[:n])
}

// record is the intermediate result of parsing one log block.
type record struct {
	timestamp     time.Time
	requestLine   string
	correlationID int
	requestTime   float64
	queryParams   string
	headers       types.Headers
	body          string
	logType       string
	serviceID     string
	sessionID     string
	contentType   string
}

// Parse splits the file on timestamp markers and reconstructs one entry
// per complete body block. Blocks without a recognizable body section
// are skipped; they are log noise, not transactions.
func (a *Adapter) Parse(path string) ([]*types.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	parts := splitOnTimestamps(string(data))
	var records []record
	for _, p := range parts {
		rec, ok := parseRecord(p.timestamp, p.content)
		if ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 && len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s contains no body logger records", types.ErrMalformedInput, path)
	}

	entries := make([]*types.Entry, len(records))
	for i, rec := range records {
		entries[i] = a.buildEntry(i, rec)
	}
	return entries, nil
}

type block struct {
	timestamp string
	content   string
}

func splitOnTimestamps(content string) []block {
	parts := timestampPattern.Split(content, -1)
	stamps := timestampPattern.FindAllString(content, -1)
	// parts[0] is the preamble before the first timestamp.
	blocks := make([]block, 0, len(stamps))
	for i, ts := range stamps {
		if i+1 >= len(parts) {
			break
		}
		blocks = append(blocks, block{timestamp: ts, content: parts[i+1]})
	}
	return blocks
}

func parseTimestamp(ts string) (time.Time, bool) {
	// Normalize the millisecond separator.
	if len(ts) > 19 && ts[19] == ':' {
		ts = ts[:19] + "," + ts[20:]
	}
	t, err := time.Parse("2006-01-02 15:04:05,000", ts)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseRecord(tsRaw, content string) (record, bool) {
	var rec record
	ts, ok := parseTimestamp(tsRaw)
	if !ok {
		return rec, false
	}
	rec.timestamp = ts

	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 {
		if m := requestTimePattern.FindStringSubmatch(lines[0]); m != nil {
			rec.requestTime, _ = strconv.ParseFloat(m[1], 64)
		}
	}

	var (
		inHeaders     bool
		inBody        bool
		inQueryParams bool
		queryAccum    []string
		bodyLines     []string
	)

	for _, line := range lines {
		stripped := strings.TrimSpace(line)

		if idx := strings.Index(line, "REQUEST:"); idx >= 0 {
			full := strings.TrimSpace(line[idx+len("REQUEST:"):])
			if cut := strings.LastIndex(full, "_"); cut >= 0 {
				if id, err := strconv.Atoi(full[cut+1:]); err == nil {
					rec.requestLine = full[:cut]
					rec.correlationID = id
					continue
				}
			}
			rec.requestLine = full
			continue
		}

		if strings.Contains(line, "-- Query params:") {
			inQueryParams = true
			queryAccum = nil
			continue
		}

		if inQueryParams {
			if strings.HasPrefix(stripped, "-- ") ||
				(strings.HasPrefix(stripped, "[") && strings.Contains(stripped, "_START")) {
				rec.queryParams = strings.Join(queryAccum, "&")
				inQueryParams = false
				// Fall through so the marker line is still processed.
			} else {
				if strings.Contains(stripped, "=") {
					queryAccum = append(queryAccum, stripped)
				}
				continue
			}
		}

		if stripped == "-- Headers:" {
			inHeaders = true
			continue
		}

		if strings.HasPrefix(stripped, "[") && strings.Contains(stripped, "_START") {
			inHeaders = false
			inBody = true
			if m := startTagPattern.FindStringSubmatch(stripped); m != nil {
				rec.logType = m[1]
				rec.serviceID = m[2]
				rec.sessionID = m[3]
			}
			continue
		}

		if strings.HasPrefix(stripped, "[") && strings.Contains(stripped, "_END") {
			break
		}

		if inHeaders {
			if name, value, found := strings.Cut(line, ": "); found {
				rec.headers = append(rec.headers, types.Header{
					Name:  strings.TrimSpace(name),
					Value: strings.TrimSpace(value),
				})
			}
			continue
		}

		if inBody {
			bodyLines = append(bodyLines, line)
		}
	}

	if inQueryParams && rec.queryParams == "" {
		rec.queryParams = strings.Join(queryAccum, "&")
	}

	if rec.logType == "" || rec.serviceID == "" {
		return rec, false
	}

	rec.body = strings.Join(bodyLines, "\n")
	rec.contentType = sniffContentType(rec.body)
	return rec, true
}

// sniffContentType classifies the body by content since the log carries
// no Content-Type of its own.
func sniffContentType(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")

	head := lines
	if len(head) > 3 {
		head = head[:3]
	}
	for _, line := range head {
		if strings.Contains(line, "<MPD") {
			return "application/dash+xml"
		}
	}
	if strings.Contains(body, "#EXTM3U") {
		return "application/x-mpegURL"
	}
	if vastPattern.MatchString(body) {
		return "application/vnd.vast+xml"
	}
	if vmapPattern.MatchString(body) {
		return "application/vnd.vmap+xml"
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "<?xml") {
		return "application/xml"
	}
	return "text/plain"
}

func (a *Adapter) buildEntry(index int, rec record) *types.Entry {
	reqHeaders := requestHeaders(rec)
	respHeaders := responseHeaders(rec)

	comment := rec.logType

	return &types.Entry{
		Index: index,
		ID:    uuid.NewString(),
		Request: types.Request{
			Method:  "GET",
			URL:     syntheticURL(rec),
			Headers: reqHeaders,
		},
		Response: types.Response{
			StatusCode: 200,
			Headers:    respHeaders,
			Body:       a.cfg.CapBody([]byte(rec.body)),
			MIMEType:   types.NormalizeMIME(rec.contentType),
		},
		Timeline: types.Timeline{
			RequestStart: rec.timestamp.Add(-time.Duration(rec.requestTime * float64(time.Second))),
			ResponseEnd:  rec.timestamp,
		},
		Meta: types.Meta{
			Comment:       comment,
			LogType:       rec.logType,
			ServiceID:     rec.serviceID,
			SessionID:     rec.sessionID,
			CorrelationID: strconv.Itoa(rec.correlationID),
			SourceFormat:  types.FileFormatBodyLogger,
		},
	}
}

// syntheticURL builds a stable URL from the request line so entries from
// different log types never collide on the same host.
func syntheticURL(rec record) string {
	reqLine := strings.TrimLeft(rec.requestLine, "/")
	host, path := reqLine, "/"
	if cut := strings.Index(reqLine, "/"); cut >= 0 {
		host = reqLine[:cut]
		path = reqLine[cut:]
	}
	u := fmt.Sprintf("http://%s-%s%s", host, strings.ToLower(rec.logType), path)
	if rec.queryParams != "" {
		u += "?" + rec.queryParams
	}
	return u
}

func requestHeaders(rec record) types.Headers {
	headers := rec.headers.Clone()
	headers = append(headers, types.Header{Name: "correlation-id", Value: strconv.Itoa(rec.correlationID)})
	if v := headers.Get("x-sessionid"); v != "" {
		headers = append(headers, types.Header{Name: "BPK-Session", Value: v})
	}
	if v := headers.Get("x-serviceid"); v != "" {
		headers = append(headers, types.Header{Name: "BPK-Service", Value: v})
	}
	return headers
}

func responseHeaders(rec record) types.Headers {
	headers := types.Headers{{Name: "Content-Type", Value: rec.contentType}}
	if rec.contentType == "application/x-mpegURL" {
		if m := mediaSeqPattern.FindStringSubmatch(rec.body); m != nil {
			headers = append(headers, types.Header{Name: "HLS-MediaSeq", Value: m[1]})
		}
		if m := pdtPattern.FindStringSubmatch(rec.body); m != nil {
			headers = append(headers, types.Header{Name: "HLS-PDT", Value: m[1]})
		}
	}
	return headers
}
