// Package proxyman reads and writes Proxyman log v2 archives
// (.proxymanlogv2): zip files with one JSON document per transaction.
package proxyman

import (
	"archive/zip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/pkg/types"
)

// memberPattern matches archive member names like request_12_a3f.
var memberPattern = regexp.MustCompile(`^request_(\d+)_([a-zA-Z0-9_-]+)$`)

// Highlight color codes used by the style object.
var highlightColors = map[string]int{
	"red":    0,
	"yellow": 1,
	"green":  2,
	"blue":   3,
	"purple": 4,
	"grey":   5,
}

// Adapter implements the Proxyman log v2 format.
type Adapter struct {
	cfg *config.Config
}

// New creates the Proxyman adapter.
func New(cfg *config.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// FileFormat returns the format tag.
func (a *Adapter) FileFormat() types.FileFormat {
	return types.FileFormatProxyman
}

// Sniff recognizes .proxymanlogv2 files with a zip signature.
func (a *Adapter) Sniff(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if !strings.EqualFold(filepath.Ext(path), ".proxymanlogv2") {
		return false
	}
	return hasZipSignature(path)
}

func hasZipSignature(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	sig := make([]byte, 4)
	if _, err := f.Read(sig); err != nil {
		return false
	}
	return sig[0] == 'P' && sig[1] == 'K'
}

// Wire structures for the per-transaction JSON documents.

type pmHeaderKey struct {
	Name            string `json:"name"`
	NameInLowercase string `json:"nameInLowercase,omitempty"`
}

type pmHeaderEntry struct {
	Key       pmHeaderKey `json:"key"`
	Value     string      `json:"value"`
	IsEnabled bool        `json:"isEnabled"`
}

type pmHeader struct {
	Entries []pmHeaderEntry `json:"entries"`
}

type pmName struct {
	Name string `json:"name"`
}

type pmVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

type pmRequest struct {
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	IsSSL    bool      `json:"isSSL"`
	Method   pmName    `json:"method"`
	Scheme   string    `json:"scheme"`
	FullPath string    `json:"fullPath"`
	URI      string    `json:"uri"`
	Version  pmVersion `json:"version"`
	Header   pmHeader  `json:"header"`
	BodyData string    `json:"bodyData"`
}

type pmStatus struct {
	Code   int    `json:"code"`
	Phrase string `json:"phrase"`
	Strict bool   `json:"strict"`
}

type pmResponse struct {
	Status              pmStatus          `json:"status"`
	Version             pmVersion         `json:"version"`
	Header              pmHeader          `json:"header"`
	BodyData            string            `json:"bodyData"`
	BodySize            int               `json:"bodySize"`
	BodyEncodedSize     int               `json:"bodyEncodedSize"`
	CreatedAt           float64           `json:"createdAt,omitempty"`
	CustomPreviewerTabs map[string]string `json:"customPreviewerTabs,omitempty"`
}

type pmTiming struct {
	RequestStartedAt  *float64 `json:"requestStartedAt,omitempty"`
	RequestEndedAt    *float64 `json:"requestEndedAt,omitempty"`
	ResponseStartedAt *float64 `json:"responseStartedAt,omitempty"`
	ResponseEndedAt   *float64 `json:"responseEndedAt,omitempty"`
}

type pmStyle struct {
	Comment   string `json:"comment,omitempty"`
	Color     *int   `json:"color,omitempty"`
	TextStyle *int   `json:"textStyle,omitempty"`
}

type pmEntry struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Request       pmRequest  `json:"request"`
	Response      pmResponse `json:"response"`
	Timing        pmTiming   `json:"timing"`
	Style         *pmStyle   `json:"style,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	IsSSL         bool       `json:"isSSL"`
	IsIntercepted bool       `json:"isIntercepted"`
	IsRelayed     bool       `json:"isRelayed"`
	IsFromFile    bool       `json:"isFromFile"`
	Timezone      string     `json:"timezone"`
}

type member struct {
	archiveIndex int
	id           string
	file         *zip.File
}

// Parse loads the archive's transaction documents in archive-index order.
// Members are parsed with a bounded worker pool; a single malformed member
// fails the whole parse rather than being dropped.
func (a *Adapter) Parse(path string) ([]*types.Entry, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s is not a valid Proxyman log (zip archive): %v", types.ErrMalformedInput, path, err)
	}
	defer r.Close()

	var members []member
	for _, f := range r.File {
		m := memberPattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		members = append(members, member{archiveIndex: idx, id: m[2], file: f})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].archiveIndex < members[j].archiveIndex
	})

	entries := make([]*types.Entry, len(members))
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.FetchWorkers)
	for i, m := range members {
		g.Go(func() error {
			entry, err := a.parseMember(m, i)
			if err != nil {
				return fmt.Errorf("%w: %s!%s: %v", types.ErrMalformedInput, path, m.file.Name, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (a *Adapter) parseMember(m member, index int) (*types.Entry, error) {
	rc, err := m.file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var raw pmEntry
	if err := json.NewDecoder(rc).Decode(&raw); err != nil {
		return nil, err
	}

	id := raw.ID
	if id == "" {
		id = m.id
	}

	reqHeaders := toHeaders(raw.Request.Header)
	respHeaders := toHeaders(raw.Response.Header)

	entry := &types.Entry{
		Index: index,
		ID:    id,
		Request: types.Request{
			Method:  strings.ToUpper(orDefault(raw.Request.Method.Name, "GET")),
			URL:     requestURL(&raw.Request),
			Headers: reqHeaders,
			Body:    a.cfg.CapBody(decodeBody(raw.Request.BodyData)),
		},
		Response: types.Response{
			StatusCode: raw.Response.Status.Code,
			Headers:    respHeaders,
			Body:       a.cfg.CapBody(decodeBody(raw.Response.BodyData)),
			MIMEType:   types.NormalizeMIME(respHeaders.Get("Content-Type")),
		},
		Timeline: types.Timeline{
			RequestStart:  fromUnixSeconds(raw.Timing.RequestStartedAt),
			RequestEnd:    fromUnixSeconds(raw.Timing.RequestEndedAt),
			ResponseStart: fromUnixSeconds(raw.Timing.ResponseStartedAt),
			ResponseEnd:   fromUnixSeconds(raw.Timing.ResponseEndedAt),
		},
		Meta: types.Meta{
			Comment:      entryComment(&raw),
			Highlight:    entryHighlight(raw.Style),
			Annotations:  cloneMap(raw.Response.CustomPreviewerTabs),
			SourceFormat: types.FileFormatProxyman,
		},
	}
	return entry, nil
}

func toHeaders(h pmHeader) types.Headers {
	headers := make(types.Headers, 0, len(h.Entries))
	for _, e := range h.Entries {
		if e.Key.Name == "" {
			continue
		}
		headers = append(headers, types.Header{Name: e.Key.Name, Value: e.Value})
	}
	return headers
}

func requestURL(req *pmRequest) string {
	if req.FullPath != "" {
		return req.FullPath
	}
	scheme := orDefault(req.Scheme, "http")
	if req.Host == "" {
		return req.URI
	}
	hostPort := req.Host
	if req.Port != 0 && !isDefaultPort(scheme, req.Port) {
		hostPort = fmt.Sprintf("%s:%d", req.Host, req.Port)
	}
	return fmt.Sprintf("%s://%s%s", scheme, hostPort, orDefault(req.URI, "/"))
}

func isDefaultPort(scheme string, port int) bool {
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}

func decodeBody(b64 string) []byte {
	if b64 == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return decoded
}

// fromUnixSeconds converts a fractional unix timestamp, rounded to
// microsecond precision so values survive the float64 representation.
func fromUnixSeconds(seconds *float64) time.Time {
	if seconds == nil || *seconds == 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(math.Round(*seconds * 1e6))).UTC()
}

func entryComment(raw *pmEntry) string {
	if raw.Style != nil && raw.Style.Comment != "" {
		return raw.Style.Comment
	}
	return raw.Notes
}

func entryHighlight(style *pmStyle) string {
	if style == nil {
		return ""
	}
	if style.TextStyle != nil && *style.TextStyle == 0 {
		return "strike"
	}
	if style.Color != nil {
		for name, code := range highlightColors {
			if code == *style.Color {
				return name
			}
		}
	}
	return ""
}

func cloneMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
