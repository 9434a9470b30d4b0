// Package multifile reads and writes the folder-per-trace capture layout:
// request_N.meta.json plus request_N.body* and request_N.<name>.txt
// annotation sidecars, either loose in a directory (optionally under a
// requests/ subdirectory) or packed into a .barc/.zip archive.
package multifile

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/pkg/types"
)

var (
	metaPattern = regexp.MustCompile(`^request_(\d+)\.meta\.json$`)
	annPattern  = regexp.MustCompile(`^request_\d+\.(.+)\.txt$`)
)

// Adapter implements the multifile capture layout.
type Adapter struct {
	cfg *config.Config
}

// New creates the multifile adapter.
func New(cfg *config.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// FileFormat returns the format tag.
func (a *Adapter) FileFormat() types.FileFormat {
	return types.FileFormatMultifile
}

// Sniff recognizes directories holding request_N.meta.json files and
// .barc/.zip archives.
func (a *Adapter) Sniff(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return hasMetaFiles(p) || hasMetaFiles(filepath.Join(p, "requests"))
	}
	ext := strings.ToLower(filepath.Ext(p))
	if ext != ".barc" && ext != ".zip" {
		return false
	}
	r, err := zip.OpenReader(p)
	if err != nil {
		return false
	}
	defer r.Close()
	for _, f := range r.File {
		if metaPattern.MatchString(path.Base(f.Name)) {
			return true
		}
	}
	return false
}

func hasMetaFiles(dir string) bool {
	names, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, d := range names {
		if !d.IsDir() && metaPattern.MatchString(d.Name()) {
			return true
		}
	}
	return false
}

// Wire structure of request_N.meta.json.

type metaRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

type metaResponse struct {
	StatusCode  int               `json:"status_code"`
	Reason      string            `json:"reason,omitempty"`
	Headers     map[string]string `json:"headers"`
	MimeType    string            `json:"mime_type,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

type metaFile struct {
	Timestamp string       `json:"timestamp"`
	Request   metaRequest  `json:"request"`
	Response  metaResponse `json:"response"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Comment   string       `json:"comment,omitempty"`
	Highlight string       `json:"highlight,omitempty"`
}

// rawMember bundles one meta file with its body and annotation sidecars.
type rawMember struct {
	fileIndex   int
	metaName    string
	meta        []byte
	body        []byte
	annotations map[string]string
}

// Parse loads all members in file-index order. Members load through a
// bounded worker pool; a malformed meta document fails the whole parse.
func (a *Adapter) Parse(p string) ([]*types.Entry, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, p)
	}

	var members []rawMember
	if info.IsDir() {
		members, err = a.scanFolder(p)
	} else {
		members, err = a.scanArchive(p)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].fileIndex < members[j].fileIndex
	})

	entries := make([]*types.Entry, len(members))
	for i, m := range members {
		entry, err := a.buildEntry(i, m)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedInput, m.metaName, err)
		}
		entries[i] = entry
	}
	return entries, nil
}

func (a *Adapter) scanFolder(root string) ([]rawMember, error) {
	dirs := []string{root}
	if sub := filepath.Join(root, "requests"); hasMetaFiles(sub) {
		dirs = append(dirs, sub)
	}

	type metaLoc struct {
		fileIndex int
		idxStr    string
		dir       string
		name      string
	}
	var locs []metaLoc
	for _, dir := range dirs {
		listing, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, d := range listing {
			if d.IsDir() {
				continue
			}
			m := metaPattern.FindStringSubmatch(d.Name())
			if m == nil {
				continue
			}
			idx := 0
			fmt.Sscanf(m[1], "%d", &idx)
			locs = append(locs, metaLoc{fileIndex: idx, idxStr: m[1], dir: dir, name: d.Name()})
		}
	}

	members := make([]rawMember, len(locs))
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.FetchWorkers)
	for i, loc := range locs {
		g.Go(func() error {
			meta, err := os.ReadFile(filepath.Join(loc.dir, loc.name))
			if err != nil {
				return fmt.Errorf("reading %s: %w", loc.name, err)
			}
			member := rawMember{fileIndex: loc.fileIndex, metaName: loc.name, meta: meta}

			listing, err := os.ReadDir(loc.dir)
			if err != nil {
				return fmt.Errorf("listing %s: %w", loc.dir, err)
			}
			bodyPrefix := "request_" + loc.idxStr + ".body"
			annPrefix := "request_" + loc.idxStr + "."
			for _, d := range listing {
				name := d.Name()
				switch {
				case strings.HasPrefix(name, bodyPrefix):
					body, err := os.ReadFile(filepath.Join(loc.dir, name))
					if err == nil {
						member.body = body
					}
				case strings.HasPrefix(name, annPrefix) && strings.HasSuffix(name, ".txt"):
					text, err := os.ReadFile(filepath.Join(loc.dir, name))
					if err == nil {
						addAnnotation(&member, name, string(text))
					}
				}
			}
			members[i] = member
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return members, nil
}

func (a *Adapter) scanArchive(p string) ([]rawMember, error) {
	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid archive: %v", types.ErrMalformedInput, p, err)
	}
	defer r.Close()

	byDir := make(map[string][]*zip.File)
	for _, f := range r.File {
		byDir[path.Dir(f.Name)] = append(byDir[path.Dir(f.Name)], f)
	}

	type metaLoc struct {
		fileIndex int
		idxStr    string
		dir       string
		file      *zip.File
	}
	var locs []metaLoc
	for dir, files := range byDir {
		for _, f := range files {
			m := metaPattern.FindStringSubmatch(path.Base(f.Name))
			if m == nil {
				continue
			}
			idx := 0
			fmt.Sscanf(m[1], "%d", &idx)
			locs = append(locs, metaLoc{fileIndex: idx, idxStr: m[1], dir: dir, file: f})
		}
	}

	members := make([]rawMember, len(locs))
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.FetchWorkers)
	for i, loc := range locs {
		g.Go(func() error {
			meta, err := readZipFile(loc.file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", loc.file.Name, err)
			}
			member := rawMember{fileIndex: loc.fileIndex, metaName: loc.file.Name, meta: meta}

			bodyPrefix := "request_" + loc.idxStr + ".body"
			annPrefix := "request_" + loc.idxStr + "."
			for _, f := range byDir[loc.dir] {
				base := path.Base(f.Name)
				switch {
				case strings.HasPrefix(base, bodyPrefix):
					if body, err := readZipFile(f); err == nil {
						member.body = body
					}
				case strings.HasPrefix(base, annPrefix) && strings.HasSuffix(base, ".txt"):
					if text, err := readZipFile(f); err == nil {
						addAnnotation(&member, base, string(text))
					}
				}
			}
			members[i] = member
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return members, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func addAnnotation(member *rawMember, filename, text string) {
	m := annPattern.FindStringSubmatch(filename)
	if m == nil {
		return
	}
	name := m[1]
	if name == "comment" || name == "highlight" {
		return
	}
	if member.annotations == nil {
		member.annotations = make(map[string]string)
	}
	member.annotations[name] = text
}

func (a *Adapter) buildEntry(index int, m rawMember) (*types.Entry, error) {
	var meta metaFile
	if err := json.Unmarshal(m.meta, &meta); err != nil {
		return nil, err
	}

	mimeType := meta.Response.MimeType
	if mimeType == "" {
		mimeType = meta.Response.ContentType
	}
	respHeaders := toHeaders(meta.Response.Headers)
	if mimeType == "" {
		mimeType = respHeaders.Get("Content-Type")
	}

	var start, end time.Time
	if meta.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, meta.Timestamp); err == nil {
			start = t.UTC()
			end = start.Add(time.Duration(meta.ElapsedMS) * time.Millisecond)
		}
	}

	return &types.Entry{
		Index: index,
		ID:    uuid.NewString(),
		Request: types.Request{
			Method:  strings.ToUpper(orDefault(meta.Request.Method, "GET")),
			URL:     meta.Request.URL,
			Headers: toHeaders(meta.Request.Headers),
		},
		Response: types.Response{
			StatusCode: meta.Response.StatusCode,
			Headers:    respHeaders,
			Body:       a.cfg.CapBody(m.body),
			MIMEType:   types.NormalizeMIME(mimeType),
		},
		Timeline: types.Timeline{
			RequestStart: start,
			ResponseEnd:  end,
		},
		Meta: types.Meta{
			Comment:      meta.Comment,
			Highlight:    meta.Highlight,
			Annotations:  m.annotations,
			SourceFormat: types.FileFormatMultifile,
		},
	}, nil
}

// toHeaders converts the flat header map, sorted by name so parses are
// deterministic.
func toHeaders(m map[string]string) types.Headers {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	headers := make(types.Headers, 0, len(names))
	for _, name := range names {
		headers = append(headers, types.Header{Name: name, Value: m[name]})
	}
	return headers
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
