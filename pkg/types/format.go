package types

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Format identifies an ABR streaming protocol.
type Format string

const (
	FormatHLS  Format = "HLS"
	FormatDASH Format = "DASH"
)

// Manifest MIME types per protocol. Matching is case-insensitive so that
// variants like application/x-mpegURL are covered.
var manifestMIMETypes = map[Format][]string{
	FormatHLS:  {"application/vnd.apple.mpegurl", "application/x-mpegurl"},
	FormatDASH: {"application/dash+xml", "application/dash-xml"},
}

// genericMIMETypes are catch-all types that carry no format information;
// classification falls through to the URL extension for these.
var genericMIMETypes = map[string]bool{
	"application/octet-stream": true,
	"binary/octet-stream":      true,
	"text/plain":               true,
}

// NormalizeMIME strips parameters (charset, boundary) from a Content-Type
// value and lowercases the media type. Returns an empty string for empty or
// unparseable input.
func NormalizeMIME(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Malformed parameter section; keep the part before any ";".
		mediaType, _, _ = strings.Cut(contentType, ";")
		mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	}
	return mediaType
}

// FormatFromMIME classifies a MIME type as an ABR manifest type.
// The value may carry parameters; they are stripped before matching.
func FormatFromMIME(mimeType string) (Format, bool) {
	normalized := NormalizeMIME(mimeType)
	if normalized == "" {
		return "", false
	}
	for format, candidates := range manifestMIMETypes {
		for _, candidate := range candidates {
			if normalized == candidate {
				return format, true
			}
		}
	}
	return "", false
}

// IsGenericMIME reports whether the MIME type is absent or a catch-all that
// should not veto extension-based classification.
func IsGenericMIME(mimeType string) bool {
	normalized := NormalizeMIME(mimeType)
	return normalized == "" || genericMIMETypes[normalized]
}

// FormatFromPath classifies a URL path by its extension
// (.m3u8 -> HLS, .mpd -> DASH).
func FormatFromPath(urlPath string) (Format, bool) {
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".m3u8":
		return FormatHLS, true
	case ".mpd":
		return FormatDASH, true
	}
	return "", false
}

// FormatFromURL classifies a raw URL by its path extension.
func FormatFromURL(rawURL string) (Format, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return FormatFromPath(u.Path)
}
