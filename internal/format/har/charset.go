package har

import (
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// isUTF8Charset reports whether the charset name (possibly empty) denotes
// UTF-8 or a subset of it.
func isUTF8Charset(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// encodeCharset converts UTF-8 JSON text back into the charset the capture
// declared, recovering the original wire bytes. Unknown charsets fall back
// to the UTF-8 bytes of the text.
func encodeCharset(text, charset string) []byte {
	if isUTF8Charset(charset) {
		return []byte(text)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return []byte(text)
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), []byte(text))
	if err != nil {
		return []byte(text)
	}
	return out
}

// decodeCharset converts wire bytes in the declared charset into UTF-8 text.
func decodeCharset(body []byte, charset string) (string, bool) {
	if isUTF8Charset(charset) {
		return string(body), true
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", false
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return "", false
	}
	return string(out), true
}
