package mac

import (
	"crypto/sha1"
	"encoding/hex"
)

// Ext binds a request's content-type and body into the MAC input without
// carrying the body itself in the normalized request string.
type Ext string

// GenerateExt computes the extension hash per the scheme: sha1 of
// content-type concatenated with body when both are non-empty, sha1 of
// whichever one is non-empty when only one is, and the empty string when
// both are absent or empty.
func GenerateExt(contentType, body string) Ext {
	hasContentType := contentType != ""
	hasBody := body != ""

	switch {
	case hasContentType && hasBody:
		return Ext(sha1Hex(contentType + body))
	case hasContentType:
		return Ext(sha1Hex(contentType))
	case hasBody:
		return Ext(sha1Hex(body))
	default:
		return ""
	}
}

// GenerateExtBytes is GenerateExt for a raw request body, avoiding a string
// copy of potentially large payloads.
func GenerateExtBytes(contentType string, body []byte) Ext {
	hasContentType := contentType != ""
	hasBody := len(body) > 0

	switch {
	case hasContentType && hasBody:
		h := sha1.New()
		h.Write([]byte(contentType))
		h.Write(body)
		return Ext(hex.EncodeToString(h.Sum(nil)))
	case hasContentType:
		return Ext(sha1Hex(contentType))
	case hasBody:
		return Ext(sha1Hex(string(body)))
	default:
		return ""
	}
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (e Ext) String() string {
	return string(e)
}
