package mac

import (
	"fmt"
	"regexp"
)

// AuthHeaderValue is the parsed form of an Authorization header carrying a
// MAC credential: MAC id="…", ts="…", nonce="…", ext="…", mac="…".
type AuthHeaderValue struct {
	KeyID KeyID
	TS    Timestamp
	Nonce Nonce
	Ext   Ext
	MAC   MAC
}

var headerFieldPattern = regexp.MustCompile(
	`(id|ts|nonce|ext|mac)="([^"]*)"`,
)

// String serializes the header value in the canonical field order.
func (h AuthHeaderValue) String() string {
	return fmt.Sprintf(
		`MAC id="%s", ts="%s", nonce="%s", ext="%s", mac="%s"`,
		h.KeyID, h.TS, h.Nonce, h.Ext, h.MAC,
	)
}

// ParseAuthHeaderValue parses an Authorization header value. Fields may
// appear in any order. Parsing fails (returns false) if the "MAC" scheme
// prefix is missing, if any of the five fields is absent, or if any field
// other than ext has an empty value (an empty ext is valid).
func ParseAuthHeaderValue(raw string) (AuthHeaderValue, bool) {
	if len(raw) < 4 || raw[:3] != "MAC" || (raw[3] != ' ' && raw[3] != '\t') {
		return AuthHeaderValue{}, false
	}

	matches := headerFieldPattern.FindAllStringSubmatch(raw, -1)
	fields := make(map[string]string, len(matches))
	for _, m := range matches {
		fields[m[1]] = m[2]
	}

	id, ok := fields["id"]
	if !ok || id == "" {
		return AuthHeaderValue{}, false
	}
	ts, ok := fields["ts"]
	if !ok || ts == "" {
		return AuthHeaderValue{}, false
	}
	nonce, ok := fields["nonce"]
	if !ok || nonce == "" {
		return AuthHeaderValue{}, false
	}
	ext, ok := fields["ext"]
	if !ok {
		return AuthHeaderValue{}, false
	}
	macVal, ok := fields["mac"]
	if !ok || macVal == "" {
		return AuthHeaderValue{}, false
	}

	return AuthHeaderValue{
		KeyID: KeyID(id),
		TS:    Timestamp(ts),
		Nonce: Nonce(nonce),
		Ext:   Ext(ext),
		MAC:   MAC(macVal),
	}, true
}
