package mac

import (
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Unix(1700000000, 0)
}

func TestGenerateKeyLength(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(key) != 43 {
		t.Fatalf("expected 43-character key, got %d", len(key))
	}
}

func TestNewKeyRejectsInvalidCharacters(t *testing.T) {
	if _, err := NewKey(")" + repeat("0", 42)); err == nil {
		t.Fatal("expected error for invalid characters")
	}
}

func TestNewKeyRejectsEmpty(t *testing.T) {
	if _, err := NewKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestNewKeyRejectsTooLong(t *testing.T) {
	if _, err := NewKey(repeat("1", 53)); err == nil {
		t.Fatal("expected error for over-length key")
	}
}

func TestGenerateKeyIDLength(t *testing.T) {
	id, err := GenerateKeyID()
	if err != nil {
		t.Fatalf("GenerateKeyID: %v", err)
	}
	if len(id) != 32 {
		t.Fatalf("expected 32-character key id, got %d", len(id))
	}
}

func TestGenerateNonceShape(t *testing.T) {
	n, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	if len(n) != 16 {
		t.Fatalf("expected 16-character nonce, got %d", len(n))
	}
	for _, r := range string(n) {
		if !isNonceRune(r) {
			t.Fatalf("nonce contains invalid rune %q", r)
		}
	}
}

func TestNewNonceAcceptsShortValues(t *testing.T) {
	if _, err := NewNonce("abcd1234"); err != nil {
		t.Fatalf("expected 8-char nonce to be accepted: %v", err)
	}
	if _, err := NewNonce("abc123"); err == nil {
		t.Fatal("expected error for under-length nonce")
	}
}

func TestTimestampRejectsNonInteger(t *testing.T) {
	if _, err := NewTimestamp("dave"); err == nil {
		t.Fatal("expected error for non-integer timestamp")
	}
	ts, err := NewTimestamp("45")
	if err != nil {
		t.Fatalf("NewTimestamp: %v", err)
	}
	n, err := ts.Int64()
	if err != nil || n != 45 {
		t.Fatalf("expected 45, got %d (%v)", n, err)
	}
}

func TestGenerateExt(t *testing.T) {
	if got := GenerateExt("", ""); got != "" {
		t.Fatalf("expected empty ext, got %q", got)
	}
	contentOnly := GenerateExt("application/json", "")
	if contentOnly != Ext(sha1Hex("application/json")) {
		t.Fatalf("unexpected ext for content-type only: %q", contentOnly)
	}
	bodyOnly := GenerateExt("", "body")
	if bodyOnly != Ext(sha1Hex("body")) {
		t.Fatalf("unexpected ext for body only: %q", bodyOnly)
	}
	both := GenerateExt("application/json", "body")
	if both != Ext(sha1Hex("application/json"+"body")) {
		t.Fatalf("unexpected ext for both: %q", both)
	}
}

func TestMACGenerateAndVerify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	ts := GenerateTimestamp(fixedNow())
	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	ext := GenerateExt("application/json", `{"a":1}`)

	normalized := NormalizedRequestString(ts, nonce, "POST", "/whatever", "127.0.0.1", 8080, ext)
	m, err := Generate(key, DefaultAlgorithm, normalized)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	ok, err := m.Verify(key, DefaultAlgorithm, normalized)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, ok=%v err=%v", ok, err)
	}

	changedPort := NormalizedRequestString(ts, nonce, "POST", "/whatever", "127.0.0.1", 8081, ext)
	ok, err = m.Verify(key, DefaultAlgorithm, changedPort)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected verification to fail after changing the port")
	}
}

func TestAuthHeaderValueRoundTrip(t *testing.T) {
	h := AuthHeaderValue{
		KeyID: KeyID("abcdef0123456789abcdef0123456789"),
		TS:    Timestamp("1234567890"),
		Nonce: Nonce("abc123xyz0"),
		Ext:   Ext(""),
		MAC:   MAC("c29tZS1tYWM="),
	}
	parsed, ok := ParseAuthHeaderValue(h.String())
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", parsed, h)
	}
}

func TestParseAuthHeaderValueRejectsMissingFields(t *testing.T) {
	cases := []string{
		"",
		`MAC id="", ts="1", nonce="n", ext="", mac="m"`,
		`MAC id="i", ts="", nonce="n", ext="", mac="m"`,
		`MAC id="i", ts="1", nonce="", ext="", mac="m"`,
		`MAC id="i", ts="1", nonce="n", ext="", mac=""`,
		"not-a-mac-header-at-all",
	}
	for _, c := range cases {
		if _, ok := ParseAuthHeaderValue(c); ok {
			t.Fatalf("expected parse to fail for %q", c)
		}
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
