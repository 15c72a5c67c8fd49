package mac

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
)

// keyCharset matches the base64url alphabet the spec requires for Key values.
var keyCharset = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Key is the opaque shared-secret material bound to a credential. Its external
// representation is a 43-character base64url (no padding) encoding of 32
// uniformly random bytes, but the constructor accepts any value drawn from the
// base64url alphabet with length between 1 and 52 so stored values round-trip.
type Key string

// GenerateKey produces a new Key backed by 32 bytes read from a CSPRNG.
func GenerateKey() (Key, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return NewKey(base64.RawURLEncoding.EncodeToString(buf))
}

// NewKey validates an explicit value and returns it as a Key.
func NewKey(value string) (Key, error) {
	if value == "" {
		return "", errors.New("mac: key must not be empty")
	}
	if len(value) > 52 {
		return "", errors.New("mac: key exceeds maximum length")
	}
	if !keyCharset.MatchString(value) {
		return "", errors.New("mac: key contains characters outside the base64url alphabet")
	}
	return Key(value), nil
}

// Bytes decodes the key's base64url representation back to raw bytes. Not all
// valid Key values decode cleanly (padding-free base64url requires specific
// lengths); callers that need the underlying secret bytes for HMAC should use
// this, while callers that only need the opaque value should use String.
func (k Key) Bytes() []byte {
	decoded, err := base64.RawURLEncoding.DecodeString(string(k))
	if err != nil {
		// Fall back to treating the key's own bytes as the secret. This keeps
		// MAC generation well defined even for keys that are not the product
		// of GenerateKey (e.g. imported from another system).
		return []byte(k)
	}
	return decoded
}

func (k Key) String() string {
	return string(k)
}
