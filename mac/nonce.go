package mac

import (
	"crypto/rand"
	"errors"
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Nonce is a per-request random token used to prevent replay within the
// freshness window. Generated nonces are 16 characters; parsed nonces are
// accepted down to 8 characters to tolerate older clients.
type Nonce string

// GenerateNonce returns a new 16-character lowercase alphanumeric nonce.
func GenerateNonce() (Nonce, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 16)
	for i, b := range buf {
		out[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return Nonce(out), nil
}

// NewNonce validates an explicit value, accepting anything between 8 and 16
// lowercase alphanumeric characters.
func NewNonce(value string) (Nonce, error) {
	if len(value) < 8 || len(value) > 16 {
		return "", errors.New("mac: nonce must be between 8 and 16 characters")
	}
	for _, r := range value {
		if !isNonceRune(r) {
			return "", errors.New("mac: nonce contains invalid characters")
		}
	}
	return Nonce(value), nil
}

func isNonceRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	default:
		return false
	}
}

func (n Nonce) String() string {
	return string(n)
}
