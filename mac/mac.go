package mac

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"hash"
)

// Algorithm names the HMAC hash function used to compute a MAC. The core
// supports at least hmac-sha-1, the scheme named in the original
// specification; hmac-sha-256 is offered as a stronger option for new
// credentials.
type Algorithm string

const (
	AlgorithmHMACSHA1   Algorithm = "hmac-sha-1"
	AlgorithmHMACSHA256 Algorithm = "hmac-sha-256"

	// DefaultAlgorithm is used when a credential record does not specify one.
	DefaultAlgorithm = AlgorithmHMACSHA1
)

func (a Algorithm) hasher() (func() hash.Hash, error) {
	switch a {
	case AlgorithmHMACSHA1, "":
		return sha1.New, nil
	case AlgorithmHMACSHA256:
		return sha256.New, nil
	default:
		return nil, errors.New("mac: unsupported algorithm " + string(a))
	}
}

// MAC is the base64-encoded output of an HMAC over a normalized request
// string, keyed by a credential's Key.
type MAC string

// Generate computes the MAC for the given key, algorithm, and normalized
// request string.
func Generate(key Key, algorithm Algorithm, normalizedRequestString string) (MAC, error) {
	hasher, err := algorithm.hasher()
	if err != nil {
		return "", err
	}
	mac := hmac.New(hasher, key.Bytes())
	mac.Write([]byte(normalizedRequestString))
	return MAC(base64.StdEncoding.EncodeToString(mac.Sum(nil))), nil
}

// Verify recomputes the MAC for the given inputs and compares it against m
// in constant time.
func (m MAC) Verify(key Key, algorithm Algorithm, normalizedRequestString string) (bool, error) {
	expected, err := Generate(key, algorithm, normalizedRequestString)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(m)), nil
}

func (m MAC) String() string {
	return string(m)
}
