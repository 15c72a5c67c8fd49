// Package keystore provides a thin async client to the document store that
// backs credential records. The credential service is the only consumer;
// the auth proxy never talks to the store directly, only to the credential
// service over HTTP.
package keystore

import "encoding/json"

// Result is delivered to a Gateway callback once its round trip completes.
// Found is false when the store reported the document (or view key) as
// absent; Err is non-nil on transport failure or a response body that could
// not be decoded as JSON. Code carries the underlying HTTP status when the
// backend is HTTP-based; backends without a natural status code (such as
// Postgres) synthesize 200/404/500 so callers can treat Code uniformly.
type Result struct {
	Found bool
	Code  int
	Doc   json.RawMessage
	Err   error
}

// Gateway is the storage-agnostic interface the credential service depends
// on. Every method accepts a callback and returns immediately; the callback
// fires once, from its own goroutine, when the round trip completes.
type Gateway interface {
	// ByID fetches the document stored under id.
	ByID(id string, done func(Result))
	// Put writes doc under id, creating or replacing the document.
	Put(id string, doc json.RawMessage, done func(Result))
	// ByView queries the named view for the given key. The result's Doc is
	// a JSON array of the view's matching documents (possibly empty).
	ByView(view, key string, done func(Result))
}
