package authproxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"yar/credentials"
	"yar/mac"
)

func TestHandlerForwardsAuthenticatedRequest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	key, _ := mac.GenerateKey()
	keyID, _ := mac.GenerateKeyID()
	cred := &credentials.Credential{
		ID:         keyID.String(),
		Owner:      "dave@example.com",
		AuthScheme: credentials.SchemeHMAC,
		HMAC: &credentials.HMACCredential{
			MACKeyIdentifier: keyID,
			MACKey:           key,
			MACAlgorithm:     mac.DefaultAlgorithm,
		},
	}
	lookup := func(r *http.Request, id string) (*credentials.Credential, error) {
		return cred, nil
	}
	pipeline := newFixedTimePipeline(t, now, lookup)

	var capturedPrincipal, capturedRequestID string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPrincipal = r.Header.Get(HeaderPrincipal)
		capturedRequestID = r.Header.Get(HeaderRequestID)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	target, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatalf("parse backend url: %v", err)
	}
	handler := NewHandler(pipeline, target)

	ts := mac.GenerateTimestamp(now)
	n, _ := mac.GenerateNonce()
	header := buildAuthHeader(t, key, keyID, ts, n, "GET", "/accounts", "127.0.0.1", 8080, "", nil)

	req := httptest.NewRequest("GET", "http://127.0.0.1:8080/accounts", nil)
	req.Header.Set("Authorization", header)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if capturedPrincipal != "dave@example.com" {
		t.Fatalf("unexpected forwarded principal %q", capturedPrincipal)
	}
	if capturedRequestID == "" {
		t.Fatal("expected a generated request id to be forwarded")
	}
}

func TestHandlerRejectsUnauthenticatedRequestWithoutForwarding(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pipeline := newFixedTimePipeline(t, now, func(r *http.Request, id string) (*credentials.Credential, error) {
		return nil, nil
	})

	called := false
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	target, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatalf("parse backend url: %v", err)
	}
	handler := NewHandler(pipeline, target)

	req := httptest.NewRequest("GET", "http://127.0.0.1:8080/accounts", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if res.Header().Get(HeaderFailureDetail) != DetailNoAuthHeader {
		t.Fatalf("expected NO_AUTH_HEADER detail, got %q", res.Header().Get(HeaderFailureDetail))
	}
	if called {
		t.Fatal("expected backend to never be contacted on auth failure")
	}
}
