// Package authproxy implements the request pipeline: parse the
// Authorization header, check freshness, consult the nonce checker, fetch
// credentials, recompute the MAC, and forward to the application service.
package authproxy

import (
	"net/http"
	"strings"
	"time"

	"yar/credentials"
	"yar/mac"
	"yar/nonce"
)

// Detail codes carried on X-Yar-Auth-Failure-Detail when a request is
// rejected. Complete per the pipeline's seven failure modes.
const (
	DetailNoAuthHeader      = "NO_AUTH_HEADER"
	DetailInvalidAuthHeader = "INVALID_AUTH_HEADER"
	DetailTSOld             = "TS_OLD"
	DetailTSInFuture        = "TS_IN_FUTURE"
	DetailNonceReused       = "NONCE_REUSED"
	DetailCredsNotFound     = "CREDS_NOT_FOUND"
	DetailMACsDoNotMatch    = "MACS_DO_NOT_MATCH"

	// HeaderFailureDetail carries the stable rejection code on 401 responses.
	HeaderFailureDetail = "X-Yar-Auth-Failure-Detail"
	// HeaderPrincipal carries the authenticated owner on forwarded requests.
	HeaderPrincipal = "X-Yar-Principal"
	// HeaderRequestID carries a per-request identifier, generated fresh for
	// every request the proxy forwards. It is set only on the forwarded
	// request; the proxy does not log it.
	HeaderRequestID = "X-Yar-Request-Id"
)

// rejection terminates the pipeline with a stable detail code.
type rejection struct {
	code string
}

// CredentialLookup resolves a key identifier to its stored credential.
// Implementations consult the credential service (directly, or over HTTP
// via Client in client.go). A nil, nil return means "not found".
type CredentialLookup func(r *http.Request, keyID string) (*credentials.Credential, error)

// Config carries the immutable, injected configuration for a Pipeline: the
// freshness window and the host/port fallbacks used when a Host header is
// absent or unparsable. There is no process-wide mutable configuration
// beyond this value and the nonce checker's internal map.
type Config struct {
	MaxAge         time.Duration
	HostIfNotFound string
	PortIfNotFound int
}

// Pipeline drives a single request through PARSE -> FRESHNESS -> NONCE ->
// CREDS -> VERIFY, terminating in either a successful requestState (ready
// to forward) or a rejection.
type Pipeline struct {
	cfg     Config
	checker *nonce.Checker
	lookup  CredentialLookup
	nowFn   func() time.Time
}

// NewPipeline builds a Pipeline. checker and lookup must be non-nil.
func NewPipeline(cfg Config, checker *nonce.Checker, lookup CredentialLookup) *Pipeline {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Second
	}
	return &Pipeline{cfg: cfg, checker: checker, lookup: lookup, nowFn: time.Now}
}

// requestState is the in-flight, per-request state threaded through each
// pipeline stage. Stages run in the fixed order of the stages slice; each
// takes the state and either advances or returns a terminal rejection — a
// linear pipeline replacing cyclic callback wiring.
type requestState struct {
	r      *http.Request
	body   []byte
	header mac.AuthHeaderValue
	owner  string
	cred   *credentials.Credential
}

// stageFunc runs one pipeline step. ok=true (with a zero rejection) advances
// to the next stage; ok=false means the returned rejection is terminal.
type stageFunc func(p *Pipeline, s *requestState) (ok bool, rej rejection)

var stages = []stageFunc{
	stageParse,
	stageFreshness,
	stageNonce,
	stageCreds,
	stageVerify,
}

// Authenticate runs the full pipeline for r, returning the authenticated
// owner on success or a rejection detail code on failure.
func (p *Pipeline) Authenticate(r *http.Request, body []byte) (owner string, detail string, ok bool) {
	state := &requestState{r: r, body: body}
	for _, stage := range stages {
		advance, rej := stage(p, state)
		if !advance {
			return "", rej.code, false
		}
	}
	return state.owner, "", true
}

func stageParse(p *Pipeline, s *requestState) (bool, rejection) {
	raw := s.r.Header.Get("Authorization")
	if strings.TrimSpace(raw) == "" {
		return false, rejection{DetailNoAuthHeader}
	}
	header, parsed := mac.ParseAuthHeaderValue(raw)
	if !parsed {
		return false, rejection{DetailInvalidAuthHeader}
	}
	s.header = header
	return true, rejection{}
}

func stageFreshness(p *Pipeline, s *requestState) (bool, rejection) {
	tsSeconds, err := s.header.TS.Int64()
	if err != nil {
		return false, rejection{DetailInvalidAuthHeader}
	}
	now := p.nowFn().Unix()
	diff := now - tsSeconds
	maxAge := int64(p.cfg.MaxAge / time.Second)
	switch {
	case diff > maxAge:
		return false, rejection{DetailTSOld}
	case -diff > maxAge:
		return false, rejection{DetailTSInFuture}
	}
	return true, rejection{}
}

func stageNonce(p *Pipeline, s *requestState) (bool, rejection) {
	if !p.checker.Check(s.header.KeyID.String(), s.header.TS.String(), s.header.Nonce.String()) {
		return false, rejection{DetailNonceReused}
	}
	return true, rejection{}
}

func stageCreds(p *Pipeline, s *requestState) (bool, rejection) {
	cred, err := p.lookup(s.r, s.header.KeyID.String())
	if err != nil || cred == nil || cred.IsDeleted {
		return false, rejection{DetailCredsNotFound}
	}
	s.cred = cred
	return true, rejection{}
}

func stageVerify(p *Pipeline, s *requestState) (bool, rejection) {
	if s.cred.AuthScheme != credentials.SchemeHMAC || s.cred.HMAC == nil {
		return false, rejection{DetailCredsNotFound}
	}
	host, port := HostPort(s.r, p.cfg.HostIfNotFound, p.cfg.PortIfNotFound)
	ext := mac.GenerateExtBytes(s.r.Header.Get("Content-Type"), s.body)
	normalized := mac.NormalizedRequestString(
		s.header.TS, s.header.Nonce, s.r.Method, s.r.URL.RequestURI(), host, port, ext,
	)
	ok, err := s.header.MAC.Verify(s.cred.HMAC.MACKey, s.cred.HMAC.MACAlgorithm, normalized)
	if err != nil || !ok {
		return false, rejection{DetailMACsDoNotMatch}
	}
	s.owner = s.cred.Owner
	return true, rejection{}
}
