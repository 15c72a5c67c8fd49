package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"yar/keystore"
	"yar/mac"
)

const (
	viewByPrincipal = "by_principal"
	// viewAll lists every non-schema-tagged-out document; grounded on
	// original_source/yar/key_store/design_docs/creds.py's "all" view,
	// which the distilled spec's two-view inventory omitted but the
	// owner-less list endpoint still requires.
	viewAll = "all"
)

// Service implements the credential service's HTTP API: POST/GET
// /v1.0/creds, GET/DELETE /v1.0/creds/{id}.
type Service struct {
	gateway   keystore.Gateway
	schemas   *schemaSet
	nowFn     func() time.Time
	algorithm mac.Algorithm
}

// NewService constructs a Service backed by gateway.
func NewService(gateway keystore.Gateway) (*Service, error) {
	if gateway == nil {
		return nil, errors.New("credentials: gateway required")
	}
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	return &Service{
		gateway:   gateway,
		schemas:   schemas,
		nowFn:     time.Now,
		algorithm: mac.DefaultAlgorithm,
	}, nil
}

// Router mounts the credential collection and member resources. Callers
// that want the administrative guard on mutating verbs should wrap the
// returned handler, or pass guard to RouterWithGuard.
func (s *Service) Router() chi.Router {
	return s.RouterWithGuard(nil)
}

// RouterWithGuard mounts the API surface, applying guard (if non-nil) to
// every mutating verb (POST, DELETE) while leaving GET unguarded.
func (s *Service) RouterWithGuard(guard func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	guarded := func(h http.HandlerFunc) http.Handler {
		if guard == nil {
			return h
		}
		return guard(h)
	}

	r.Method(http.MethodPost, "/v1.0/creds", guarded(s.handleCreate))
	r.Method(http.MethodGet, "/v1.0/creds", http.HandlerFunc(s.handleList))
	r.Method(http.MethodDelete, "/v1.0/creds", guarded(s.handleBulkDelete))
	r.Method(http.MethodPut, "/v1.0/creds", http.HandlerFunc(methodNotAllowed))

	r.Method(http.MethodGet, "/v1.0/creds/{id}", http.HandlerFunc(s.handleGet))
	r.Method(http.MethodDelete, "/v1.0/creds/{id}", guarded(s.handleDelete))
	r.Method(http.MethodPost, "/v1.0/creds/{id}", http.HandlerFunc(methodNotAllowed))
	r.Method(http.MethodPut, "/v1.0/creds/{id}", http.HandlerFunc(methodNotAllowed))

	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
}

// --- POST /v1.0/creds ---

type createRequest struct {
	Owner      string     `json:"owner"`
	AuthScheme AuthScheme `json:"auth_scheme"`
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "content-type must be application/json; charset=utf-8", nil)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := validate(s.schemas.createRequest, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var req createRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload", nil)
		return
	}
	owner, err := normalizeOwner(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	scheme := req.AuthScheme
	if scheme == "" {
		scheme = SchemeHMAC
	}
	if scheme != SchemeHMAC && scheme != SchemeBasic {
		writeError(w, http.StatusBadRequest, "auth_scheme must be hmac or basic", nil)
		return
	}

	cred, err := s.newCredential(owner, scheme)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate credential", nil)
		return
	}

	doc, err := json.Marshal(cred)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to marshal credential", nil)
		return
	}

	result := s.put(r, cred.ID, doc)
	if result.Err != nil || result.Code >= 300 {
		writeError(w, http.StatusInternalServerError, "credential store write failed", nil)
		return
	}

	view := cred.Public()
	respBody, err := json.Marshal(view)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to marshal response", nil)
		return
	}
	if err := validate(s.schemas.createResponse, respBody); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.Header().Set("Location", "/v1.0/creds/"+cred.ID)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (s *Service) newCredential(owner string, scheme AuthScheme) (Credential, error) {
	id, err := mac.GenerateKeyID()
	if err != nil {
		return Credential{}, err
	}
	cred := Credential{
		ID:         id.String(),
		Owner:      owner,
		IsDeleted:  false,
		AuthScheme: scheme,
		Type:       DocType,
	}
	switch scheme {
	case SchemeHMAC:
		key, err := mac.GenerateKey()
		if err != nil {
			return Credential{}, err
		}
		cred.HMAC = &HMACCredential{
			MACKeyIdentifier: id,
			MACKey:           key,
			MACAlgorithm:     s.algorithm,
		}
	case SchemeBasic:
		key, err := mac.GenerateKey()
		if err != nil {
			return Credential{}, err
		}
		cred.Basic = &BasicCredential{APIKey: key.String()}
	}
	return cred, nil
}

// --- GET /v1.0/creds/{id} ---

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	includeDeleted := r.URL.Query().Get("deleted") == "true"

	cred, found, err := s.fetchByID(r, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential store read failed", nil)
		return
	}
	if !found || (cred.IsDeleted && !includeDeleted) {
		writeError(w, http.StatusNotFound, "credential not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, cred.Public())
}

// --- GET /v1.0/creds?owner={owner} ---

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))

	var (
		creds []Credential
		err   error
	)
	if owner != "" {
		creds, err = s.fetchByOwner(r, owner)
	} else {
		creds, err = s.fetchAll(r)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential store read failed", nil)
		return
	}

	views := make([]PublicView, 0, len(creds))
	for _, c := range creds {
		if c.IsDeleted {
			continue
		}
		views = append(views, c.Public())
	}
	writeJSON(w, http.StatusOK, map[string]any{"creds": views})
}

// --- DELETE /v1.0/creds/{id} ---

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.softDelete(r, id); err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "credential not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "credential store write failed", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- DELETE /v1.0/creds?owner={owner} (supplemented bulk soft-delete) ---

func (s *Service) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required", nil)
		return
	}
	creds, err := s.fetchByOwner(r, owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential store read failed", nil)
		return
	}
	for _, c := range creds {
		if c.IsDeleted {
			continue
		}
		if err := s.softDelete(r, c.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "credential store write failed", nil)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

var errNotFound = errors.New("credentials: not found")

func (s *Service) softDelete(r *http.Request, id string) error {
	cred, found, err := s.fetchByID(r, id)
	if err != nil {
		return err
	}
	if !found {
		return errNotFound
	}
	if cred.IsDeleted {
		return nil
	}
	cred.IsDeleted = true
	doc, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	result := s.put(r, cred.ID, doc)
	if result.Err != nil || result.Code >= 300 {
		return fmt.Errorf("credentials: store write failed: %v", result.Err)
	}
	return nil
}

// --- gateway plumbing ---

func (s *Service) fetchByID(r *http.Request, id string) (Credential, bool, error) {
	result := s.get(r, id)
	if result.Err != nil {
		return Credential{}, false, result.Err
	}
	if !result.Found {
		return Credential{}, false, nil
	}
	var cred Credential
	if err := json.Unmarshal(result.Doc, &cred); err != nil {
		return Credential{}, false, err
	}
	return cred, true, nil
}

func (s *Service) fetchByOwner(r *http.Request, owner string) ([]Credential, error) {
	result := s.view(r, viewByPrincipal, owner)
	if result.Err != nil {
		return nil, result.Err
	}
	return decodeCredentialList(result.Doc)
}

func (s *Service) fetchAll(r *http.Request) ([]Credential, error) {
	result := s.view(r, viewAll, "")
	if result.Err != nil {
		return nil, result.Err
	}
	return decodeCredentialList(result.Doc)
}

func decodeCredentialList(doc []byte) ([]Credential, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	var creds []Credential
	if err := json.Unmarshal(doc, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *Service) get(r *http.Request, id string) keystore.Result {
	ch := make(chan keystore.Result, 1)
	s.gateway.ByID(id, func(res keystore.Result) { ch <- res })
	select {
	case res := <-ch:
		return res
	case <-r.Context().Done():
		return keystore.Result{Err: r.Context().Err()}
	}
}

func (s *Service) put(r *http.Request, id string, doc json.RawMessage) keystore.Result {
	ch := make(chan keystore.Result, 1)
	s.gateway.Put(id, doc, func(res keystore.Result) { ch <- res })
	select {
	case res := <-ch:
		return res
	case <-r.Context().Done():
		return keystore.Result{Err: r.Context().Err()}
	}
}

func (s *Service) view(r *http.Request, view, key string) keystore.Result {
	ch := make(chan keystore.Result, 1)
	s.gateway.ByView(view, key, func(res keystore.Result) { ch <- res })
	select {
	case res := <-ch:
		return res
	case <-r.Context().Done():
		return keystore.Result{Err: r.Context().Err()}
	}
}

// --- HTTP helpers ---

func hasJSONContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	params, ok := strings.CutPrefix(ct, "application/json;")
	if !ok {
		return false
	}
	charset := strings.TrimSpace(params)
	return charset == "charset=utf-8" || charset == "charset=utf8"
}

const maxCredentialBodyBytes = 1 << 20 // 1 MiB

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}
	if !json.Valid(body) {
		return nil, errors.New("invalid JSON payload")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to marshal response", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	payload := map[string]any{
		"error": map[string]any{
			"message": message,
			"details": details,
		},
	}
	body, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
