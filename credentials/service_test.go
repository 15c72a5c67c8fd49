package credentials

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"yar/keystore"
)

// memGateway is an in-memory keystore.Gateway fake for exercising the
// credential service's handlers without a real document database.
type memGateway struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func newMemGateway() *memGateway {
	return &memGateway{docs: make(map[string]json.RawMessage)}
}

func (g *memGateway) ByID(id string, done func(keystore.Result)) {
	g.mu.Lock()
	doc, ok := g.docs[id]
	g.mu.Unlock()
	if !ok {
		done(keystore.Result{Found: false, Code: http.StatusNotFound})
		return
	}
	done(keystore.Result{Found: true, Code: http.StatusOK, Doc: doc})
}

func (g *memGateway) Put(id string, doc json.RawMessage, done func(keystore.Result)) {
	g.mu.Lock()
	g.docs[id] = doc
	g.mu.Unlock()
	done(keystore.Result{Found: true, Code: http.StatusOK, Doc: doc})
}

func (g *memGateway) ByView(view, key string, done func(keystore.Result)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var matches []json.RawMessage
	for _, doc := range g.docs {
		var cred Credential
		if err := json.Unmarshal(doc, &cred); err != nil {
			continue
		}
		switch view {
		case viewAll:
			matches = append(matches, doc)
		case viewByPrincipal:
			if cred.Owner == key {
				matches = append(matches, doc)
			}
		}
	}
	if matches == nil {
		matches = []json.RawMessage{}
	}
	arr, _ := json.Marshal(matches)
	done(keystore.Result{Found: true, Code: http.StatusOK, Doc: arr})
}

func newTestService(t *testing.T) (*Service, *memGateway) {
	t.Helper()
	gw := newMemGateway()
	svc, err := NewService(gw)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, gw
}

func TestCreateThenRetrieveByID(t *testing.T) {
	svc, _ := newTestService(t)
	router := svc.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1.0/creds", strings.NewReader(`{"owner":"dave@example.com"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	location := rr.Header().Get("Location")
	if location == "" {
		t.Fatal("expected Location header")
	}

	getReq := httptest.NewRequest(http.MethodGet, location, nil)
	getRR := httptest.NewRecorder()
	router.ServeHTTP(getRR, getReq)
	if getRR.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRR.Code, getRR.Body.String())
	}

	var view PublicView
	if err := json.Unmarshal(getRR.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if view.Owner != "dave@example.com" {
		t.Fatalf("unexpected owner %q", view.Owner)
	}
	if view.IsDeleted {
		t.Fatal("expected is_deleted=false")
	}
}

func TestListByOwner(t *testing.T) {
	svc, _ := newTestService(t)
	router := svc.Router()

	create := func(owner string) {
		req := httptest.NewRequest(http.MethodPost, "/v1.0/creds", strings.NewReader(`{"owner":"`+owner+`"}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create failed: %d", rr.Code)
		}
	}
	for i := 0; i < 10; i++ {
		create("A")
	}
	for i := 0; i < 3; i++ {
		create("B")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1.0/creds?owner=A", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Creds []PublicView `json:"creds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Creds) != 10 {
		t.Fatalf("expected 10 credentials, got %d", len(payload.Creds))
	}
	for _, c := range payload.Creds {
		if c.Owner != "A" {
			t.Fatalf("unexpected owner %q in filtered list", c.Owner)
		}
	}
}

func TestSoftDeleteHidesByDefault(t *testing.T) {
	svc, _ := newTestService(t)
	router := svc.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1.0/creds", strings.NewReader(`{"owner":"dave@example.com"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	location := rr.Header().Get("Location")

	delReq := httptest.NewRequest(http.MethodDelete, location, nil)
	delRR := httptest.NewRecorder()
	router.ServeHTTP(delRR, delReq)
	if delRR.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", delRR.Code)
	}

	// Second delete is idempotent.
	delRR2 := httptest.NewRecorder()
	router.ServeHTTP(delRR2, httptest.NewRequest(http.MethodDelete, location, nil))
	if delRR2.Code != http.StatusOK {
		t.Fatalf("expected idempotent 200, got %d", delRR2.Code)
	}

	getRR := httptest.NewRecorder()
	router.ServeHTTP(getRR, httptest.NewRequest(http.MethodGet, location, nil))
	if getRR.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted record, got %d", getRR.Code)
	}

	getDeletedRR := httptest.NewRecorder()
	router.ServeHTTP(getDeletedRR, httptest.NewRequest(http.MethodGet, location+"?deleted=true", nil))
	if getDeletedRR.Code != http.StatusOK {
		t.Fatalf("expected 200 with deleted=true, got %d", getDeletedRR.Code)
	}
	var view PublicView
	if err := json.Unmarshal(getDeletedRR.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !view.IsDeleted {
		t.Fatal("expected is_deleted=true")
	}
}

func TestDisallowedMethodsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	router := svc.Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/v1.0/creds", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for PUT collection, got %d", rr.Code)
	}

	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/v1.0/creds/some-id", nil))
	if rr2.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST member, got %d", rr2.Code)
	}
}
