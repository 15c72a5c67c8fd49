package authproxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"yar/credentials"
)

// Client is an HTTP client for the credential service, used by the auth
// proxy's CREDS pipeline stage. It never retries a failed call; the caller
// decides whether the failure becomes CREDS_NOT_FOUND or a 500.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// NewClient builds a Client against the credential service listening at
// hostPort (e.g. "127.0.0.1:8070").
func NewClient(hostPort string, timeout time.Duration) (*Client, error) {
	if hostPort == "" {
		return nil, fmt.Errorf("authproxy: credential service address required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: &url.URL{Scheme: "http", Host: hostPort},
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Lookup fetches the credential for keyID, honoring r's context so a
// client disconnect cancels the outstanding fetch. It satisfies
// CredentialLookup.
func (c *Client) Lookup(r *http.Request, keyID string) (*credentials.Credential, error) {
	u := *c.baseURL
	u.Path = "/v1.0/creds/" + keyID

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authproxy: credential service returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var view credentials.PublicView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}
	cred := &credentials.Credential{
		ID:         view.ID,
		Owner:      view.Owner,
		IsDeleted:  view.IsDeleted,
		AuthScheme: view.AuthScheme,
		HMAC:       view.HMAC,
		Basic:      view.Basic,
	}
	return cred, nil
}
