// Package credentials implements the HTTP API around the key store: create,
// retrieve-by-id, list-by-owner, and soft-delete credential records.
package credentials

import "yar/mac"

// AuthScheme selects which sub-record of a Credential is populated.
type AuthScheme string

const (
	SchemeHMAC  AuthScheme = "hmac"
	SchemeBasic AuthScheme = "basic"
)

// Credential is the persistent record stored in the key store. Exactly one
// of HMAC or Basic is populated, per AuthScheme.
type Credential struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	IsDeleted  bool       `json:"is_deleted"`
	AuthScheme AuthScheme `json:"auth_scheme"`
	Type       string     `json:"type"`
	Rev        string     `json:"_rev,omitempty"`

	HMAC  *HMACCredential  `json:"hmac,omitempty"`
	Basic *BasicCredential `json:"basic,omitempty"`
}

// HMACCredential holds MAC-scheme key material.
type HMACCredential struct {
	MACKeyIdentifier mac.KeyID     `json:"mac_key_identifier"`
	MACKey           mac.Key       `json:"mac_key"`
	MACAlgorithm     mac.Algorithm `json:"mac_algorithm"`
}

// BasicCredential holds basic-scheme key material.
type BasicCredential struct {
	APIKey string `json:"api_key"`
}

// DocType is the internal schema tag used by key-store views to filter
// credential documents from other document types sharing the same database.
const DocType = "creds_v1.0"

// PublicView projects a Credential to the fields exposed over the API,
// stripping internal-only properties (Type and Rev).
type PublicView struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	IsDeleted  bool       `json:"is_deleted"`
	AuthScheme AuthScheme `json:"auth_scheme"`

	HMAC  *HMACCredential  `json:"hmac,omitempty"`
	Basic *BasicCredential `json:"basic,omitempty"`
}

// Public projects c to its external representation.
func (c Credential) Public() PublicView {
	return PublicView{
		ID:         c.ID,
		Owner:      c.Owner,
		IsDeleted:  c.IsDeleted,
		AuthScheme: c.AuthScheme,
		HMAC:       c.HMAC,
		Basic:      c.Basic,
	}
}

// Identifier returns the credential's externally visible id: the
// mac_key_identifier for hmac credentials, the api_key for basic ones.
func (c Credential) Identifier() string {
	switch c.AuthScheme {
	case SchemeHMAC:
		if c.HMAC != nil {
			return c.HMAC.MACKeyIdentifier.String()
		}
	case SchemeBasic:
		if c.Basic != nil {
			return c.Basic.APIKey
		}
	}
	return c.ID
}
