// Package domain holds the identity produced by proxy header-trust authentication.
package domain

import (
	"strings"
	"time"
)

// AuthTypeOBO tags identities minted from an on-behalf-of token forwarded by the proxy.
const AuthTypeOBO = "obo"

// Identity is the outcome of a successful header-trust decision. It is built fresh for
// every request and never persisted here; the host session layer owns any storage.
type Identity struct {
	Identifier  string   `json:"identifier"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email"`
	Provider    string   `json:"provider"`
	Metadata    Metadata `json:"metadata"`
}

// Metadata is the provenance bag attached to an Identity.
type Metadata struct {
	AuthType string `json:"auth_type"`
	// OBOToken is the forwarded bearer token. Its signature is never checked here.
	OBOToken       string            `json:"obo_token"`
	OBOTokenExpiry time.Time         `json:"obo_token_expiry"`
	Headers        map[string]string `json:"headers"`
}

// PublicIdentity is the subset of an Identity safe to return to the end user.
type PublicIdentity struct {
	Identifier     string    `json:"identifier"`
	DisplayName    string    `json:"display_name"`
	Email          string    `json:"email"`
	Provider       string    `json:"provider"`
	OBOTokenExpiry time.Time `json:"obo_token_expiry"`
}

// NewOBOIdentity builds an Identity for email with the given forwarded token, its expiry and
// the flattened request headers. expiry is normalized to UTC.
func NewOBOIdentity(email, token string, expiry time.Time, headers map[string]string) *Identity {
	if headers == nil {
		headers = map[string]string{}
	}
	return &Identity{
		Identifier:  email,
		DisplayName: DisplayName(email),
		Email:       email,
		Provider:    AuthTypeOBO,
		Metadata: Metadata{
			AuthType:       AuthTypeOBO,
			OBOToken:       token,
			OBOTokenExpiry: expiry.UTC(),
			Headers:        headers,
		},
	}
}

// DisplayName returns the part of identifier before the first "@", or identifier itself
// when it has no "@".
func DisplayName(identifier string) string {
	local, _, _ := strings.Cut(identifier, "@")
	return local
}

// Public returns the end-user view of the identity, without the token or raw headers.
func (i *Identity) Public() PublicIdentity {
	return PublicIdentity{
		Identifier:     i.Identifier,
		DisplayName:    i.DisplayName,
		Email:          i.Email,
		Provider:       i.Provider,
		OBOTokenExpiry: i.Metadata.OBOTokenExpiry,
	}
}
