// Package clients defines the registered OAuth/OIDC client model consumed by
// client authenticators and the Registry contract used to look clients up.
//
// Registries are owned by the surrounding identity provider; authenticators
// only read from them. Implementations live in subpackages (memory, sqlite,
// file) and are checked by the clientstest conformance suite.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
)

// Client is a registered OAuth/OIDC client as seen by client authenticators.
type Client struct {
	// ClientID is the identifier the client authenticates as.
	ClientID string `json:"client_id"`
	// Enabled reports whether the client may authenticate at all.
	Enabled bool `json:"enabled"`
	// TokenEndpointAuthSigningAlg is the JWS algorithm the client must use for
	// client assertions. Empty means any algorithm its key supports.
	TokenEndpointAuthSigningAlg string `json:"token_endpoint_auth_signing_alg,omitempty"`
	// JWKSURL is the client's published JWK Set document, if any.
	JWKSURL string `json:"jwks_uri,omitempty"`
	// JWKS is an inline JWK Set registered with the client, if any.
	JWKS json.RawMessage `json:"jwks,omitempty"`
	// Certificate is a PEM encoded X.509 certificate registered for the client.
	Certificate string `json:"certificate,omitempty"`
	// AuthenticatorType is the provider ID configured for the client.
	AuthenticatorType string `json:"client_authenticator_type,omitempty"`
	// Attributes holds free-form client configuration.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	dup := *c
	if c.JWKS != nil {
		dup.JWKS = append(json.RawMessage(nil), c.JWKS...)
	}
	if c.Attributes != nil {
		dup.Attributes = maps.Clone(c.Attributes)
	}
	return &dup
}

// Validate reports whether c carries the fields every registry requires.
func (c *Client) Validate() error {
	if c == nil {
		return ErrInvalidClient
	}
	if c.ClientID == "" {
		return errors.Join(ErrInvalidClient, errors.New("client_id required"))
	}
	if len(c.JWKS) > 0 && !json.Valid(c.JWKS) {
		return errors.Join(ErrInvalidClient, errors.New("jwks is not valid JSON"))
	}
	return nil
}

// Registry resolves clients within a realm.
//
// FindClientByClientID returns (nil, nil) when no such client exists and an
// error only for backend failures. Returned clients are copies and may be
// mutated by the caller. Implementations must be safe for concurrent use.
type Registry interface {
	FindClientByClientID(ctx context.Context, realm, clientID string) (*Client, error)
}

// RegistryFunc adapts a function to the Registry interface.
type RegistryFunc func(ctx context.Context, realm, clientID string) (*Client, error)

// FindClientByClientID calls f.
func (f RegistryFunc) FindClientByClientID(ctx context.Context, realm, clientID string) (*Client, error) {
	return f(ctx, realm, clientID)
}

// ErrInvalidClient is returned when storing a client that fails validation.
var ErrInvalidClient = errors.New("clients: invalid client")
