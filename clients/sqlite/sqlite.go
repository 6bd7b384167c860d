// Package sqlite provides a clients.Registry backed by SQLite through the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/clientauth-go/clients"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	realm                           TEXT NOT NULL,
	client_id                       TEXT NOT NULL,
	enabled                         INTEGER NOT NULL DEFAULT 0,
	token_endpoint_auth_signing_alg TEXT NOT NULL DEFAULT '',
	jwks_uri                        TEXT NOT NULL DEFAULT '',
	jwks                            TEXT NOT NULL DEFAULT '',
	certificate                     TEXT NOT NULL DEFAULT '',
	client_authenticator_type       TEXT NOT NULL DEFAULT '',
	attributes                      TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (realm, client_id)
);`

// Registry implements clients.Registry on top of a *sql.DB.
type Registry struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Registry, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY under
	// concurrent Put calls.
	db.SetMaxOpenConns(1)
	r, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an existing database handle and applies the schema.
func New(ctx context.Context, db *sql.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("sqlite: db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// FindClientByClientID returns the client or nil if absent.
func (r *Registry) FindClientByClientID(ctx context.Context, realm, clientID string) (*clients.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT client_id, enabled, token_endpoint_auth_signing_alg, jwks_uri, jwks,
		       certificate, client_authenticator_type, attributes
		FROM clients WHERE realm = ? AND client_id = ?`, realm, clientID)
	var (
		c     clients.Client
		jwks  string
		attrs string
	)
	if err := row.Scan(&c.ClientID, &c.Enabled, &c.TokenEndpointAuthSigningAlg, &c.JWKSURL, &jwks,
		&c.Certificate, &c.AuthenticatorType, &attrs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query client %s/%s: %w", realm, clientID, err)
	}
	if jwks != "" {
		c.JWKS = json.RawMessage(jwks)
	}
	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &c.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes for %s/%s: %w", realm, clientID, err)
		}
	}
	return &c, nil
}

// Put inserts or replaces a client.
func (r *Registry) Put(ctx context.Context, realm string, c *clients.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	attrs := []byte("{}")
	if len(c.Attributes) > 0 {
		b, err := json.Marshal(c.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		attrs = b
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (realm, client_id, enabled, token_endpoint_auth_signing_alg, jwks_uri,
		                     jwks, certificate, client_authenticator_type, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (realm, client_id) DO UPDATE SET
			enabled = excluded.enabled,
			token_endpoint_auth_signing_alg = excluded.token_endpoint_auth_signing_alg,
			jwks_uri = excluded.jwks_uri,
			jwks = excluded.jwks,
			certificate = excluded.certificate,
			client_authenticator_type = excluded.client_authenticator_type,
			attributes = excluded.attributes`,
		realm, c.ClientID, c.Enabled, c.TokenEndpointAuthSigningAlg, c.JWKSURL,
		string(c.JWKS), c.Certificate, c.AuthenticatorType, string(attrs))
	if err != nil {
		return fmt.Errorf("upsert client %s/%s: %w", realm, c.ClientID, err)
	}
	return nil
}

// Delete removes a client. Deleting an absent client is not an error.
func (r *Registry) Delete(ctx context.Context, realm, clientID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE realm = ? AND client_id = ?`, realm, clientID); err != nil {
		return fmt.Errorf("delete client %s/%s: %w", realm, clientID, err)
	}
	return nil
}

// Close closes the underlying database.
func (r *Registry) Close() error { return r.db.Close() }

var _ clients.Registry = (*Registry)(nil)
