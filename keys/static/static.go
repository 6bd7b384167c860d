// Package static resolves client verification keys from key material
// registered directly on the client: an inline JWK Set or a PEM encoded
// certificate.
package static

import (
	"context"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/keys"
	jose "github.com/go-jose/go-jose/v4"
)

// ErrMalformedKeyMaterial wraps parse failures of registered key material.
var ErrMalformedKeyMaterial = errors.New("static: malformed key material")

// Resolver implements keys.Resolver over Client.JWKS and Client.Certificate.
// It holds no state and is safe for concurrent use.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver { return &Resolver{} }

// ResolveClientKey selects a signing key from the client's inline JWKS and
// falls back to the registered certificate. Only public keys are returned.
func (r *Resolver) ResolveClientKey(ctx context.Context, client *clients.Client, header keys.HeaderInfo) (crypto.PublicKey, error) {
	if client == nil {
		return nil, nil
	}
	if len(client.JWKS) > 0 {
		var set jose.JSONWebKeySet
		if err := json.Unmarshal(client.JWKS, &set); err != nil {
			return nil, fmt.Errorf("%w: jwks for %s: %v", ErrMalformedKeyMaterial, client.ClientID, err)
		}
		if key := selectKey(set, header); key != nil {
			return key, nil
		}
	}
	if strings.TrimSpace(client.Certificate) != "" {
		cert, err := parseCertificate(client.Certificate)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate for %s: %v", ErrMalformedKeyMaterial, client.ClientID, err)
		}
		if header.X509SHA256Thumbprint != "" && header.X509SHA256Thumbprint != thumbprint(cert.Raw) {
			return nil, nil
		}
		return cert.PublicKey, nil
	}
	return nil, nil
}

func selectKey(set jose.JSONWebKeySet, header keys.HeaderInfo) crypto.PublicKey {
	candidates := set.Keys
	if header.KeyID != "" {
		candidates = set.Key(header.KeyID)
	}
	var matched []crypto.PublicKey
	for _, k := range candidates {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if k.Algorithm != "" && k.Algorithm != header.Algorithm {
			continue
		}
		if header.KeyID == "" && header.X509SHA256Thumbprint != "" &&
			base64.RawURLEncoding.EncodeToString(k.CertificateThumbprintSHA256) != header.X509SHA256Thumbprint {
			continue
		}
		pub := k.Public()
		// Symmetric keys have no public half.
		if pub.Key == nil {
			continue
		}
		matched = append(matched, pub.Key)
	}
	// Without a kid the choice must be unambiguous.
	if len(matched) == 0 || (header.KeyID == "" && len(matched) > 1) {
		return nil
	}
	return matched[0]
}

func parseCertificate(s string) (*x509.Certificate, error) {
	s = strings.TrimSpace(s)
	var der []byte
	if block, _ := pem.Decode([]byte(s)); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
		}
		der = block.Bytes
	} else {
		// Bare base64 DER, as stored by some admin tooling.
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.New("neither PEM nor base64 DER")
		}
		der = b
	}
	return x509.ParseCertificate(der)
}

func thumbprint(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

var _ keys.Resolver = (*Resolver)(nil)
