// Package assertion decodes compact JWS client assertions and verifies their
// signatures with github.com/golang-jwt/jwt/v5.
//
// Decoding is split from verification because the verification key can only
// be chosen after the subject has been read from the unverified payload.
package assertion

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed indicates the assertion is not a structurally valid compact JWS.
	ErrMalformed = errors.New("assertion: malformed token")
	// ErrSignature indicates signature verification failed.
	ErrSignature = errors.New("assertion: signature verification failed")
)

// Header holds the JOSE header fields used during client authentication.
type Header struct {
	// Algorithm is empty when the header has no string "alg".
	Algorithm            string
	KeyID                string
	Type                 string
	X509SHA256Thumbprint string
}

// Token is the decoded, not yet verified, client assertion. Time fields are
// epoch seconds; zero means the claim is absent.
type Token struct {
	Raw       string
	Header    Header
	Issuer    string
	Subject   string
	Audience  []string
	ExpiresAt int64
	IssuedAt  int64
	NotBefore int64
	ID        string
}

type rawHeader struct {
	Alg     any    `json:"alg"`
	Kid     string `json:"kid"`
	Typ     string `json:"typ"`
	X5tS256 string `json:"x5t#S256"`
}

// Parse decodes raw without verifying its signature.
func Parse(raw string) (*Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}
	p := jwt.NewParser()

	hb, err := p.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	var h rawHeader
	if err := json.Unmarshal(hb, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}

	pb, err := p.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	var c jwt.RegisteredClaims
	if err := json.Unmarshal(pb, &c); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	alg, _ := h.Alg.(string)
	return &Token{
		Raw: raw,
		Header: Header{
			Algorithm:            alg,
			KeyID:                h.Kid,
			Type:                 h.Typ,
			X509SHA256Thumbprint: h.X5tS256,
		},
		Issuer:    c.Issuer,
		Subject:   c.Subject,
		Audience:  append([]string(nil), c.Audience...),
		ExpiresAt: unix(c.ExpiresAt),
		IssuedAt:  unix(c.IssuedAt),
		NotBefore: unix(c.NotBefore),
		ID:        c.ID,
	}, nil
}

// Verify checks the signature of t with key, accepting only the algorithm
// named in t's header. Claims are not validated here.
func Verify(t *Token, key crypto.PublicKey) error {
	if t.Header.Algorithm == "" {
		return fmt.Errorf("%w: missing alg", ErrSignature)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{t.Header.Algorithm}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.Parse(t.Raw, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}
	return nil
}

// HasAnyAudience reports whether t's audience intersects expected.
func (t *Token) HasAnyAudience(expected []string) bool {
	for _, aud := range t.Audience {
		if slices.Contains(expected, aud) {
			return true
		}
	}
	return false
}

// IsActive reports whether now (epoch seconds) lies within the token's
// validity window: not after exp and not before nbf, when those are set.
func (t *Token) IsActive(now int64) bool {
	if t.ExpiresAt != 0 && now > t.ExpiresAt {
		return false
	}
	if t.NotBefore != 0 && now < t.NotBefore {
		return false
	}
	return true
}

func unix(d *jwt.NumericDate) int64 {
	if d == nil {
		return 0
	}
	return d.Unix()
}
