package assertion

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func mustRSA(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa: %v", err)
	}
	return k
}

func segment(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func TestParse_ReadsHeaderAndClaims(t *testing.T) {
	key := mustRSA(t)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": "acme",
		"sub": "acme",
		"aud": "https://idp.example.com/realms/r",
		"exp": 1030,
		"iat": 1000,
		"nbf": 999,
		"jti": "abc123",
	})
	tok.Header["kid"] = "k1"
	tok.Header["x5t#S256"] = "thumb"
	raw, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Header.Algorithm != "RS256" || got.Header.KeyID != "k1" || got.Header.Type != "JWT" || got.Header.X509SHA256Thumbprint != "thumb" {
		t.Fatalf("unexpected header: %+v", got.Header)
	}
	if got.Issuer != "acme" || got.Subject != "acme" || got.ID != "abc123" {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if len(got.Audience) != 1 || got.Audience[0] != "https://idp.example.com/realms/r" {
		t.Fatalf("unexpected audience: %v", got.Audience)
	}
	if got.ExpiresAt != 1030 || got.IssuedAt != 1000 || got.NotBefore != 999 {
		t.Fatalf("unexpected times: exp=%d iat=%d nbf=%d", got.ExpiresAt, got.IssuedAt, got.NotBefore)
	}
	if got.Raw != raw {
		t.Fatalf("raw not retained")
	}
}

func TestParse_AudienceArrayAndAbsentTimes(t *testing.T) {
	raw := segment(`{"alg":"ES256"}`) + "." + segment(`{"sub":"c","aud":["a","b"]}`) + ".sig"
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Audience) != 2 || got.Audience[1] != "b" {
		t.Fatalf("unexpected audience: %v", got.Audience)
	}
	if got.ExpiresAt != 0 || got.IssuedAt != 0 || got.NotBefore != 0 {
		t.Fatalf("absent times must be zero: %+v", got)
	}
}

func TestParse_MissingOrNonStringAlgIsEmpty(t *testing.T) {
	for _, hdr := range []string{`{"typ":"JWT"}`, `{"alg":7}`} {
		got, err := Parse(segment(hdr) + "." + segment(`{"sub":"c"}`) + ".sig")
		if err != nil {
			t.Fatalf("Parse(%s): %v", hdr, err)
		}
		if got.Header.Algorithm != "" {
			t.Fatalf("Parse(%s): algorithm = %q, want empty", hdr, got.Header.Algorithm)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"two segments":   segment(`{"alg":"RS256"}`) + "." + segment(`{}`),
		"four segments":  "a.b.c.d",
		"bad base64":     "!!!." + segment(`{}`) + ".sig",
		"header not obj": segment(`[1]`) + "." + segment(`{}`) + ".sig",
		"payload junk":   segment(`{"alg":"RS256"}`) + "." + segment(`nope`) + ".sig",
		"bad exp":        segment(`{"alg":"RS256"}`) + "." + segment(`{"exp":"soon"}`) + ".sig",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(raw); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	key := mustRSA(t)
	other := mustRSA(t)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "c"}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tok, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := Verify(tok, &key.PublicKey); err != nil {
		t.Fatalf("Verify with signing key: %v", err)
	}
	if err := Verify(tok, &other.PublicKey); !errors.Is(err, ErrSignature) {
		t.Fatalf("Verify with other key: expected ErrSignature, got %v", err)
	}

	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec: %v", err)
	}
	if err := Verify(tok, &ec.PublicKey); !errors.Is(err, ErrSignature) {
		t.Fatalf("Verify with wrong key type: expected ErrSignature, got %v", err)
	}
}

func TestVerify_IgnoresExpiredClaims(t *testing.T) {
	key := mustRSA(t)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "c", "exp": 1}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tok, _ := Parse(raw)
	if err := Verify(tok, &key.PublicKey); err != nil {
		t.Fatalf("claims must not be validated by Verify: %v", err)
	}
}

func TestVerify_RejectsAlgorithmNotInHeader(t *testing.T) {
	key := mustRSA(t)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "c"}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tok, _ := Parse(raw)
	tok.Header.Algorithm = "RS512"
	if err := Verify(tok, &key.PublicKey); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
	tok.Header.Algorithm = ""
	if err := Verify(tok, &key.PublicKey); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature for empty alg, got %v", err)
	}
}

func TestVerify_RejectsNone(t *testing.T) {
	raw := segment(`{"alg":"none"}`) + "." + segment(`{"sub":"c"}`) + "."
	tok, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Verify(tok, nil); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
}

func TestHasAnyAudience(t *testing.T) {
	tok := &Token{Audience: []string{"x", "b"}}
	if !tok.HasAnyAudience([]string{"a", "b"}) {
		t.Fatal("expected intersection")
	}
	if tok.HasAnyAudience([]string{"a"}) {
		t.Fatal("unexpected intersection")
	}
	if (&Token{}).HasAnyAudience([]string{"a"}) {
		t.Fatal("empty audience must not match")
	}
}

func TestIsActive(t *testing.T) {
	cases := []struct {
		name string
		tok  Token
		now  int64
		want bool
	}{
		{"no window", Token{}, 100, true},
		{"at exp", Token{ExpiresAt: 100}, 100, true},
		{"after exp", Token{ExpiresAt: 100}, 101, false},
		{"before nbf", Token{NotBefore: 100}, 99, false},
		{"at nbf", Token{NotBefore: 100}, 100, true},
	}
	for _, tc := range cases {
		if got := tc.tok.IsActive(tc.now); got != tc.want {
			t.Errorf("%s: IsActive(%d) = %v, want %v", tc.name, tc.now, got, tc.want)
		}
	}
}
