package jwtclient

import (
	"log/slog"
	"time"

	"github.com/ggoodman/clientauth-go"
	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/internal/logctx"
	"github.com/ggoodman/clientauth-go/keys"
	"github.com/ggoodman/clientauth-go/singleuse"
	"github.com/invopop/jsonschema"
)

const (
	// ProviderID identifies this provider in a clientauth.Registry.
	ProviderID = "client-jwt"
	// AssertionTypeJWT is the required client_assertion_type value.
	AssertionTypeJWT = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	// MethodPrivateKeyJWT is the token endpoint auth method this provider implements.
	MethodPrivateKeyJWT = "private_key_jwt"
	// LoginProtocolOIDC is the login protocol the method is advertised for.
	LoginProtocolOIDC = "openid-connect"

	ParamClientAssertionType = "client_assertion_type"
	ParamClientAssertion     = "client_assertion"

	// MinLifespan is both the shortest replay cache entry and the maximum age
	// of an assertion without exp.
	MinLifespan = 10 * time.Second
)

// Authenticator is the private_key_jwt client authentication provider. It
// holds no per-request state and is safe for concurrent use.
type Authenticator struct {
	clients clients.Registry
	keys    keys.Resolver
	replay  singleuse.Cache
	now     func() time.Time
	log     *slog.Logger
}

type config struct {
	logHandler slog.Handler
	now        func() time.Time
}

// Option configures an Authenticator.
type Option func(*config)

// WithLogHandler sets the slog handler. Defaults to slog.DiscardHandler.
func WithLogHandler(h slog.Handler) Option {
	return func(c *config) { c.logHandler = h }
}

// WithClock overrides the time source used for token validity checks.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// New returns an Authenticator looking clients up in reg, verification keys
// in resolver and recording token IDs in replay.
func New(reg clients.Registry, resolver keys.Resolver, replay singleuse.Cache, opts ...Option) *Authenticator {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Authenticator{
		clients: reg,
		keys:    resolver,
		replay:  replay,
		now:     cfg.now,
		log:     logctx.New(cfg.logHandler),
	}
}

func (a *Authenticator) ProviderID() string { return ProviderID }

func (a *Authenticator) DisplayName() string { return "Signed Jwt" }

func (a *Authenticator) HelpText() string {
	return "Validates client based on signed JWT issued by client and signed with the Client private key"
}

func (a *Authenticator) ProtocolMethods(loginProtocol string) []string {
	if loginProtocol == LoginProtocolOIDC {
		return []string{MethodPrivateKeyJWT}
	}
	return nil
}

// ClientSettings are the per-client settings read by the Authenticator.
type ClientSettings struct {
	TokenEndpointAuthSigningAlg string `json:"token_endpoint_auth_signing_alg,omitempty" jsonschema:"enum=RS256,enum=RS384,enum=RS512,enum=PS256,enum=PS384,enum=PS512,enum=ES256,enum=ES384,enum=ES512,enum=EdDSA,description=JWS algorithm the client must sign assertions with"`
	JWKSURL                     string `json:"jwks_uri,omitempty" jsonschema:"format=uri,description=URL of the client's JWK Set"`
	JWKS                        *JWKS  `json:"jwks,omitempty" jsonschema:"description=Inline JWK Set holding the client's public keys"`
	Certificate                 string `json:"certificate,omitempty" jsonschema:"description=PEM encoded X.509 certificate of the client"`
}

// JWKS is the shape of an inline JWK Set.
type JWKS struct {
	Keys []map[string]any `json:"keys" jsonschema:"minItems=1"`
}

func (a *Authenticator) ConfigurationSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return r.Reflect(new(ClientSettings))
}

// AdapterConfiguration returns the client adapter configuration template for c.
func (a *Authenticator) AdapterConfiguration(c *clients.Client) map[string]any {
	props := map[string]any{
		"client-keystore-file":     "REPLACE WITH THE LOCATION OF YOUR KEYSTORE FILE",
		"client-keystore-type":     "jks",
		"client-keystore-password": "REPLACE WITH THE KEYSTORE PASSWORD",
		"client-key-password":      "REPLACE WITH THE KEY PASSWORD IN KEYSTORE",
		"client-key-alias":         c.ClientID,
		"token-timeout":            int(MinLifespan / time.Second),
	}
	if c.TokenEndpointAuthSigningAlg != "" {
		props["algorithm"] = c.TokenEndpointAuthSigningAlg
	}
	return map[string]any{"jwt": props}
}

var (
	_ clientauth.Provider          = (*Authenticator)(nil)
	_ clientauth.AdapterConfigurer = (*Authenticator)(nil)
)
