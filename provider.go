package clientauth

import (
	"context"

	"github.com/ggoodman/clientauth-go/clients"
	"github.com/invopop/jsonschema"
)

// Authenticator authenticates the client of a single token endpoint call.
//
// AuthenticateClient must record exactly one outcome on fc before returning.
// It must not panic on malformed input; the Registry records a fallback
// INTERNAL_ERROR failure for authenticators that return without recording.
type Authenticator interface {
	ProviderID() string
	AuthenticateClient(ctx context.Context, fc *FlowContext)
}

// Provider is an Authenticator with the metadata needed to advertise it.
type Provider interface {
	Authenticator
	DisplayName() string
	HelpText() string
	// ProtocolMethods returns the token_endpoint_auth_methods_supported values
	// the provider implements for a login protocol. Unknown protocols yield none.
	ProtocolMethods(loginProtocol string) []string
	// ConfigurationSchema describes the per-client settings the provider reads.
	ConfigurationSchema() *jsonschema.Schema
}

// AdapterConfigurer is implemented by providers that can produce a client
// adapter configuration template for a registered client.
type AdapterConfigurer interface {
	AdapterConfiguration(c *clients.Client) map[string]any
}
