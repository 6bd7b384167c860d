// Package clientauth is a pluggable client-authentication engine for an
// OAuth 2.0 / OpenID Connect identity provider.
//
// A client authentication attempt is modeled as a FlowContext: the request
// scoped view of the token endpoint call (realm, base URI, decoded form
// parameters) plus a write-once outcome. Providers inspect the context and
// record exactly one of Success, Challenge or Failure. The Registry looks
// providers up by ID, runs them, fills in a fallback failure when a provider
// returns without recording anything, and counts outcomes with OpenTelemetry.
//
// The concrete RFC 7523 private_key_jwt provider lives in package jwtclient.
// Its collaborators are small interfaces owned by sibling packages:
// clients.Registry resolves registered clients, keys.Resolver yields the
// verification key and singleuse.Cache rejects replayed assertions.
//
// # Outcomes
//
// A Challenge is rendered as an RFC 6749 §5.2 JSON error body:
//
//	{"error":"invalid_client","error_description":"..."}
//
// Failures carry a FlowError kind. When the provider attaches no challenge
// the kind's default one is used (401 invalid_client for credential
// problems, 500 server_error for INTERNAL_ERROR).
//
// Example:
//
//	reg, _ := clientauth.NewRegistry()
//	_ = reg.Register(jwtclient.New(clientRegistry, keyResolver, replayCache))
//
//	fc, err := clientauth.NewFlowContext(r, realm)
//	if err != nil { /* 400 */ }
//	out, err := reg.Authenticate(r.Context(), jwtclient.ProviderID, fc)
//	if err != nil { /* unknown provider */ }
//	if out.Status != clientauth.StatusSuccess {
//	    _ = out.Response().WriteHTTP(w)
//	    return
//	}
//	client := fc.Client()
package clientauth
