// Package keys defines how client authenticators obtain the public key that
// verifies a client assertion.
//
// Key storage, rotation and caching belong to the resolver; authenticators
// only ask for a key given the client and the assertion's JOSE header and
// treat a nil key as "credentials not set up".
package keys

import (
	"context"
	"crypto"

	"github.com/ggoodman/clientauth-go/clients"
)

// HeaderInfo carries the JOSE header fields relevant for key selection.
type HeaderInfo struct {
	Algorithm            string
	KeyID                string
	Type                 string
	X509SHA256Thumbprint string
}

// Resolver maps a client and assertion header to a verification key.
//
// ResolveClientKey returns (nil, nil) when the client has no usable key
// and an error only when resolution itself failed (I/O, malformed
// configuration). Implementations must be safe for concurrent use.
type Resolver interface {
	ResolveClientKey(ctx context.Context, client *clients.Client, header HeaderInfo) (crypto.PublicKey, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, client *clients.Client, header HeaderInfo) (crypto.PublicKey, error)

// ResolveClientKey calls f.
func (f ResolverFunc) ResolveClientKey(ctx context.Context, client *clients.Client, header HeaderInfo) (crypto.PublicKey, error) {
	return f(ctx, client, header)
}

// Chain consults resolvers in order and returns the first non-nil key.
// An error from any resolver ends the search.
type Chain []Resolver

// ResolveClientKey implements Resolver.
func (c Chain) ResolveClientKey(ctx context.Context, client *clients.Client, header HeaderInfo) (crypto.PublicKey, error) {
	for _, r := range c {
		key, err := r.ResolveClientKey(ctx, client, header)
		if err != nil {
			return nil, err
		}
		if key != nil {
			return key, nil
		}
	}
	return nil, nil
}

var _ Resolver = Chain(nil)
