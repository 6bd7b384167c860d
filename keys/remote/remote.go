// Package remote resolves client verification keys from the JWK Set the client
// publishes at its jwks_uri. Each distinct URL gets one auto-refreshing
// keyfunc instance, created on first use and shared by later lookups.
//
// Lookups require the assertion to carry a "kid" header; without one (or
// when the kid is unknown) the resolver reports no key.
package remote

import (
	"context"
	"crypto"
	"fmt"
	"log/slog"
	"sync"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/keys"
	"github.com/golang-jwt/jwt/v5"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogHandler sets the slog handler for lookup diagnostics.
func WithLogHandler(h slog.Handler) Option {
	return func(r *Resolver) { r.log = slog.New(h) }
}

type entry struct {
	ready chan struct{}
	kf    keyfunc.Keyfunc
	err   error
}

// Resolver implements keys.Resolver over Client.JWKSURL.
type Resolver struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu   sync.Mutex
	sets map[string]*entry
}

// New returns a Resolver. ctx bounds the lifetime of background JWKS
// refreshes; Close cancels them as well.
func New(ctx context.Context, opts ...Option) *Resolver {
	ctx, cancel := context.WithCancel(ctx)
	r := &Resolver{
		ctx:    ctx,
		cancel: cancel,
		log:    slog.New(slog.DiscardHandler),
		sets:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveClientKey implements keys.Resolver.
func (r *Resolver) ResolveClientKey(ctx context.Context, client *clients.Client, header keys.HeaderInfo) (crypto.PublicKey, error) {
	if client == nil || client.JWKSURL == "" {
		return nil, nil
	}
	kf, err := r.keyfuncFor(ctx, client.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("remote: jwks %s: %w", client.JWKSURL, err)
	}
	// keyfunc selects by the header of a parsed token; only kid and alg are read.
	tok := &jwt.Token{Header: map[string]any{"alg": header.Algorithm, "kid": header.KeyID}}
	key, err := kf.Keyfunc(tok)
	if err != nil {
		r.log.DebugContext(ctx, "keys_remote.no_key",
			slog.String("client_id", client.ClientID),
			slog.String("kid", header.KeyID),
			slog.String("err", err.Error()))
		return nil, nil
	}
	return key, nil
}

// Close stops background refreshes of every JWK Set.
func (r *Resolver) Close() error {
	r.cancel()
	return nil
}

func (r *Resolver) keyfuncFor(ctx context.Context, url string) (keyfunc.Keyfunc, error) {
	r.mu.Lock()
	e, ok := r.sets[url]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.sets[url] = e
		r.mu.Unlock()

		e.kf, e.err = keyfunc.NewDefaultCtx(r.ctx, []string{url})
		close(e.ready)
		if e.err != nil {
			// Forget the failure so a later request retries the fetch.
			r.mu.Lock()
			delete(r.sets, url)
			r.mu.Unlock()
		}
		return e.kf, e.err
	}
	r.mu.Unlock()

	select {
	case <-e.ready:
		return e.kf, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ keys.Resolver = (*Resolver)(nil)
