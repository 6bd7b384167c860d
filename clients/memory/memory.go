// Package memory provides an in-memory clients.Registry, primarily for tests
// and single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/ggoodman/clientauth-go/clients"
)

// Registry implements clients.Registry with a map guarded by a RWMutex.
type Registry struct {
	mu     sync.RWMutex
	realms map[string]map[string]*clients.Client
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{realms: make(map[string]map[string]*clients.Client)}
}

// FindClientByClientID returns a copy of the client or nil if absent.
func (r *Registry) FindClientByClientID(ctx context.Context, realm, clientID string) (*clients.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.realms[realm][clientID]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

// Put stores a copy of c in realm, replacing any client with the same ID.
func (r *Registry) Put(ctx context.Context, realm string, c *clients.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byID, ok := r.realms[realm]
	if !ok {
		byID = make(map[string]*clients.Client)
		r.realms[realm] = byID
	}
	byID[c.ClientID] = c.Clone()
	return nil
}

// Delete removes a client. Deleting an absent client is not an error.
func (r *Registry) Delete(ctx context.Context, realm, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.realms[realm], clientID)
	return nil
}

var _ clients.Registry = (*Registry)(nil)
