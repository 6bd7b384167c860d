// Package clientstest provides a conformance suite for writable
// clients.Registry implementations.
package clientstest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ggoodman/clientauth-go/clients"
)

// Store is a registry that also supports writes.
type Store interface {
	clients.Registry
	Put(ctx context.Context, realm string, c *clients.Client) error
	Delete(ctx context.Context, realm, clientID string) error
}

// StoreFactory creates a new, empty Store for a single test.
type StoreFactory func(t *testing.T) Store

// RunStoreTests runs the complete registry suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("Find_MissingReturnsNil", func(t *testing.T) { testFindMissing(t, factory) })
	t.Run("Put_RoundTripsAllFields", func(t *testing.T) { testRoundTrip(t, factory) })
	t.Run("Put_ReplacesExisting", func(t *testing.T) { testReplace(t, factory) })
	t.Run("Put_RejectsInvalidClient", func(t *testing.T) { testRejectInvalid(t, factory) })
	t.Run("Realms_AreIsolated", func(t *testing.T) { testRealmIsolation(t, factory) })
	t.Run("Find_ReturnsCopies", func(t *testing.T) { testReturnsCopies(t, factory) })
	t.Run("Delete_RemovesClient", func(t *testing.T) { testDelete(t, factory) })
	t.Run("Concurrent_ReadsAndWrites", func(t *testing.T) { testConcurrent(t, factory) })
}

func sampleClient(id string) *clients.Client {
	return &clients.Client{
		ClientID:                    id,
		Enabled:                     true,
		TokenEndpointAuthSigningAlg: "RS256",
		JWKSURL:                     "https://" + id + ".example.com/jwks.json",
		JWKS:                        json.RawMessage(`{"keys":[]}`),
		Certificate:                 "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n",
		AuthenticatorType:           "client-jwt",
		Attributes:                  map[string]string{"owner": "team-" + id},
	}
}

func testFindMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)
	c, err := s.FindClientByClientID(context.Background(), "realm-a", "nobody")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil client, got %+v", c)
	}
}

func testRoundTrip(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	want := sampleClient("acme")
	if err := s.Put(ctx, "realm-a", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.FindClientByClientID(ctx, "realm-a", "acme")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil {
		t.Fatal("expected client, got nil")
	}
	if got.ClientID != want.ClientID || got.Enabled != want.Enabled {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if got.TokenEndpointAuthSigningAlg != want.TokenEndpointAuthSigningAlg {
		t.Fatalf("alg mismatch: want %q got %q", want.TokenEndpointAuthSigningAlg, got.TokenEndpointAuthSigningAlg)
	}
	if got.JWKSURL != want.JWKSURL || got.Certificate != want.Certificate || got.AuthenticatorType != want.AuthenticatorType {
		t.Fatalf("key material mismatch: %+v", got)
	}
	if string(got.JWKS) != string(want.JWKS) {
		t.Fatalf("jwks mismatch: want %s got %s", want.JWKS, got.JWKS)
	}
	if got.Attributes["owner"] != "team-acme" {
		t.Fatalf("attributes mismatch: %v", got.Attributes)
	}
}

func testReplace(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	if err := s.Put(ctx, "realm-a", sampleClient("acme")); err != nil {
		t.Fatalf("put: %v", err)
	}
	updated := sampleClient("acme")
	updated.Enabled = false
	updated.TokenEndpointAuthSigningAlg = ""
	if err := s.Put(ctx, "realm-a", updated); err != nil {
		t.Fatalf("put updated: %v", err)
	}
	got, err := s.FindClientByClientID(ctx, "realm-a", "acme")
	if err != nil || got == nil {
		t.Fatalf("find: %v %v", got, err)
	}
	if got.Enabled {
		t.Fatal("expected replaced client to be disabled")
	}
	if got.TokenEndpointAuthSigningAlg != "" {
		t.Fatalf("expected alg cleared, got %q", got.TokenEndpointAuthSigningAlg)
	}
}

func testRejectInvalid(t *testing.T, factory StoreFactory) {
	s := factory(t)
	err := s.Put(context.Background(), "realm-a", &clients.Client{})
	if !errors.Is(err, clients.ErrInvalidClient) {
		t.Fatalf("want ErrInvalidClient, got %v", err)
	}
}

func testRealmIsolation(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	if err := s.Put(ctx, "realm-a", sampleClient("acme")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.FindClientByClientID(ctx, "realm-b", "acme")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != nil {
		t.Fatal("client leaked across realms")
	}
}

func testReturnsCopies(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	if err := s.Put(ctx, "realm-a", sampleClient("acme")); err != nil {
		t.Fatalf("put: %v", err)
	}
	first, err := s.FindClientByClientID(ctx, "realm-a", "acme")
	if err != nil || first == nil {
		t.Fatalf("find: %v %v", first, err)
	}
	first.Enabled = false
	first.Attributes["owner"] = "mallory"
	second, err := s.FindClientByClientID(ctx, "realm-a", "acme")
	if err != nil || second == nil {
		t.Fatalf("find again: %v %v", second, err)
	}
	if !second.Enabled || second.Attributes["owner"] != "team-acme" {
		t.Fatalf("mutation of returned client leaked into store: %+v", second)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	if err := s.Put(ctx, "realm-a", sampleClient("acme")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete(ctx, "realm-a", "acme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.FindClientByClientID(ctx, "realm-a", "acme")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != nil {
		t.Fatal("expected client to be deleted")
	}
	if err := s.Delete(ctx, "realm-a", "acme"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func testConcurrent(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("client-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.Put(ctx, "realm-a", sampleClient(id)); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.FindClientByClientID(ctx, "realm-a", id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent op failed: %v", err)
	}
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("client-%d", i)
		c, err := s.FindClientByClientID(ctx, "realm-a", id)
		if err != nil || c == nil {
			t.Fatalf("client %s missing after concurrent puts: %v", id, err)
		}
	}
}
