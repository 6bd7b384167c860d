package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/clients/clientstest"
)

func TestSQLiteRegistry(t *testing.T) {
	clientstest.RunStoreTests(t, func(t *testing.T) clientstest.Store {
		r, err := Open(context.Background(), filepath.Join(t.TempDir(), "clients.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = r.Close() })
		return r
	})
}

func TestSQLiteRegistry_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clients.db")

	r, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := r.Put(ctx, "master", &clients.Client{ClientID: "acme", Enabled: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()
	c, err := r2.FindClientByClientID(ctx, "master", "acme")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c == nil || !c.Enabled {
		t.Fatalf("expected persisted enabled client, got %+v", c)
	}
	if c.JWKS != nil || c.Attributes != nil {
		t.Fatalf("expected empty optional fields, got jwks=%s attrs=%v", c.JWKS, c.Attributes)
	}
}
