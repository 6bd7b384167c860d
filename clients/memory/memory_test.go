package memory

import (
	"testing"

	"github.com/ggoodman/clientauth-go/clients/clientstest"
)

func TestMemoryRegistry(t *testing.T) {
	clientstest.RunStoreTests(t, func(t *testing.T) clientstest.Store {
		return New()
	})
}
