// Package singleusetest provides a conformance suite for singleuse.Cache
// implementations.
package singleusetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/clientauth-go/singleuse"
	"github.com/google/uuid"
)

// CacheFactory creates a new Cache instance for a single test.
type CacheFactory func(t *testing.T) singleuse.Cache

// RunCacheTests runs the complete Cache suite against the provided factory.
func RunCacheTests(t *testing.T, factory CacheFactory) {
	t.Run("PutIfAbsent_FirstInsertWins", func(t *testing.T) { testFirstInsertWins(t, factory) })
	t.Run("PutIfAbsent_KeysAreIndependent", func(t *testing.T) { testKeysIndependent(t, factory) })
	t.Run("PutIfAbsent_ExpiredKeyIsReusable", func(t *testing.T) { testExpiredReusable(t, factory) })
	t.Run("PutIfAbsent_RejectsNonPositiveTTL", func(t *testing.T) { testInvalidTTL(t, factory) })
	t.Run("PutIfAbsent_CanceledContext", func(t *testing.T) { testCanceledContext(t, factory) })
	t.Run("PutIfAbsent_ExactlyOneConcurrentWinner", func(t *testing.T) { testConcurrentWinner(t, factory) })
}

// key returns a unique key so suites can share a backend between runs.
func key(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func testFirstInsertWins(t *testing.T, factory CacheFactory) {
	c := factory(t)
	ctx := context.Background()
	k := key("first")

	ok, err := c.PutIfAbsent(ctx, k, time.Minute)
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if !ok {
		t.Fatal("first put should insert")
	}
	for i := 0; i < 3; i++ {
		ok, err = c.PutIfAbsent(ctx, k, time.Minute)
		if err != nil {
			t.Fatalf("repeat put: %v", err)
		}
		if ok {
			t.Fatalf("repeat put %d should be rejected", i)
		}
	}
}

func testKeysIndependent(t *testing.T, factory CacheFactory) {
	c := factory(t)
	ctx := context.Background()
	a, b := key("a"), key("b")
	if ok, err := c.PutIfAbsent(ctx, a, time.Minute); err != nil || !ok {
		t.Fatalf("put a: ok=%v err=%v", ok, err)
	}
	if ok, err := c.PutIfAbsent(ctx, b, time.Minute); err != nil || !ok {
		t.Fatalf("put b: ok=%v err=%v", ok, err)
	}
}

func testExpiredReusable(t *testing.T, factory CacheFactory) {
	c := factory(t)
	ctx := context.Background()
	k := key("ttl")
	ttl := 100 * time.Millisecond

	if ok, err := c.PutIfAbsent(ctx, k, ttl); err != nil || !ok {
		t.Fatalf("put: ok=%v err=%v", ok, err)
	}
	if ok, _ := c.PutIfAbsent(ctx, k, ttl); ok {
		t.Fatal("key should be present before expiry")
	}

	time.Sleep(ttl + 100*time.Millisecond)

	ok, err := c.PutIfAbsent(ctx, k, ttl)
	if err != nil {
		t.Fatalf("put after expiry: %v", err)
	}
	if !ok {
		t.Fatal("expired key should be insertable again")
	}
}

func testInvalidTTL(t *testing.T, factory CacheFactory) {
	c := factory(t)
	for _, ttl := range []time.Duration{0, -time.Second} {
		_, err := c.PutIfAbsent(context.Background(), key("bad-ttl"), ttl)
		if !errors.Is(err, singleuse.ErrInvalidTTL) {
			t.Fatalf("ttl %v: want ErrInvalidTTL, got %v", ttl, err)
		}
	}
}

func testCanceledContext(t *testing.T, factory CacheFactory) {
	c := factory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := c.PutIfAbsent(ctx, key("canceled"), time.Minute)
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
	if ok {
		t.Fatal("canceled put must not report an insertion")
	}
}

func testConcurrentWinner(t *testing.T, factory CacheFactory) {
	c := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const workers = 32
	k := key("race")
	var (
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := c.PutIfAbsent(ctx, k, time.Minute)
			if err != nil {
				errs <- fmt.Errorf("worker %d: %w", i, err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if got := wins.Load(); got != 1 {
		t.Fatalf("want exactly one winner, got %d", got)
	}
}
