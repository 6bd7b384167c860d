package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/clientauth-go/singleuse"
	"github.com/ggoodman/clientauth-go/singleuse/singleusetest"
)

func TestMemoryCache(t *testing.T) {
	singleusetest.RunCacheTests(t, func(t *testing.T) singleuse.Cache {
		c, err := New(1000)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		t.Cleanup(func() { _ = c.Close() })
		return c
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}

func TestPutIfAbsent_ExpiryBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c, err := New(10, WithClock(clock.Now), WithCleanupInterval(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if ok, _ := c.PutIfAbsent(ctx, "jti", 10*time.Second); !ok {
		t.Fatal("first insert should succeed")
	}
	clock.Advance(10*time.Second - time.Nanosecond)
	if ok, _ := c.PutIfAbsent(ctx, "jti", 10*time.Second); ok {
		t.Fatal("entry must still be live just before its TTL")
	}
	clock.Advance(time.Nanosecond)
	if ok, _ := c.PutIfAbsent(ctx, "jti", 10*time.Second); !ok {
		t.Fatal("entry must be absent once its TTL has elapsed")
	}
}

func TestPutIfAbsent_FailsClosedWhenFull(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c, err := New(2, WithClock(clock.Now), WithCleanupInterval(0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b"} {
		if ok, err := c.PutIfAbsent(ctx, k, time.Minute); err != nil || !ok {
			t.Fatalf("put %s: ok=%v err=%v", k, ok, err)
		}
	}
	if _, err := c.PutIfAbsent(ctx, "c", time.Minute); !errors.Is(err, singleuse.ErrCapacity) {
		t.Fatalf("want ErrCapacity, got %v", err)
	}
	// A live entry must never be evicted to make room.
	if ok, _ := c.PutIfAbsent(ctx, "a", time.Minute); ok {
		t.Fatal("live entry a was evicted")
	}

	clock.Advance(2 * time.Minute)
	if ok, err := c.PutIfAbsent(ctx, "c", time.Minute); err != nil || !ok {
		t.Fatalf("put after expiry should reclaim space: ok=%v err=%v", ok, err)
	}
	if got := c.Len(); got != 1 {
		t.Fatalf("expected expired entries to be reclaimed, len=%d", got)
	}
}

func TestCleanupJanitor_RemovesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c, err := New(10, WithClock(clock.Now), WithCleanupInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c.Close()

	if ok, _ := c.PutIfAbsent(context.Background(), "jti", time.Second); !ok {
		t.Fatal("insert should succeed")
	}
	clock.Advance(2 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not sweep expired entry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	c, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
