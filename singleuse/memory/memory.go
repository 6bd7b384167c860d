// Package memory provides an in-memory singleuse.Cache using
// github.com/hashicorp/golang-lru/v2 as a bounded, insertion-ordered index.
//
// Live entries are never evicted to make room: when the cache is full of
// unexpired keys, PutIfAbsent fails with singleuse.ErrCapacity rather than
// silently forgetting a consumed token.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/clientauth-go/singleuse"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = time.Minute

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithCleanupInterval sets the janitor period. Zero disables the janitor.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) { c.interval = d }
}

// Cache implements singleuse.Cache in process memory.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, time.Time]
	size     int
	now      func() time.Time
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a cache holding at most maxItems live entries.
func New(maxItems int, opts ...Option) (*Cache, error) {
	entries, err := lru.New[string, time.Time](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	c := &Cache{
		entries:  entries,
		size:     maxItems,
		now:      time.Now,
		interval: DefaultCleanupInterval,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interval > 0 {
		c.wg.Add(1)
		go c.cleanupExpired()
	}
	return c, nil
}

// PutIfAbsent implements singleuse.Cache.
func (c *Cache) PutIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, singleuse.ErrInvalidTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Peek does not touch recency, so the LRU order stays insertion order.
	if expiresAt, ok := c.entries.Peek(key); ok {
		if now.Before(expiresAt) {
			return false, nil
		}
		c.entries.Remove(key)
	}
	if c.entries.Len() >= c.size {
		c.removeExpiredLocked(now)
		if c.entries.Len() >= c.size {
			return false, singleuse.ErrCapacity
		}
	}
	c.entries.Add(key, now.Add(ttl))
	return true, nil
}

// Len reports the number of entries currently held, including expired ones
// not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Close stops the janitor and drops all entries.
func (c *Cache) Close() error {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.mu.Lock()
		c.entries.Purge()
		c.mu.Unlock()
	})
	return nil
}

func (c *Cache) removeExpiredLocked(now time.Time) int {
	removed := 0
	for _, key := range c.entries.Keys() {
		if expiresAt, ok := c.entries.Peek(key); ok && !now.Before(expiresAt) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *Cache) cleanupExpired() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpiredLocked(c.now())
			c.mu.Unlock()
		}
	}
}

var _ singleuse.Cache = (*Cache)(nil)
