// Package redis provides a singleuse.Cache backed by Redis. Insertion uses
// SET with NX and a millisecond expiry, so the check and the write happen in
// a single atomic command and expiry is enforced by the server.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ggoodman/clientauth-go/singleuse"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by the cache.
const DefaultKeyPrefix = "clientauth:singleuse:"

// Config contains configuration options for the Redis cache.
type Config struct {
	// Client is the Redis client instance. *redis.Client, *redis.ClusterClient
	// and *redis.Ring all satisfy redis.UniversalClient.
	Client redis.UniversalClient

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "clientauth:singleuse:"
	KeyPrefix string
}

// EnvConfig holds settings for NewFromEnv. Defaults come from struct tags.
type EnvConfig struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// RedisDB selects the logical database. ENV: REDIS_DB
	RedisDB int `env:"REDIS_DB,default=0"`
	// KeyPrefix for all keys. ENV: CLIENTAUTH_REPLAY_PREFIX
	KeyPrefix string `env:"CLIENTAUTH_REPLAY_PREFIX,default=clientauth:singleuse:"`
}

// Cache implements singleuse.Cache using Redis.
type Cache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New creates a Redis-backed cache.
func New(config Config) (*Cache, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	return &Cache{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

// NewFromEnv builds a cache from environment variables and verifies the
// server is reachable.
func NewFromEnv(ctx context.Context) (*Cache, error) {
	var cfg EnvConfig
	// Defaults are provided via struct tags; a missing variable is not an error.
	_ = envdecode.Decode(&cfg)
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(Config{Client: client, KeyPrefix: cfg.KeyPrefix})
}

// PutIfAbsent implements singleuse.Cache.
func (c *Cache) PutIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, singleuse.ErrInvalidTTL
	}
	ok, err := c.client.SetNX(ctx, c.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Compile-time interface check
var _ singleuse.Cache = (*Cache)(nil)
