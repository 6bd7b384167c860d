// Package singleuse defines the single-use token cache that client
// authenticators use to reject replayed assertions.
//
// A Cache records identifiers (typically JWT "jti" values) for a bounded
// lifespan. PutIfAbsent is the serialization point for replay protection: for
// a given key, at most one caller observes true while the entry is live, no
// matter how concurrent callers interleave.
//
// The cache is a process-wide shared resource. Construct it once at start-up
// and hand the same instance to every authenticator; back it with Redis when
// several instances serve the same realm.
package singleuse

import (
	"context"
	"errors"
	"time"
)

// Cache is an atomic insert-if-absent store with per-entry TTL.
type Cache interface {
	// PutIfAbsent records key for ttl. It returns true if this call performed
	// the insertion and false if key is already present and unexpired.
	// Expired entries are treated as absent. ttl must be positive.
	PutIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var (
	// ErrInvalidTTL is returned when PutIfAbsent is called with a non-positive ttl.
	ErrInvalidTTL = errors.New("singleuse: invalid ttl")

	// ErrCapacity is returned by bounded implementations that cannot record a
	// new key without evicting live entries.
	ErrCapacity = errors.New("singleuse: capacity exceeded")
)
