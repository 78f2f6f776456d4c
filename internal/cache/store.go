// Package cache holds the read-through cache for store listings and the
// key-value stores it can sit on.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the key-value contract the aggregate cache needs.
type Store interface {
	// Get returns the value stored under key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites key unconditionally. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Keys lists live keys starting with prefix. The request path never
	// calls it; it is for inspecting a namespace from tests and tooling.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes every key starting with prefix and reports how many.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	// Incr atomically increments an integer counter stored under key.
	Incr(ctx context.Context, key string) (int64, error)
}
