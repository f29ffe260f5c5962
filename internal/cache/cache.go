// Package cache is a TTL key-value cache of opaque blobs plus a typed
// read-through helper. Entries are never invalidated on write unless a
// caller deletes them; staleness is bounded by the TTL.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Well-known entries.
const (
	KeyBooksForSearch = "all_books_for_search"
	KeyBooksAsDict    = "all_books_as_dict"
)

// Cache stores values for a bounded time. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetOrCompute returns the cached value for key, or runs compute, stores its
// JSON encoding for ttl and returns it. Cache failures and undecodable
// entries count as misses; only compute errors are returned.
func GetOrCompute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if raw, ok, err := c.Get(ctx, key); err == nil && ok {
		var v T
		if json.Unmarshal(raw, &v) == nil {
			return v, nil
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}

	if raw, err := json.Marshal(v); err == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return v, nil
}

// Invalidate deletes every key, returning the first error.
func Invalidate(ctx context.Context, c Cache, keys ...string) error {
	var first error
	for _, k := range keys {
		if err := c.Delete(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}
