// Package cache stores registry lookup results between runs.
//
// Every registry lookup made while online is written through a [Cache] so a
// later run with offline mode enabled can still resolve packages it has seen.
// Three backends implement [Cache]:
//
//   - [FileCache]: sharded JSON files under the stackpm cache directory
//   - [RedisCache]: a shared Redis instance, useful for CI fleets
//   - [NullCache]: stores nothing
//
// Keys are built by a [Keyer]. [ScopedKeyer] prefixes keys per registry
// endpoint so two registries using the same name never share entries.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// GetJSON reads key and decodes it into v. Undecodable entries are misses.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
