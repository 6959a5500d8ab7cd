// Package kv defines a Store interface for ephemeral, expiring key/value
// data. Stores back the upload reattempt throttle: entries only suppress
// duplicate work, so a cold or lossy store causes redundant dispatches, never
// data loss.
package kv

import (
	"context"
	"time"
)

// Store represents a key value store with per-key expiry.
type Store interface {
	// Set stores value under key. The key expires after ttl; zero means no
	// expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns whether the key is present, and its value.
	Get(ctx context.Context, key string) (bool, []byte, error)
	// Close closes the store, releasing any open resources.
	Close(ctx context.Context) error
}
