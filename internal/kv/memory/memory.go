// Package memory implements an in-process key value store (kv.Store) with
// per-key expiry, backed by a bounded LRU. It is the default throttle store
// when no redis URL is configured.
package memory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/symdex/symdex/internal/kv"
)

var _ kv.Store = &Store{}

// Name represents the in-memory store's shorthand name.
const Name = "memory"

// DefaultSize is the default maximum number of keys held.
const DefaultSize = 4096

type entry struct {
	value    []byte
	deadline time.Time // zero means no expiry
}

// Store implements the Store interface with a bounded in-process LRU.
type Store struct {
	cache *lru.Cache[string, entry]
	now   func() time.Time
}

// New creates a new in-memory store holding at most size keys. A size of 0
// uses DefaultSize.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache, now: time.Now}, nil
}

// Set stores value under k, expiring after ttl.
func (s *Store) Set(_ context.Context, k string, v []byte, ttl time.Duration) error {
	e := entry{value: v}
	if ttl > 0 {
		e.deadline = s.now().Add(ttl)
	}
	s.cache.Add(k, e)
	return nil
}

// Get returns the value for k. Expired keys are reported as absent.
func (s *Store) Get(_ context.Context, k string) (bool, []byte, error) {
	e, ok := s.cache.Get(k)
	if !ok {
		return false, nil, nil
	}
	if !e.deadline.IsZero() && s.now().After(e.deadline) {
		s.cache.Remove(k)
		return false, nil, nil
	}
	return true, e.value, nil
}

// Close releases the store.
func (s *Store) Close(_ context.Context) error {
	s.cache.Purge()
	return nil
}
