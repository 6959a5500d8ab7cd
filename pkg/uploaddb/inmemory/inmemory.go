// Package inmemory implements the upload record store (uploaddb.Store) in
// process memory. It backs the unit tests and single-node development.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/symdex/symdex/pkg/uploaddb"
)

var _ uploaddb.Store = (*Store)(nil)

// Store is an in-memory upload record store.
type Store struct {
	mu      sync.Mutex
	records map[uuid.UUID]*uploaddb.Upload
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[uuid.UUID]*uploaddb.Upload),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock, for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Create inserts a new upload record.
func (s *Store) Create(_ context.Context, u *uploaddb.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	cp := *u
	s.records[u.ID] = &cp
	return nil
}

// Get returns the record with the given id, or nil.
func (s *Store) Get(id uuid.UUID) *uploaddb.Upload {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.records[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ListIncomplete returns stuck uploads ordered by creation time.
func (s *Store) ListIncomplete(_ context.Context, olderThan time.Time, maxAttempts int) ([]*uploaddb.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var uploads []*uploaddb.Upload
	for _, u := range s.records {
		if u.CompletedAt.Valid || u.CancelledAt.Valid {
			continue
		}
		if !u.CreatedAt.Before(olderThan) {
			continue
		}
		if u.Attempts >= maxAttempts {
			continue
		}
		cp := *u
		uploads = append(uploads, &cp)
	}
	sort.Slice(uploads, func(i, j int) bool {
		return uploads[i].CreatedAt.Before(uploads[j].CreatedAt)
	})
	return uploads, nil
}

// Tx runs fn against a shadow store, merging its writes only if fn succeeds.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx uploaddb.Store) error) error {
	shadow := New()
	shadow.now = s.now
	if err := fn(ctx, shadow); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range shadow.records {
		s.records[id] = u
	}
	return nil
}

// Close releases the store.
func (s *Store) Close(_ context.Context) error { return nil }
