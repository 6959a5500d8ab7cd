// Package uploaddb defines the Upload record and the Store interface the
// ingestion pipeline persists records through. The record is created by the
// pipeline atomically with the staging write; the downstream processor owns
// completion, cancellation and the skipped-member list.
package uploaddb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v9"
)

// Upload is one uploaded symbol archive pending (or done) processing.
type Upload struct {
	ID        uuid.UUID
	UserEmail string
	Filename  string
	Size      int64

	// Exactly one of InboxKey (object-store staging) and InboxFilepath
	// (filesystem staging) is set, depending on the deployment mode.
	InboxKey      null.String
	InboxFilepath null.String

	BucketName        string
	BucketRegion      null.String
	BucketEndpointURL null.String

	// DownloadURL is set only for download-by-URL ingestion.
	DownloadURL null.String

	CreatedAt   time.Time
	CompletedAt null.Time
	CancelledAt null.Time

	Attempts    int
	SkippedKeys []string
}

// Store persists Upload records.
type Store interface {
	// Create inserts a new record. A zero ID and CreatedAt are filled in.
	Create(ctx context.Context, u *Upload) error
	// ListIncomplete returns non-completed, non-cancelled uploads created
	// before olderThan with fewer than maxAttempts attempts, ordered by
	// creation time.
	ListIncomplete(ctx context.Context, olderThan time.Time, maxAttempts int) ([]*Upload, error)
	// Tx runs fn inside a transaction. Writes made through the Store passed
	// to fn are committed iff fn returns nil.
	Tx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	// Close releases the store.
	Close(ctx context.Context) error
}
