// Package postgres implements the upload record store (uploaddb.Store) with
// Postgres.
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/symdex/symdex/pkg/uploaddb"
)

var _ uploaddb.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS uploads (
	id UUID PRIMARY KEY,
	user_email TEXT NOT NULL,
	filename TEXT NOT NULL,
	size BIGINT NOT NULL,
	inbox_key TEXT,
	inbox_filepath TEXT,
	bucket_name TEXT NOT NULL,
	bucket_region TEXT,
	bucket_endpoint_url TEXT,
	download_url TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	attempts INTEGER NOT NULL DEFAULT 0,
	skipped_keys TEXT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS uploads_incomplete_idx
	ON uploads (created_at)
	WHERE completed_at IS NULL AND cancelled_at IS NULL;
`

// Store is a Postgres-backed upload record store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Create inserts a new upload record.
func (s *Store) Create(ctx context.Context, u *uploaddb.Upload) error {
	return create(ctx, s.pool, u)
}

// ListIncomplete returns stuck uploads ordered by creation time.
func (s *Store) ListIncomplete(ctx context.Context, olderThan time.Time, maxAttempts int) ([]*uploaddb.Upload, error) {
	return listIncomplete(ctx, s.pool, olderThan, maxAttempts)
}

// Tx runs fn in a database transaction.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx uploaddb.Store) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, txStore{tx: tx, pool: s.pool})
	})
}

// Close releases the connection pool.
func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

type txStore struct {
	tx   pgx.Tx
	pool *pgxpool.Pool
}

func (t txStore) Create(ctx context.Context, u *uploaddb.Upload) error {
	return create(ctx, t.tx, u)
}

func (t txStore) ListIncomplete(ctx context.Context, olderThan time.Time, maxAttempts int) ([]*uploaddb.Upload, error) {
	return listIncomplete(ctx, t.tx, olderThan, maxAttempts)
}

func (t txStore) Tx(ctx context.Context, fn func(ctx context.Context, tx uploaddb.Store) error) error {
	// already in a transaction
	return fn(ctx, t)
}

func (t txStore) Close(_ context.Context) error { return nil }

type execQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func create(ctx context.Context, q execQuerier, u *uploaddb.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO uploads (id, user_email, filename, size,
			inbox_key, inbox_filepath,
			bucket_name, bucket_region, bucket_endpoint_url,
			download_url, attempts, skipped_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, u.ID, u.UserEmail, u.Filename, u.Size,
		u.InboxKey, u.InboxFilepath,
		u.BucketName, u.BucketRegion, u.BucketEndpointURL,
		u.DownloadURL, u.Attempts, u.SkippedKeys)
	return row.Scan(&u.CreatedAt)
}

func listIncomplete(ctx context.Context, q execQuerier, olderThan time.Time, maxAttempts int) ([]*uploaddb.Upload, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_email, filename, size,
			inbox_key, inbox_filepath,
			bucket_name, bucket_region, bucket_endpoint_url,
			download_url, created_at, completed_at, cancelled_at,
			attempts, skipped_keys
		FROM uploads
		WHERE completed_at IS NULL
		  AND cancelled_at IS NULL
		  AND created_at < $1
		  AND attempts < $2
		ORDER BY created_at
	`, olderThan, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*uploaddb.Upload
	for rows.Next() {
		var u uploaddb.Upload
		err := rows.Scan(&u.ID, &u.UserEmail, &u.Filename, &u.Size,
			&u.InboxKey, &u.InboxFilepath,
			&u.BucketName, &u.BucketRegion, &u.BucketEndpointURL,
			&u.DownloadURL, &u.CreatedAt, &u.CompletedAt, &u.CancelledAt,
			&u.Attempts, &u.SkippedKeys)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, &u)
	}
	return uploads, rows.Err()
}
