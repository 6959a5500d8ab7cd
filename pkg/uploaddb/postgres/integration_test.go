package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v9"

	"github.com/symdex/symdex/internal/testutil"
	"github.com/symdex/symdex/pkg/uploaddb"
	"github.com/symdex/symdex/pkg/uploaddb/postgres"
)

func TestStore_Postgres(t *testing.T) {
	testutil.SkipUnlessIntegration(t)

	testutil.WithTestPostgres(t, func(dsn string) {
		ctx := context.Background()
		store, err := postgres.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close(ctx) })

		u := &uploaddb.Upload{
			UserEmail:   "dev@example.com",
			Filename:    "symbols.zip",
			Size:        1234,
			InboxKey:    null.StringFrom("inbox/2026-08-24/aabbccddeeff/symbols.zip"),
			BucketName:  "symbols-default",
			SkippedKeys: []string{"already/there.sym"},
		}
		require.NoError(t, store.Create(ctx, u))
		assert.NotZero(t, u.ID)
		assert.False(t, u.CreatedAt.IsZero())

		// a future cutoff captures the row just created
		cutoff := time.Now().Add(time.Minute)
		uploads, err := store.ListIncomplete(ctx, cutoff, 3)
		require.NoError(t, err)
		require.Len(t, uploads, 1)
		assert.Equal(t, u.ID, uploads[0].ID)
		assert.Equal(t, "dev@example.com", uploads[0].UserEmail)
		assert.Equal(t, u.InboxKey, uploads[0].InboxKey)
		assert.Equal(t, []string{"already/there.sym"}, uploads[0].SkippedKeys)
		assert.False(t, uploads[0].CompletedAt.Valid)

		uploads, err = store.ListIncomplete(ctx, cutoff, 0)
		require.NoError(t, err)
		assert.Empty(t, uploads, "attempt ceiling filters the row out")

		uploads, err = store.ListIncomplete(ctx, time.Now().Add(-time.Hour), 3)
		require.NoError(t, err)
		assert.Empty(t, uploads, "a past cutoff excludes fresh rows")
	})
}

func TestStore_PostgresTxRollback(t *testing.T) {
	testutil.SkipUnlessIntegration(t)

	testutil.WithTestPostgres(t, func(dsn string) {
		ctx := context.Background()
		store, err := postgres.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close(ctx) })

		boom := errors.New("staging failed")
		err = store.Tx(ctx, func(ctx context.Context, tx uploaddb.Store) error {
			if err := tx.Create(ctx, &uploaddb.Upload{
				UserEmail:  "dev@example.com",
				Filename:   "symbols.zip",
				Size:       1,
				BucketName: "symbols-default",
			}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		uploads, err := store.ListIncomplete(ctx, time.Now().Add(time.Minute), 3)
		require.NoError(t, err)
		assert.Empty(t, uploads, "the insert rolls back with the transaction")
	})
}
