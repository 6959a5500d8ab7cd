package storage_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symdex/symdex/internal/testutil"
	"github.com/symdex/symdex/pkg/storage"
)

func TestEmulatedS3_MinIO(t *testing.T) {
	testutil.SkipUnlessIntegration(t)

	testutil.WithTestMinIO(t, "symbols-test", func(endpoint string) {
		ctx := context.Background()

		bucket, err := storage.ParseBucketURL(testutil.MinIOBucketURL(endpoint, "symbols-test"))
		require.NoError(t, err)
		assert.Equal(t, storage.BackendEmulatedS3, bucket.Backend)
		assert.Equal(t, "symbols-test", bucket.Name)
		assert.False(t, bucket.Private)

		ok, err := bucket.Exists(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		content := []byte("MODULE windows x86_64 ABCDEF0123456789 app.pdb\n")
		key := "inbox/2026-08-24/aabbccddeeff/symbols.zip"
		require.NoError(t, bucket.Put(ctx, key, bytes.NewReader(content), int64(len(content))))

		obj, err := testutil.MinIOClient(t, endpoint).GetObject(
			ctx, "symbols-test", key, minio.GetObjectOptions{})
		require.NoError(t, err)
		got, err := io.ReadAll(obj)
		require.NoError(t, err)
		assert.Equal(t, content, got)

		missing, err := storage.ParseBucketURL(testutil.MinIOBucketURL(endpoint, "no-such-bucket"))
		require.NoError(t, err)
		ok, err = missing.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
