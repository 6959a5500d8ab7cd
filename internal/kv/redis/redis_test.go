package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symdex/symdex/internal/kv/redis"
	"github.com/symdex/symdex/internal/testutil"
)

func TestStore_Redis(t *testing.T) {
	testutil.SkipUnlessIntegration(t)

	testutil.WithTestRedis(t, func(rawurl string) {
		ctx := context.Background()
		s, err := redis.NewFromURL(rawurl)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(ctx) })

		present, _, err := s.Get(ctx, "reattempt:missing")
		require.NoError(t, err)
		assert.False(t, present)

		require.NoError(t, s.Set(ctx, "reattempt:abc", []byte("1"), time.Minute))
		present, value, err := s.Get(ctx, "reattempt:abc")
		require.NoError(t, err)
		assert.True(t, present)
		assert.Equal(t, []byte("1"), value)

		require.NoError(t, s.Set(ctx, "reattempt:short", []byte("1"), 50*time.Millisecond))
		time.Sleep(100 * time.Millisecond)
		present, _, err = s.Get(ctx, "reattempt:short")
		require.NoError(t, err)
		assert.False(t, present, "the entry expires with its TTL")
	})
}
