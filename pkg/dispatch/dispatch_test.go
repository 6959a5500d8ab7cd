package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueReceive(t *testing.T) {
	t.Parallel()

	q := New()
	defer q.Stop()
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, q.Enqueue(ctx, id))

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestQueue_FullQueueDropsAfterTimeout(t *testing.T) {
	t.Parallel()

	q := New(WithBufferSize(1), WithEnqueueTimeout(time.Millisecond*10))
	defer q.Stop()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, uuid.New()))
	// queue is full; the second enqueue drops instead of blocking, and the
	// caller can tell no dispatch happened
	start := time.Now()
	assert.ErrorIs(t, q.Enqueue(ctx, uuid.New()), ErrQueueFull)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueue_Stopped(t *testing.T) {
	t.Parallel()

	q := New()
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(context.Background(), uuid.New()), ErrStopped)

	_, err := q.Receive(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
