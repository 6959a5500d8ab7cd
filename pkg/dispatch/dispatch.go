// Package dispatch implements fire-and-forget handoff of upload ids to the
// downstream archive processor. The queue is a bounded channel: Enqueue never
// blocks past a short timeout, and a dropped dispatch is recovered later by
// the stuck-upload reattempt scan.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/symdex/symdex/internal/log"
)

// ErrStopped is returned when the queue has been stopped and no more ids will
// be accepted.
var ErrStopped = errors.New("dispatch queue is stopped")

// ErrQueueFull is returned when the queue stays full past the enqueue timeout
// and the id is dropped.
var ErrQueueFull = errors.New("dispatch queue is full")

const (
	defaultBufferSize     = 1024
	defaultEnqueueTimeout = time.Second
	minEnqueueTimeout     = time.Millisecond * 10
)

type config struct {
	bufferSize     int
	enqueueTimeout time.Duration
}

// Option configures a Queue.
type Option func(*config)

// WithBufferSize sets the queue's channel buffer size.
func WithBufferSize(size int) Option {
	if size < 1 {
		size = 1
	}
	return func(c *config) {
		c.bufferSize = size
	}
}

// WithEnqueueTimeout sets how long Enqueue waits on a full queue before
// dropping.
func WithEnqueueTimeout(timeout time.Duration) Option {
	if timeout < minEnqueueTimeout {
		timeout = minEnqueueTimeout
	}
	return func(c *config) {
		c.enqueueTimeout = timeout
	}
}

// Queue is a bounded in-process dispatch queue.
type Queue struct {
	cfg  config
	ch   chan uuid.UUID
	done chan struct{}
}

// New creates a dispatch queue.
func New(opts ...Option) *Queue {
	cfg := config{
		bufferSize:     defaultBufferSize,
		enqueueTimeout: defaultEnqueueTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue{
		cfg:  cfg,
		ch:   make(chan uuid.UUID, cfg.bufferSize),
		done: make(chan struct{}),
	}
}

// Enqueue hands an upload id to the downstream processor. It returns without
// waiting for processing. If the queue stays full past the enqueue timeout
// the id is dropped and ErrQueueFull returned; the reattempt scan will
// re-issue it.
func (q *Queue) Enqueue(ctx context.Context, id uuid.UUID) error {
	select {
	case <-q.done:
		return ErrStopped
	default:
	}

	select {
	case q.ch <- id:
		return nil
	case <-q.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(q.cfg.enqueueTimeout):
		log.Warn(ctx).Str("upload_id", id.String()).Msg("dispatch: queue full, dropping")
		return ErrQueueFull
	}
}

// Receive returns the next dispatched upload id, blocking until one is
// available, the queue is stopped, or ctx is done.
func (q *Queue) Receive(ctx context.Context) (uuid.UUID, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-q.done:
		return uuid.Nil, ErrStopped
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Stop stops the queue. Pending ids are discarded.
func (q *Queue) Stop() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}
