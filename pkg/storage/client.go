package storage

import (
	"context"
	"io"
)

// Exists probes the bucket with a lightweight metadata call. It returns false
// when the backend reports the bucket does not exist, true on success, and a
// *StorageError on any authorization or transport failure: absence and
// inaccessibility are distinct outcomes.
//
// A positive probe is cached on the descriptor, so steady-state callers pay
// for at most one probe per descriptor lifetime. A bucket cannot come back
// from "missing" without an operator fixing configuration, so the cache is
// never invalidated.
func (b *Bucket) Exists(ctx context.Context) (bool, error) {
	if b.knownGood.Load() {
		return true, nil
	}

	var ok bool
	var err error
	switch b.Backend {
	case BackendGCS:
		ok, err = b.gcsExists(ctx)
	default:
		ok, err = b.s3Exists(ctx)
	}
	if ok {
		b.knownGood.Store(true)
	}
	return ok, err
}

// Put uploads body under key, with the bucket's prefix applied. size is the
// exact content length. Failures surface as *StorageError.
func (b *Bucket) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	key = b.ObjectKey(key)
	switch b.Backend {
	case BackendGCS:
		return b.gcsPut(ctx, key, body)
	default:
		return b.s3Put(ctx, key, body, size)
	}
}
