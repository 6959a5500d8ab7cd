package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/symdex/symdex/internal/log"
	"github.com/symdex/symdex/internal/telemetry/metrics"
	"github.com/symdex/symdex/pkg/storage"
)

// Location is where an upload's raw bytes were staged. Exactly one field is
// set, depending on the deployment's staging mode.
type Location struct {
	Filepath string
	Key      string
}

// StagingBackend persists an uploaded archive's raw bytes pending
// processing. The deployment picks one implementation at startup; requests
// never switch modes.
type StagingBackend interface {
	// Location returns the staging location that will be recorded on the
	// Upload row for the given key.
	Location(bucket *storage.Bucket, key string) Location
	// Stage writes body at the location derived from key.
	Stage(ctx context.Context, bucket *storage.Bucket, key string, body io.Reader, size int64) error
}

// FilesystemStaging stages uploads under a local (possibly network-mounted)
// inbox directory.
type FilesystemStaging struct {
	Dir string

	// sleep and visible are replaceable in tests.
	sleep   func(time.Duration)
	visible func(path string) bool
}

// NewFilesystemStaging creates a filesystem staging backend rooted at dir.
func NewFilesystemStaging(dir string) *FilesystemStaging {
	return &FilesystemStaging{Dir: dir, sleep: time.Sleep, visible: fileExists}
}

// Location returns the inbox file path for key.
func (f *FilesystemStaging) Location(_ *storage.Bucket, key string) Location {
	return Location{Filepath: filepath.Join(f.Dir, filepath.FromSlash(key))}
}

// Stage writes the archive to the inbox directory, then polls for its visible
// existence with linearly increasing sleeps. On a network mount the write may
// not be immediately visible; after four extra attempts we proceed anyway
// rather than block the upload indefinitely.
func (f *FilesystemStaging) Stage(ctx context.Context, bucket *storage.Bucket, key string, body io.Reader, size int64) error {
	dst := f.Location(bucket, key).Filepath
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("staging: create inbox directory: %w", err)
	}

	t0 := time.Now()
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("staging: create inbox file: %w", err)
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("staging: write inbox file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("staging: close inbox file: %w", err)
	}
	elapsed := time.Since(t0)
	metrics.StoreSeconds.WithLabelValues("filesystem").Observe(elapsed.Seconds())
	log.Info(ctx).
		Str("path", dst).
		Int64("size", size).
		Dur("elapsed", elapsed).
		Msg("upload: stored archive in inbox directory")

	for attempts := 1; !f.visible(dst); attempts++ {
		f.sleep(time.Duration(attempts) * time.Second)
		log.Info(ctx).
			Str("path", dst).
			Int("attempts", attempts).
			Msg("upload: inbox file not visible yet, retrying")
		if attempts >= 4 {
			break
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ObjectStoreStaging stages uploads directly in the resolved bucket under the
// staging key.
type ObjectStoreStaging struct{}

// NewObjectStoreStaging creates an object-store staging backend.
func NewObjectStoreStaging() *ObjectStoreStaging {
	return &ObjectStoreStaging{}
}

// Location returns the object key for the staged archive.
func (o *ObjectStoreStaging) Location(bucket *storage.Bucket, key string) Location {
	return Location{Key: bucket.ObjectKey(key)}
}

// Stage uploads the archive to the bucket.
func (o *ObjectStoreStaging) Stage(ctx context.Context, bucket *storage.Bucket, key string, body io.Reader, size int64) error {
	t0 := time.Now()
	if err := bucket.Put(ctx, key, body, size); err != nil {
		return err
	}
	elapsed := time.Since(t0)
	metrics.StoreSeconds.WithLabelValues("object-store").Observe(elapsed.Seconds())
	log.Info(ctx).
		Str("bucket", bucket.Name).
		Str("key", key).
		Int64("size", size).
		Dur("elapsed", elapsed).
		Msg("upload: uploaded archive to inbox")
	return nil
}
