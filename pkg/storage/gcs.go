package storage

import (
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// gcsAPI is the subset of the GCS client the bucket handle uses.
type gcsAPI interface {
	BucketAttrs(ctx context.Context, name string) error
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
}

type gcsClient struct {
	c *gcs.Client
}

func (g gcsClient) BucketAttrs(ctx context.Context, name string) error {
	_, err := g.c.Bucket(name).Attrs(ctx)
	return err
}

func (g gcsClient) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	w := g.c.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *Bucket) gcsClientHandle(ctx context.Context) (gcsAPI, error) {
	b.mu.Lock()
	c := b.gcsc
	b.mu.Unlock()
	if c != nil {
		return c, nil
	}

	v, err, _ := b.sf.Do("gcs", func() (any, error) {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		handle := gcsClient{c: client}
		b.mu.Lock()
		b.gcsc = handle
		b.mu.Unlock()
		return gcsAPI(handle), nil
	})
	if err != nil {
		return nil, &StorageError{Bucket: b, Err: err}
	}
	return v.(gcsAPI), nil
}

func (b *Bucket) gcsExists(ctx context.Context) (bool, error) {
	client, err := b.gcsClientHandle(ctx)
	if err != nil {
		return false, err
	}
	err = client.BucketAttrs(ctx, b.Name)
	if err == nil {
		return true, nil
	}
	if gcsIsNotFound(err) {
		return false, nil
	}
	return false, &StorageError{Bucket: b, Err: err}
}

func (b *Bucket) gcsPut(ctx context.Context, key string, body io.Reader) error {
	client, err := b.gcsClientHandle(ctx)
	if err != nil {
		return err
	}
	if err := client.Upload(ctx, b.Name, key, body); err != nil {
		return &StorageError{Bucket: b, Err: err}
	}
	return nil
}

func gcsIsNotFound(err error) bool {
	if errors.Is(err, gcs.ErrBucketNotExist) || errors.Is(err, gcs.ErrObjectNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404
	}
	return false
}
