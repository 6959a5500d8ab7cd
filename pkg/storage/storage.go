// Package storage resolves bucket configuration URLs into typed backend
// descriptors and provides uniform access to the object storage backends
// symdex can stage symbol archives in.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/aws/smithy-go"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/googleapi"
)

// Backend identifies the object storage API flavor a bucket URL resolved to.
type Backend string

const (
	// BackendS3 is Amazon S3, host-addressed, with or without a pinned region.
	BackendS3 Backend = "s3"
	// BackendEmulatedS3 is an S3-compatible server reached over an explicit
	// endpoint, e.g. a local MinIO or localstack.
	BackendEmulatedS3 Backend = "emulated-s3"
	// BackendTestS3 is an explicit opt-in test host, used by the test suites.
	BackendTestS3 Backend = "test-s3"
	// BackendGCS is Google Cloud Storage. The bucket is path-addressed and the
	// endpoint carries the full original URL for API compatibility.
	BackendGCS Backend = "gcs"
)

// Bucket is the resolved descriptor for one bucket configuration URL. It is
// immutable after ParseBucketURL; the embedded backend clients are constructed
// lazily on first use and cached for the descriptor's lifetime.
type Bucket struct {
	Backend     Backend
	BaseURL     string // scheme://host/bucket, credentials stripped
	EndpointURL string // non-empty only for emulated, test and gcs backends
	Name        string
	Prefix      string
	Private     bool
	Region      string

	// full original URL with credentials scrubbed, for error messages
	scrubbedURL string

	sf        singleflight.Group
	mu        sync.Mutex
	s3c       s3API
	gcsc      gcsAPI
	knownGood atomic.Bool
}

func (b *Bucket) String() string {
	return fmt.Sprintf("<Bucket name=%q backend=%q region=%q endpoint=%q>",
		b.Name, b.Backend, b.Region, b.EndpointURL)
}

// ObjectKey returns key with the bucket's prefix applied.
func (b *Bucket) ObjectKey(key string) string {
	if b.Prefix == "" {
		return key
	}
	return b.Prefix + "/" + key
}

// ConfigurationError indicates a bucket URL that cannot be resolved, or a
// resolved bucket that does not exist. Both are deployment misconfigurations
// and are never retried.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "storage: " + e.Message + ": " + e.Err.Error()
	}
	return "storage: " + e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// StorageError wraps an authorization or transport failure from a storage
// backend. It carries the backend name, the scrubbed URL and the native error.
type StorageError struct {
	Bucket *Bucket
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s backend (%s) raised %s: %s",
		e.Bucket.Backend, e.Bucket.scrubbedURL, errorKind(e.Err), e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// errorKind names the class of a backend error: the API error code where the
// backend supplies one, the Go type otherwise.
func errorKind(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		return apiErr.ErrorCode()
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return fmt.Sprintf("googleapi.Error(%d)", gErr.Code)
	}
	return fmt.Sprintf("%T", err)
}

// ScrubCredentials removes the userinfo component from a URL, leaving the rest
// untouched. Invalid URLs are returned as-is.
func ScrubCredentials(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	u.User = nil
	return u.String()
}
