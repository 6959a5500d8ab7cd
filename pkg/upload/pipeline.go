package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v9"

	"github.com/symdex/symdex/internal/kv"
	"github.com/symdex/symdex/internal/log"
	"github.com/symdex/symdex/internal/telemetry/metrics"
	"github.com/symdex/symdex/pkg/storage"
	"github.com/symdex/symdex/pkg/uploaddb"
)

// Dispatcher hands upload ids to the downstream archive processor,
// fire-and-forget.
type Dispatcher interface {
	Enqueue(ctx context.Context, id uuid.UUID) error
}

// BucketOverride routes one uploader identity, or a glob of identities, to a
// non-default bucket. Overrides are evaluated in declaration order.
type BucketOverride struct {
	Pattern string // exact email or glob, matched case-insensitively
	URL     string
}

// Config configures an Ingestor.
type Config struct {
	// DefaultURL is the bucket URL uploads go to unless an override matches.
	DefaultURL string
	// Overrides maps uploader emails (exact or glob) to bucket URLs.
	Overrides []BucketOverride
	// FilePrefix is an optional static prefix applied to every resolved
	// bucket.
	FilePrefix string
	// DisallowedSnippets rejects any archive member whose path contains one.
	DisallowedSnippets []string

	Staging    StagingBackend
	DB         uploaddb.Store
	Dispatcher Dispatcher
	Cache      kv.Store

	// ReattemptAge is both the minimum age of a stuck upload and the
	// throttle window for its re-dispatch.
	ReattemptAge time.Duration
	// ReattemptMaxAttempts stops re-dispatching an upload once its attempt
	// counter reaches this ceiling.
	ReattemptMaxAttempts int
	// DisableInlineReattempt turns off the stuck-upload scan that normally
	// runs after each successful ingestion, for deployments that run
	// RunReattempter on its own schedule instead.
	DisableInlineReattempt bool
}

// Request is one ingestion request. Content holds the full archive bytes;
// DownloadURL is set only for download-by-URL ingestion.
type Request struct {
	UserEmail   string
	Filename    string
	Size        int64
	Content     io.ReaderAt
	DownloadURL string
}

// Ingestor validates, stages, records and dispatches uploaded symbol
// archives.
type Ingestor struct {
	cfg Config
	now func() time.Time

	// exists probes a bucket; replaceable in tests.
	exists func(ctx context.Context, b *storage.Bucket) (bool, error)

	mu      sync.Mutex
	buckets map[string]*storage.Bucket // by URL; descriptors are cached so backend clients are reused
}

// NewIngestor creates an Ingestor, resolving the default and every override
// bucket URL up front. A URL that does not resolve is a
// *storage.ConfigurationError at startup, not at request time.
func NewIngestor(cfg Config) (*Ingestor, error) {
	ing := &Ingestor{
		cfg:     cfg,
		now:     time.Now,
		exists: func(ctx context.Context, b *storage.Bucket) (bool, error) {
			return b.Exists(ctx)
		},
		buckets: make(map[string]*storage.Bucket),
	}
	if _, err := ing.bucketForURL(cfg.DefaultURL); err != nil {
		return nil, err
	}
	for _, o := range cfg.Overrides {
		if _, err := path.Match(strings.ToLower(o.Pattern), "probe@example.com"); err != nil {
			return nil, &storage.ConfigurationError{
				Message: fmt.Sprintf("invalid bucket override pattern %q", o.Pattern),
				Err:     err,
			}
		}
		if _, err := ing.bucketForURL(o.URL); err != nil {
			return nil, err
		}
	}
	return ing, nil
}

func (ing *Ingestor) bucketForURL(rawurl string) (*storage.Bucket, error) {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	if b, ok := ing.buckets[rawurl]; ok {
		return b, nil
	}
	var opts []storage.Option
	if ing.cfg.FilePrefix != "" {
		opts = append(opts, storage.WithFilePrefix(ing.cfg.FilePrefix))
	}
	b, err := storage.ParseBucketURL(rawurl, opts...)
	if err != nil {
		return nil, err
	}
	ing.buckets[rawurl] = b
	return b, nil
}

// BucketForUser resolves the target bucket for an uploader: the first
// override whose pattern matches the email exactly, then the first glob match
// in declaration order, then the default.
func (ing *Ingestor) BucketForUser(email string) (*storage.Bucket, error) {
	email = strings.ToLower(email)

	url := ing.cfg.DefaultURL
	exact := false
	for _, o := range ing.cfg.Overrides {
		if strings.ToLower(o.Pattern) == email {
			url = o.URL
			exact = true
			break
		}
	}
	if !exact {
		for _, o := range ing.cfg.Overrides {
			if ok, _ := path.Match(strings.ToLower(o.Pattern), email); ok {
				url = o.URL
				break
			}
		}
	}
	return ing.bucketForURL(url)
}

// Ingest runs the full pipeline for one request: validate the listing,
// resolve and probe the target bucket, stage the bytes and create the Upload
// record atomically, then dispatch processing. On any rejection no record is
// left behind.
func (ing *Ingestor) Ingest(ctx context.Context, req *Request) (*uploaddb.Upload, error) {
	t0 := time.Now()
	defer func() {
		metrics.UploadArchiveSeconds.Observe(time.Since(t0).Seconds())
	}()

	if req.Content == nil {
		return nil, ing.reject("Must be multipart form data with at least one file")
	}
	if req.Size == 0 {
		return nil, ing.reject("File size 0")
	}

	members, err := GetArchiveMembers(req.Content, req.Size, req.Filename)
	if err != nil {
		switch err.(type) {
		case *UnsupportedArchiveError, *BadArchiveError:
			return nil, ing.reject(err.Error())
		}
		return nil, err
	}
	if err := CheckListing(members, ing.cfg.DisallowedSnippets); err != nil {
		metrics.RejectionsTotal.Inc()
		return nil, err
	}

	bucket, err := ing.BucketForUser(req.UserEmail)
	if err != nil {
		return nil, err
	}

	// The bucket must exist before anything is staged, even in filesystem
	// mode: the downstream processor will write the extracted symbols there.
	ok, err := ing.exists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &storage.ConfigurationError{Message: fmt.Sprintf(
			"bucket %q can not be found, connected with region=%q endpoint=%q",
			bucket.Name, bucket.Region, bucket.EndpointURL,
		)}
	}

	fingerprint := Fingerprint(members)
	key := StagingKey(ing.now().UTC().Format("2006-01-02"), fingerprint, req.Filename)
	loc := ing.cfg.Staging.Location(bucket, key)

	u := &uploaddb.Upload{
		UserEmail:         req.UserEmail,
		Filename:          req.Filename,
		Size:              req.Size,
		InboxKey:          null.NewString(loc.Key, loc.Key != ""),
		InboxFilepath:     null.NewString(loc.Filepath, loc.Filepath != ""),
		BucketName:        bucket.Name,
		BucketRegion:      null.NewString(bucket.Region, bucket.Region != ""),
		BucketEndpointURL: null.NewString(bucket.EndpointURL, bucket.EndpointURL != ""),
		DownloadURL:       null.NewString(req.DownloadURL, req.DownloadURL != ""),
	}

	// The record and the staged bytes appear together or not at all.
	err = ing.cfg.DB.Tx(ctx, func(ctx context.Context, tx uploaddb.Store) error {
		if err := tx.Create(ctx, u); err != nil {
			return err
		}
		body := io.NewSectionReader(req.Content, 0, req.Size)
		return ing.cfg.Staging.Stage(ctx, bucket, key, body, req.Size)
	})
	if err != nil {
		return nil, err
	}
	log.Info(ctx).
		Str("upload_id", u.ID.String()).
		Str("filename", u.Filename).
		Int64("size", u.Size).
		Msg("upload: record created")

	if err := ing.cfg.Dispatcher.Enqueue(ctx, u.ID); err != nil {
		// the reattempt scan will pick the upload back up
		log.Warn(ctx).Err(err).Str("upload_id", u.ID.String()).Msg("upload: dispatch failed")
	} else {
		metrics.DispatchesTotal.WithLabelValues("initial").Inc()
	}

	if !ing.cfg.DisableInlineReattempt {
		if err := ing.ReattemptStuck(ctx); err != nil {
			log.Warn(ctx).Err(err).Msg("upload: reattempt scan failed")
		}
	}
	return u, nil
}

func (ing *Ingestor) reject(reason string) error {
	metrics.RejectionsTotal.Inc()
	return &RejectionError{Reason: reason}
}
