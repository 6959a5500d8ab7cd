package storage

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	s3Domain  = "s3.amazonaws.com"
	gcsDomain = "storage.googleapis.com"
)

var s3RegionDomain = regexp.MustCompile(`^s3-([a-z0-9-]+)\.amazonaws\.com$`)

// testS3Hosts are explicit opt-in hosts treated as the test-s3 backend.
var testS3Hosts = map[string]bool{
	"s3.example.com": true,
}

// recognizedRegions is the static table of S3 region codes accepted in
// region-pinned bucket URLs.
var recognizedRegions = map[string]bool{
	"us-east-1":      true,
	"us-east-2":      true,
	"us-west-1":      true,
	"us-west-2":      true,
	"ca-central-1":   true,
	"eu-west-1":      true,
	"eu-west-2":      true,
	"eu-west-3":      true,
	"eu-central-1":   true,
	"eu-north-1":     true,
	"ap-northeast-1": true,
	"ap-northeast-2": true,
	"ap-southeast-1": true,
	"ap-southeast-2": true,
	"ap-south-1":     true,
	"sa-east-1":      true,
}

// Option configures ParseBucketURL.
type Option func(*parseConfig)

type parseConfig struct {
	filePrefix string
}

// WithFilePrefix appends a static prefix to the URL-derived prefix, joined
// with "/".
func WithFilePrefix(prefix string) Option {
	return func(cfg *parseConfig) {
		cfg.filePrefix = prefix
	}
}

// ParseBucketURL resolves a bucket configuration URL into a Bucket
// descriptor. It is a pure parse: no I/O happens until the first Exists or
// Put call. Every syntactically valid URL maps to exactly one backend or the
// parse fails with a *ConfigurationError.
func ParseBucketURL(rawurl string, opts ...Option) (*Bucket, error) {
	var cfg parseConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("invalid bucket URL %q", rawurl), Err: err}
	}

	b := &Bucket{
		Private:     u.Query().Get("access") != "public",
		scrubbedURL: ScrubCredentials(rawurl),
	}

	host := u.Hostname()
	switch {
	case u.Port() != "" && !strings.HasSuffix(host, ".amazonaws.com") && host != gcsDomain:
		// non-cloud host with a port: a local S3 emulator
		b.Backend = BackendEmulatedS3
		b.EndpointURL = u.Scheme + "://" + u.Host
	case host == gcsDomain:
		b.Backend = BackendGCS
		// the full original URL, query included, credentials stripped
		b.EndpointURL = b.scrubbedURL
	case host == s3Domain:
		b.Backend = BackendS3
	case s3RegionDomain.MatchString(host):
		region := s3RegionDomain.FindStringSubmatch(host)[1]
		if !recognizedRegions[region] {
			return nil, &ConfigurationError{Message: fmt.Sprintf("unrecognized S3 region %q in %q", region, b.scrubbedURL)}
		}
		b.Backend = BackendS3
		b.Region = region
	case testS3Hosts[host]:
		b.Backend = BackendTestS3
		b.EndpointURL = u.Scheme + "://" + u.Host
	default:
		return nil, &ConfigurationError{Message: fmt.Sprintf("no storage backend for %q", b.scrubbedURL)}
	}

	b.Name, b.Prefix = splitBucketPath(u.Path)
	if b.Name == "" {
		return nil, &ConfigurationError{Message: fmt.Sprintf("no bucket name in %q", b.scrubbedURL)}
	}
	if cfg.filePrefix != "" {
		if b.Prefix != "" {
			b.Prefix += "/" + cfg.filePrefix
		} else {
			b.Prefix = cfg.filePrefix
		}
	}

	b.BaseURL = u.Scheme + "://" + u.Host + "/" + b.Name
	return b, nil
}

// splitBucketPath splits a URL path into the bucket name (first segment) and
// the remaining prefix, both without leading or trailing slashes.
func splitBucketPath(p string) (name, prefix string) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", ""
	}
	name, prefix, _ = strings.Cut(p, "/")
	return name, strings.Trim(prefix, "/")
}
