// Package config loads and validates the service configuration from a file
// and SYMDEX_-prefixed environment variables.
package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/symdex/symdex/internal/log"
	"github.com/symdex/symdex/pkg/storage"
)

// envPrefix namespaces the environment variables that override config file
// settings, e.g. SYMDEX_DATABASE_URL.
const envPrefix = "SYMDEX"

// UploadException routes uploads from one identity, or a glob of identities,
// to a non-default bucket. Exceptions apply in declaration order.
type UploadException struct {
	// Pattern is an email address or a glob of email addresses, matched
	// case-insensitively.
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// Options are the configurable knobs of the service.
type Options struct {
	// Address is the TCP address the HTTP server listens on.
	Address string `mapstructure:"address" yaml:"address,omitempty"`
	// LogLevel sets the minimum zerolog level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level,omitempty"`

	// UploadDefaultURL is the storage URL uploads go to unless an exception
	// matches the uploader.
	UploadDefaultURL string `mapstructure:"upload_default_url" yaml:"upload_default_url,omitempty"`
	// UploadURLExceptions reroute specific uploaders to other buckets.
	UploadURLExceptions []UploadException `mapstructure:"upload_url_exceptions" yaml:"upload_url_exceptions,omitempty"`
	// UploadFilePrefix is an optional static key prefix, e.g. "v1", applied
	// to every resolved bucket.
	UploadFilePrefix string `mapstructure:"upload_file_prefix" yaml:"upload_file_prefix,omitempty"`
	// UploadInboxDirectory switches staging to the local filesystem. Empty
	// means archives are staged in the target bucket itself.
	UploadInboxDirectory string `mapstructure:"upload_inbox_directory" yaml:"upload_inbox_directory,omitempty"`
	// DisallowedSymbolsSnippets rejects any archive whose member paths
	// contain one of these substrings.
	DisallowedSymbolsSnippets []string `mapstructure:"disallowed_symbols_snippets" yaml:"disallowed_symbols_snippets,omitempty"`

	// ReattemptAgeSeconds is both the minimum age of a stuck upload and the
	// throttle window for its re-dispatch.
	ReattemptAgeSeconds int `mapstructure:"reattempt_age_seconds" yaml:"reattempt_age_seconds,omitempty"`
	// ReattemptMaxAttempts stops re-dispatching an upload once its attempt
	// counter reaches this ceiling.
	ReattemptMaxAttempts int `mapstructure:"reattempt_max_attempts" yaml:"reattempt_max_attempts,omitempty"`
	// ReattemptInline runs the stuck-upload scan after each successful
	// ingestion. Disable it to run the scan only on its periodic schedule.
	ReattemptInline bool `mapstructure:"reattempt_inline" yaml:"reattempt_inline,omitempty"`

	// AllowDownloadDomains are the hosts upload-by-download URLs may point
	// at. Empty disables upload by download.
	AllowDownloadDomains []string `mapstructure:"allow_download_domains" yaml:"allow_download_domains,omitempty"`

	// CacheURL is a redis:// URL for the reattempt throttle. Empty selects
	// an in-process cache.
	CacheURL string `mapstructure:"cache_url" yaml:"cache_url,omitempty"`
	// DatabaseURL is a postgres:// DSN for the upload record store. Empty
	// selects an in-memory store, which only makes sense for development.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url,omitempty"`
}

var defaultOptions = Options{
	Address:              ":8000",
	LogLevel:             "info",
	ReattemptAgeSeconds:  3600,
	ReattemptMaxAttempts: 3,
	ReattemptInline:      true,
}

// configKeys enumerates the settings bound to environment variables.
var configKeys = []string{
	"address",
	"log_level",
	"upload_default_url",
	"upload_file_prefix",
	"upload_inbox_directory",
	"disallowed_symbols_snippets",
	"reattempt_age_seconds",
	"reattempt_max_attempts",
	"reattempt_inline",
	"allow_download_domains",
	"cache_url",
	"database_url",
}

// NewDefaultOptions returns a copy of the default options. It's the caller's
// responsibility to do a follow up Validate call.
func NewDefaultOptions() *Options {
	newOpts := defaultOptions
	return &newOpts
}

// NewOptionsFromConfig builds the configuration options by parsing
// environment variables and an optional config file.
func NewOptionsFromConfig(configFile string) (*Options, error) {
	o := NewDefaultOptions()
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: failed to bind %s to env: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %q: %w", configFile, err)
		}
	}

	var metadata mapstructure.Metadata
	if err := v.Unmarshal(o, func(c *mapstructure.DecoderConfig) { c.Metadata = &metadata }); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	for _, key := range metadata.Unused {
		log.Error().Str("config-file", configFile).Str("key", key).Msg("config: unknown key")
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation error: %w", err)
	}
	return o, nil
}

// Validate ensures the Options are usable, resolving every storage URL so a
// bad bucket configuration fails at startup rather than at request time.
func (o *Options) Validate() error {
	if o.UploadDefaultURL == "" {
		return fmt.Errorf("upload_default_url is required")
	}

	var storageOpts []storage.Option
	if o.UploadFilePrefix != "" {
		storageOpts = append(storageOpts, storage.WithFilePrefix(o.UploadFilePrefix))
	}
	if _, err := storage.ParseBucketURL(o.UploadDefaultURL, storageOpts...); err != nil {
		return fmt.Errorf("upload_default_url: %w", err)
	}
	for _, exc := range o.UploadURLExceptions {
		if exc.Pattern == "" {
			return fmt.Errorf("upload_url_exceptions: empty pattern")
		}
		if _, err := path.Match(strings.ToLower(exc.Pattern), "probe@example.com"); err != nil {
			return fmt.Errorf("upload_url_exceptions: bad pattern %q: %w", exc.Pattern, err)
		}
		if _, err := storage.ParseBucketURL(exc.URL, storageOpts...); err != nil {
			return fmt.Errorf("upload_url_exceptions[%q]: %w", exc.Pattern, err)
		}
	}

	if o.ReattemptAgeSeconds <= 0 {
		return fmt.Errorf("reattempt_age_seconds must be positive")
	}
	if o.ReattemptMaxAttempts <= 0 {
		return fmt.Errorf("reattempt_max_attempts must be positive")
	}

	if o.CacheURL != "" {
		u, err := url.Parse(o.CacheURL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return fmt.Errorf("cache_url must be a redis:// or rediss:// URL")
		}
	}
	return nil
}

// ReattemptAge is the configured reattempt window as a duration.
func (o *Options) ReattemptAge() time.Duration {
	return time.Duration(o.ReattemptAgeSeconds) * time.Second
}
