package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/symdex/symdex/internal/log"
	"github.com/symdex/symdex/pkg/upload"
)

// maxDownloadAttempts bounds the retries of one upload-by-download fetch.
const maxDownloadAttempts = 3

// downloadUpload validates and fetches an upload-by-download URL, producing
// an ingestion request whose filename derives from the URL path.
func (s *Server) downloadUpload(ctx context.Context, rawurl string) (*upload.Request, error) {
	u, err := url.Parse(rawurl)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &upload.RejectionError{Reason: fmt.Sprintf("Not a valid URL (%s)", rawurl)}
	}
	if !s.downloadDomainAllowed(u.Hostname()) {
		return nil, &upload.RejectionError{
			Reason: fmt.Sprintf("Not an allowed domain (%q) to download from.", u.Hostname()),
		}
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("download returned %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxDownloadAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, &upload.RejectionError{
			Reason: fmt.Sprintf("Failed to download %s: %s", rawurl, err),
		}
	}

	filename := path.Base(u.Path)
	log.Info(ctx).
		Str("url", rawurl).
		Str("filename", filename).
		Int("size", len(body)).
		Msg("api: downloaded archive for upload")

	return &upload.Request{
		Filename:    filename,
		Size:        int64(len(body)),
		Content:     bytes.NewReader(body),
		DownloadURL: rawurl,
	}, nil
}

func (s *Server) downloadDomainAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, domain := range s.cfg.AllowDownloadDomains {
		if host == strings.ToLower(domain) {
			return true
		}
	}
	return false
}
