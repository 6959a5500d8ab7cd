// Package api exposes the archive ingestion endpoint. Authentication is the
// fronting proxy's job: requests arrive with the uploader's identity in the
// X-Forwarded-Email header, and anything without one is rejected.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/symdex/symdex/internal/httputil"
	"github.com/symdex/symdex/internal/log"
	"github.com/symdex/symdex/pkg/storage"
	"github.com/symdex/symdex/pkg/upload"
	"github.com/symdex/symdex/pkg/uploaddb"
)

// identityHeader carries the authenticated uploader's email, set by the
// fronting auth proxy.
const identityHeader = "X-Forwarded-Email"

// maxMultipartMemory bounds how much of a parsed form is held in memory;
// larger uploads spill to disk.
const maxMultipartMemory = 64 << 20

// Ingestor accepts uploaded archives into the processing pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, req *upload.Request) (*uploaddb.Upload, error)
}

// Config configures the API server.
type Config struct {
	Ingestor Ingestor
	// AllowDownloadDomains are the hosts upload-by-download URLs may point
	// at. Empty disables upload by download.
	AllowDownloadDomains []string
	// HTTPClient fetches upload-by-download URLs. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Server is the ingestion HTTP API.
type Server struct {
	cfg Config
}

// New creates the API server and its router.
func New(cfg Config) (*Server, http.Handler) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	srv := &Server{cfg: cfg}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", httputil.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/upload/", handler(srv.uploadArchive)).Methods(http.MethodPost)
	return srv, r
}

// handler adapts an error-returning handler, translating pipeline errors to
// status codes: rejections are the client's fault, everything else is ours.
type handler func(w http.ResponseWriter, r *http.Request) error

func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h(w, r)
	if err == nil {
		return
	}

	var httpErr *httputil.HTTPError
	if !errors.As(err, &httpErr) {
		var rejection *upload.RejectionError
		var cfgErr *storage.ConfigurationError
		switch {
		case errors.As(err, &rejection):
			httpErr = &httputil.HTTPError{Status: http.StatusBadRequest, Err: rejection}
		case errors.As(err, &cfgErr):
			// deployment misconfiguration, not a per-request condition
			log.Error().Err(cfgErr).Msg("api: fatal storage configuration error")
			httpErr = &httputil.HTTPError{Status: http.StatusInternalServerError, Err: cfgErr}
		default:
			log.Error().Err(err).Str("path", r.URL.Path).Msg("api: request failed")
			httpErr = &httputil.HTTPError{Status: http.StatusInternalServerError, Err: err}
		}
	}
	httpErr.ErrorResponse(w, r)
}

// requesterEmail extracts the authenticated identity, or fails with 401.
func requesterEmail(r *http.Request) (string, error) {
	email := r.Header.Get(identityHeader)
	if email == "" {
		return "", httputil.NewError(http.StatusUnauthorized, errors.New("authentication required"))
	}
	return email, nil
}
