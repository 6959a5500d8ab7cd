package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symdex/symdex/pkg/upload"
	"github.com/symdex/symdex/pkg/uploaddb"
)

type fakeIngestor struct {
	req    *upload.Request
	upload *uploaddb.Upload
	err    error
}

func (f *fakeIngestor) Ingest(_ context.Context, req *upload.Request) (*uploaddb.Upload, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	if f.upload != nil {
		return f.upload, nil
	}
	return &uploaddb.Upload{
		ID:         uuid.New(),
		UserEmail:  req.UserEmail,
		Filename:   req.Filename,
		Size:       req.Size,
		BucketName: "symbols-default",
		CreatedAt:  time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}, nil
}

func newTestServer(t *testing.T, mutate func(*Config)) (*fakeIngestor, http.Handler) {
	t.Helper()
	ing := &fakeIngestor{}
	cfg := Config{Ingestor: ing}
	if mutate != nil {
		mutate(&cfg)
	}
	_, h := New(cfg)
	return ing, h
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(filename, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postUpload(t *testing.T, h http.Handler, email string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	if email != "" {
		req.Header.Set(identityHeader, email)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()

	ing, h := newTestServer(t, nil)
	body, contentType := multipartBody(t, "symbols.zip", []byte("zip bytes"))

	rec := postUpload(t, h, "dev@example.com", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.NotNil(t, ing.req)
	assert.Equal(t, "dev@example.com", ing.req.UserEmail)
	assert.Equal(t, "symbols.zip", ing.req.Filename)
	assert.Equal(t, int64(len("zip bytes")), ing.req.Size)
	assert.Empty(t, ing.req.DownloadURL)

	var payload struct {
		Upload map[string]any `json:"upload"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "symbols.zip", payload.Upload["filename"])
	assert.Equal(t, "symbols-default", payload.Upload["bucket"])
	assert.Equal(t, "dev@example.com", payload.Upload["user"])
	assert.Equal(t, float64(len("zip bytes")), payload.Upload["size"])
	assert.Equal(t, []any{}, payload.Upload["skipped_keys"])
	assert.Nil(t, payload.Upload["completed_at"])
	assert.NotEmpty(t, payload.Upload["id"])
}

func TestUpload_MissingIdentity(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	body, contentType := multipartBody(t, "symbols.zip", []byte("zip bytes"))

	rec := postUpload(t, h, "", body, contentType)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload["error"], "authentication required")
}

func TestUpload_RejectionIsBadRequest(t *testing.T) {
	t.Parallel()

	ing, h := newTestServer(t, nil)
	ing.err = &upload.RejectionError{Reason: "File size 0"}
	body, contentType := multipartBody(t, "symbols.zip", []byte("zip bytes"))

	rec := postUpload(t, h, "dev@example.com", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "File size 0", payload["error"])
}

func TestUpload_PipelineFailureIsServerError(t *testing.T) {
	t.Parallel()

	ing, h := newTestServer(t, nil)
	ing.err = errors.New("database unavailable")
	body, contentType := multipartBody(t, "symbols.zip", []byte("zip bytes"))

	rec := postUpload(t, h, "dev@example.com", body, contentType)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUpload_NoFileOrURL(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("note", "no file here"))
	require.NoError(t, w.Close())

	rec := postUpload(t, h, "dev@example.com", &buf, w.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "Must be multipart form data with at least one file", payload["error"])
}

func TestUpload_ByDownloadURL(t *testing.T) {
	t.Parallel()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("downloaded zip bytes"))
	}))
	t.Cleanup(origin.Close)
	originHost := hostOf(t, origin.URL)

	ing, h := newTestServer(t, func(cfg *Config) {
		cfg.AllowDownloadDomains = []string{originHost}
	})

	form := url.Values{"url": {origin.URL + "/builds/symbols.zip"}}
	rec := postUpload(t, h, "dev@example.com",
		bytes.NewBuffer([]byte(form.Encode())), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NotNil(t, ing.req)
	assert.Equal(t, "symbols.zip", ing.req.Filename)
	assert.Equal(t, int64(len("downloaded zip bytes")), ing.req.Size)
	assert.Equal(t, origin.URL+"/builds/symbols.zip", ing.req.DownloadURL)
}

func TestUpload_DownloadURLRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("eventually"))
	}))
	t.Cleanup(origin.Close)

	_, h := newTestServer(t, func(cfg *Config) {
		cfg.AllowDownloadDomains = []string{hostOf(t, origin.URL)}
		cfg.HTTPClient = origin.Client()
	})

	form := url.Values{"url": {origin.URL + "/symbols.zip"}}
	rec := postUpload(t, h, "dev@example.com",
		bytes.NewBuffer([]byte(form.Encode())), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, calls)
}

func TestUpload_DownloadURLClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(origin.Close)

	_, h := newTestServer(t, func(cfg *Config) {
		cfg.AllowDownloadDomains = []string{hostOf(t, origin.URL)}
	})

	form := url.Values{"url": {origin.URL + "/missing.zip"}}
	rec := postUpload(t, h, "dev@example.com",
		bytes.NewBuffer([]byte(form.Encode())), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, calls, "4xx responses are not retried")
}

func TestUpload_DownloadURLDisallowedDomain(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, func(cfg *Config) {
		cfg.AllowDownloadDomains = []string{"downloads.example.com"}
	})

	form := url.Values{"url": {"https://evil.example.net/symbols.zip"}}
	rec := postUpload(t, h, "dev@example.com",
		bytes.NewBuffer([]byte(form.Encode())), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, `Not an allowed domain ("evil.example.net") to download from.`, payload["error"])
}

func TestUpload_DownloadURLInvalid(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	form := url.Values{"url": {"ftp://example.com/symbols.zip"}}
	rec := postUpload(t, h, "dev@example.com",
		bytes.NewBuffer([]byte(form.Encode())), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "Not a valid URL (ftp://example.com/symbols.zip)", payload["error"])
}

func TestUpload_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/upload/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusOK), rec.Body.String())
}

func TestSerializeUpload(t *testing.T) {
	t.Parallel()

	u := &uploaddb.Upload{
		ID:         uuid.New(),
		UserEmail:  "dev@example.com",
		Filename:   "symbols.zip",
		Size:       42,
		BucketName: "symbols-default",
	}
	s := serializeUpload(u)
	assert.Equal(t, u.ID.String(), s.ID)
	assert.NotNil(t, s.SkippedKeys, "nil skipped keys serialize as an empty list")
	assert.Empty(t, s.SkippedKeys)
}

func hostOf(t *testing.T, rawurl string) string {
	t.Helper()
	u, err := url.Parse(rawurl)
	require.NoError(t, err)
	return u.Hostname()
}
