package api

import (
	"net/http"
	"time"

	"github.com/volatiletech/null/v9"

	"github.com/symdex/symdex/internal/httputil"
	"github.com/symdex/symdex/pkg/upload"
	"github.com/symdex/symdex/pkg/uploaddb"
)

// uploadResponse is the success payload of the ingestion endpoint.
type uploadResponse struct {
	Upload serializedUpload `json:"upload"`
}

type serializedUpload struct {
	ID          string      `json:"id"`
	Size        int64       `json:"size"`
	Filename    string      `json:"filename"`
	Bucket      string      `json:"bucket"`
	Region      null.String `json:"region"`
	DownloadURL null.String `json:"download_url"`
	CompletedAt null.Time   `json:"completed_at"`
	CreatedAt   time.Time   `json:"created_at"`
	User        string      `json:"user"`
	SkippedKeys []string    `json:"skipped_keys"`
}

func serializeUpload(u *uploaddb.Upload) serializedUpload {
	skipped := u.SkippedKeys
	if skipped == nil {
		skipped = []string{}
	}
	return serializedUpload{
		ID:          u.ID.String(),
		Size:        u.Size,
		Filename:    u.Filename,
		Bucket:      u.BucketName,
		Region:      u.BucketRegion,
		DownloadURL: u.DownloadURL,
		CompletedAt: u.CompletedAt,
		CreatedAt:   u.CreatedAt,
		User:        u.UserEmail,
		SkippedKeys: skipped,
	}
}

// uploadArchive handles POST /upload/: either a multipart file or an
// upload-by-download `url` form value.
func (s *Server) uploadArchive(w http.ResponseWriter, r *http.Request) error {
	email, err := requesterEmail(r)
	if err != nil {
		return err
	}

	req, cleanup, err := s.ingestRequest(r)
	if err != nil {
		return err
	}
	defer cleanup()
	req.UserEmail = email

	u, err := s.cfg.Ingestor.Ingest(r.Context(), req)
	if err != nil {
		return err
	}

	httputil.RenderJSON(w, http.StatusCreated, uploadResponse{Upload: serializeUpload(u)})
	return nil
}

// ingestRequest extracts the archive from the request: the first uploaded
// file if any, otherwise a validated download URL.
func (s *Server) ingestRequest(r *http.Request) (*upload.Request, func(), error) {
	noop := func() {}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil && err != http.ErrNotMultipart {
		return nil, noop, &upload.RejectionError{
			Reason: "Must be multipart form data with at least one file",
		}
	}

	if r.MultipartForm != nil {
		for _, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			fh := headers[0]
			f, err := fh.Open()
			if err != nil {
				return nil, noop, err
			}
			return &upload.Request{
				Filename: fh.Filename,
				Size:     fh.Size,
				Content:  f,
			}, func() { _ = f.Close() }, nil
		}
	}

	if rawurl := r.FormValue("url"); rawurl != "" {
		req, err := s.downloadUpload(r.Context(), rawurl)
		return req, noop, err
	}

	return nil, noop, &upload.RejectionError{
		Reason: "Must be multipart form data with at least one file",
	}
}
