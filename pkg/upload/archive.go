package upload

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Member is one entry of an uploaded archive's file listing.
type Member struct {
	Name string
	Size int64
}

// UnsupportedArchiveError is returned for archive file extensions the
// ingestion endpoint does not accept.
type UnsupportedArchiveError struct {
	Ext string
}

func (e *UnsupportedArchiveError) Error() string {
	return fmt.Sprintf("Unrecognized archive file extension %q", e.Ext)
}

// BadArchiveError is returned when an archive with a supported extension
// cannot be read.
type BadArchiveError struct {
	Err error
}

func (e *BadArchiveError) Error() string {
	return "File is not a zip file: " + e.Err.Error()
}

func (e *BadArchiveError) Unwrap() error { return e.Err }

// GetArchiveMembers extracts the member listing of an uploaded archive
// without decompressing member contents. Directory entries are skipped.
func GetArchiveMembers(r io.ReaderAt, size int64, filename string) ([]Member, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".zip" {
		return nil, &UnsupportedArchiveError{Ext: ext}
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &BadArchiveError{Err: err}
	}

	members := make([]Member, 0, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		members = append(members, Member{
			Name: f.Name,
			Size: int64(f.UncompressedSize64),
		})
	}
	return members, nil
}
