// Package upload stores patient document photos on the local filesystem
// and serves them under a public prefix.
package upload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes is the largest accepted document photo.
const DefaultMaxBytes = 5 << 20

// PublicPrefix is the URL prefix stored photos are served under.
const PublicPrefix = "/uploads/"

var (
	// ErrTooLarge is returned when the upload exceeds the size limit.
	ErrTooLarge = errors.New("upload: file too large")
	// ErrNotJPEG is returned when the content is not a JPEG image.
	ErrNotJPEG = errors.New("upload: only JPG images are allowed")
)

// Store saves uploads in a directory.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the directory if needed. A non-positive maxBytes
// means DefaultMaxBytes.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("upload: resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create %q: %w", abs, err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{dir: abs, maxBytes: maxBytes}, nil
}

// MaxBytes returns the size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// SaveJPEG sniffs r, requires a JPEG within the size limit, writes it under
// a random name and returns its public path (/uploads/<name>.jpg). Nothing
// is left on disk when it fails.
func (s *Store) SaveJPEG(r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 3072)
	head, err := br.Peek(3072)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("upload: read: %w", err)
	}
	if !mimetype.Detect(head).Is("image/jpeg") {
		return "", ErrNotJPEG
	}

	name := uuid.NewString() + ".jpg"
	full := filepath.Join(s.dir, name)
	dst, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("upload: create: %w", err)
	}

	n, err := io.Copy(dst, io.LimitReader(br, s.maxBytes+1))
	closeErr := dst.Close()
	switch {
	case err != nil:
		_ = os.Remove(full)
		return "", fmt.Errorf("upload: write: %w", err)
	case n > s.maxBytes:
		_ = os.Remove(full)
		return "", ErrTooLarge
	case closeErr != nil:
		_ = os.Remove(full)
		return "", fmt.Errorf("upload: close: %w", closeErr)
	}
	return PublicPrefix + name, nil
}

// Delete removes a file by its public path. Unknown paths are ignored.
func (s *Store) Delete(publicPath string) error {
	name := path.Base(strings.TrimPrefix(publicPath, PublicPrefix))
	if name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Handler serves stored files. Mount it under PublicPrefix with the prefix
// stripped.
func (s *Store) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}
