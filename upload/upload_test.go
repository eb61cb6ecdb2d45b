package upload_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/intake/upload"
)

// jpegHeader is the start of a JFIF file, enough for content sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

func jpeg(size int) []byte {
	b := make([]byte, size)
	copy(b, jpegHeader)
	return b
}

func TestSaveJPEG(t *testing.T) {
	dir := t.TempDir()
	s, err := upload.NewStore(dir, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5<<20, s.MaxBytes())

	p, err := s.SaveJPEG(bytes.NewReader(jpeg(1024)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "/uploads/"))
	assert.True(t, strings.HasSuffix(p, ".jpg"))

	info, err := os.Stat(filepath.Join(dir, strings.TrimPrefix(p, "/uploads/")))
	require.NoError(t, err)
	assert.EqualValues(t, 1024, info.Size())
}

func TestSaveJPEG_RejectsOtherTypes(t *testing.T) {
	dir := t.TempDir()
	s, err := upload.NewStore(dir, 0)
	require.NoError(t, err)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = s.SaveJPEG(bytes.NewReader(png))
	assert.True(t, errors.Is(err, upload.ErrNotJPEG))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestSaveJPEG_TooLarge(t *testing.T) {
	dir := t.TempDir()
	s, err := upload.NewStore(dir, 4096)
	require.NoError(t, err)

	_, err = s.SaveJPEG(bytes.NewReader(jpeg(4097)))
	assert.True(t, errors.Is(err, upload.ErrTooLarge))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "oversized upload must not be left on disk")

	_, err = s.SaveJPEG(bytes.NewReader(jpeg(4096)))
	assert.NoError(t, err)
}

func TestDeleteAndServe(t *testing.T) {
	s, err := upload.NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	p, err := s.SaveJPEG(bytes.NewReader(jpeg(64)))
	require.NoError(t, err)

	srv := http.StripPrefix("/uploads", s.Handler())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 64, rec.Body.Len())

	require.NoError(t, s.Delete(p))
	require.NoError(t, s.Delete(p), "deleting twice is not an error")

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
