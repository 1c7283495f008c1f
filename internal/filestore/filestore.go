// Package filestore keeps uploaded images on the local disk.
package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
)

const (
	// DefaultMaxSize is the largest accepted upload in bytes.
	DefaultMaxSize = 500 * 1000

	DefaultURLPrefix = "uploads/images"
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpeg",
}

// ErrOutsideStore is returned by Release for paths this store did not hand out.
var ErrOutsideStore = errors.New("path does not belong to the file store")

// Store saves images under dir and hands out paths of the form
// "<urlPrefix>/<uuid>.<ext>", which are also the paths they are served under.
type Store struct {
	dir       string
	urlPrefix string
	maxSize   int64
}

type Option func(*Store)

func WithMaxSize(maxSize int64) Option {
	return func(s *Store) {
		if maxSize > 0 {
			s.maxSize = maxSize
		}
	}
}

func WithURLPrefix(prefix string) Option {
	return func(s *Store) {
		s.urlPrefix = strings.Trim(prefix, "/")
	}
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:       dir,
		urlPrefix: DefaultURLPrefix,
		maxSize:   DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("in internal/filestore/filestore.go/New(): error while `os.MkdirAll()` calling: %w", err)
	}

	return s, nil
}

// Dir is the directory files are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// URLPrefix is the path prefix of every path returned by Save.
func (s *Store) URLPrefix() string {
	return s.urlPrefix
}

// MaxSize is the upload limit in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Save stores a png or jpeg image read from src. The content, not the
// client-supplied name or header, decides the type.
func (s *Store) Save(src io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(src, s.maxSize+1))
	if err != nil {
		return "", apperr.ValidationFailed("Could not read the uploaded file.")
	}
	if int64(len(data)) > s.maxSize {
		return "", apperr.ValidationFailed("File too large.")
	}

	detected := mimetype.Detect(data)
	ext, ok := allowedTypes[detected.String()]
	if !ok {
		return "", apperr.ValidationFailed("Invalid mime type!")
	}

	name := uuid.NewString() + ext
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", apperr.Persistence("Could not store the uploaded file.", err)
	}
	if _, err := io.Copy(dst, bytes.NewReader(data)); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", apperr.Persistence("Could not store the uploaded file.", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", apperr.Persistence("Could not store the uploaded file.", err)
	}

	return path.Join(s.urlPrefix, name), nil
}

// Release deletes a file previously returned by Save.
func (s *Store) Release(imagePath string) error {
	name, ok := strings.CutPrefix(path.Clean(imagePath), s.urlPrefix+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrOutsideStore, imagePath)
	}

	return os.Remove(filepath.Join(s.dir, name))
}
