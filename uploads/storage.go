// Package uploads stores profile pictures on disk. File names never come
// from user input: stored assets are renamed to "<owner>_<uuid><ext>" so a
// hostile filename cannot escape the upload root or collide with another
// account's picture.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxFileSize bounds accepted uploads.
const MaxFileSize = 5 << 20

// ErrFileTooLarge rejects uploads over MaxFileSize.
var ErrFileTooLarge = errors.New("the file is too large, the maximum size is 5MB")

// ErrUnsupportedType rejects extensions outside the allow-list.
var ErrUnsupportedType = errors.New("unsupported file type, use jpg, jpeg, png or gif")

// ErrEmptyFile rejects zero-byte uploads.
var ErrEmptyFile = errors.New("the uploaded file is empty")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Storage writes uploaded assets under a single root directory and hands
// back web paths for the stored files.
type Storage struct {
	root    string
	baseURL string
	maxSize int64
}

func NewStorage(root string) *Storage {
	return &Storage{
		root:    root,
		baseURL: "/uploads",
		maxSize: MaxFileSize,
	}
}

// WithBaseURL sets the public path prefix returned for stored files.
func (s *Storage) WithBaseURL(base string) *Storage {
	if base != "" {
		s.baseURL = strings.TrimRight(base, "/")
	}
	return s
}

func (s *Storage) WithMaxSize(max int64) *Storage {
	if max > 0 {
		s.maxSize = max
	}
	return s
}

// Validate checks the original filename and size against the allow-list
// before any bytes hit the disk.
func (s *Storage) Validate(filename string, size int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > s.maxSize {
		return ErrFileTooLarge
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return ErrUnsupportedType
	}

	return nil
}

// Save stores the asset under a generated name and returns its web path.
func (s *Storage) Save(owner string, filename string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create upload root: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	name := fmt.Sprintf("%s_%s%s", owner, uuid.New(), ext)

	target := filepath.Join(s.root, name)
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, io.LimitReader(r, s.maxSize)); err != nil {
		f.Close()
		os.Remove(target)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	return path.Join(s.baseURL, name), nil
}

// Remove deletes a previously stored asset by its web path. Paths outside
// the upload root are ignored.
func (s *Storage) Remove(webPath string) error {
	name := path.Base(webPath)
	if name == "." || name == "/" || name == "" {
		return nil
	}

	err := os.Remove(filepath.Join(s.root, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload file: %w", err)
	}

	return nil
}
