// Package photos stores household photos on the local filesystem.
package photos

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("photo must be a PNG or JPEG image")
	ErrTooLarge        = errors.New("photo exceeds the upload limit")
	ErrInvalidName     = errors.New("invalid photo name")
)

var allowed = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// Store writes photos into Dir under random names
type Store struct {
	Dir      string
	MaxBytes int64
}

// NewStore creates dir if needed
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Store{Dir: dir, MaxBytes: maxBytes}, nil
}

// Save reads an image from r, checks its content type and writes it as
// <uuid hex><ext>. It returns the stored file name.
func (s *Store) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > s.MaxBytes {
		return "", ErrTooLarge
	}

	ext, ok := allowed[mimetype.Detect(data).String()]
	if !ok {
		return "", ErrUnsupportedType
	}

	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	return name, nil
}

// Open returns the photo called name together with its content type
func (s *Store) Open(name string) (io.ReadSeekCloser, string, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open photo: %w", err)
	}

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	mtype := mimetype.Detect(head[:n]).String()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("rewind photo: %w", err)
	}
	return f, mtype, nil
}

// Remove deletes the photo called name. A missing file is not an error.
func (s *Store) Remove(name string) error {
	if name == "" {
		return nil
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove photo: %w", err)
	}
	return nil
}

// Exists reports whether a photo called name is stored
func (s *Store) Exists(name string) bool {
	path, err := s.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.Dir, name), nil
}
