// Package upload stages incoming files on disk for the lifetime of a single
// request.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes transient uploads into one directory, created on demand.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// File is a staged upload. Remove deletes it and is safe to call twice.
type File struct {
	Path         string
	OriginalName string
	Size         int64
}

func (f *File) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	err := os.Remove(f.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Stage copies src into a uniquely named file. Only the extension of
// originalName is kept so client-supplied names never reach the filesystem.
func (s *Store) Stage(src io.Reader, originalName string) (*File, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.dir, uuid.New().String()+safeExt(originalName))
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return nil, fmt.Errorf("write upload file: %w", copyErr)
		}
		return nil, fmt.Errorf("close upload file: %w", closeErr)
	}

	return &File{Path: path, OriginalName: originalName, Size: n}, nil
}

// Process stages src, hands its path to fn and removes the file on every
// exit path, including a panic in fn.
func (s *Store) Process(src io.Reader, originalName string, fn func(f *File) error) (err error) {
	f, err := s.Stage(src, originalName)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := f.Remove(); rmErr != nil && err == nil {
			err = fmt.Errorf("remove upload file: %w", rmErr)
		}
	}()

	return fn(f)
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 8 {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
