package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid storage path")

// LocalStorage stores attachment objects on the local filesystem under
// basePath/<bucket>/<path>.
type LocalStorage struct {
	basePath  string
	publicURL string
}

// NewLocalStorage creates a store rooted at basePath. publicURL is the
// prefix served for downloads, for example "/storage".
func NewLocalStorage(basePath, publicURL string) *LocalStorage {
	return &LocalStorage{basePath: basePath, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *LocalStorage) resolve(bucket, path string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(s.basePath, bucket, clean), nil
}

// Upload writes r to bucket/path and returns the object key.
func (s *LocalStorage) Upload(_ context.Context, bucket, path string, r io.Reader) (string, error) {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return bucket + "/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+path)), "/"), nil
}

func (s *LocalStorage) Download(_ context.Context, bucket, path string) (io.ReadCloser, error) {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Remove deletes the objects. Missing objects are ignored.
func (s *LocalStorage) Remove(_ context.Context, bucket string, paths ...string) error {
	for _, p := range paths {
		full, err := s.resolve(bucket, p)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove file: %w", err)
		}
		// Try to remove the parent dir if it is now empty
		_ = os.Remove(filepath.Dir(full))
	}
	return nil
}

func (s *LocalStorage) PublicURL(bucket, path string) string {
	return s.publicURL + "/" + url.PathEscape(bucket) + "/" + strings.TrimPrefix(path, "/")
}
