package provider

import (
	"context"
	"io"
)

type storageAttached struct {
	DataProvider
	storage ObjectStorage
}

// WithStorage attaches an ObjectStorage capability to p.
func WithStorage(p DataProvider, s ObjectStorage) DataProvider {
	return &storageAttached{DataProvider: p, storage: s}
}

func (s *storageAttached) Unwrap() DataProvider { return s.DataProvider }

func (s *storageAttached) Upload(ctx context.Context, bucket, path string, r io.Reader) (string, error) {
	return s.storage.Upload(ctx, bucket, path, r)
}

func (s *storageAttached) Download(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	return s.storage.Download(ctx, bucket, path)
}

func (s *storageAttached) Remove(ctx context.Context, bucket string, paths ...string) error {
	return s.storage.Remove(ctx, bucket, paths...)
}

func (s *storageAttached) PublicURL(bucket, path string) string {
	return s.storage.PublicURL(bucket, path)
}
