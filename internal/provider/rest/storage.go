package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func objectPath(bucket, path string) string {
	return "/storage/v1/object/" + bucket + "/" + strings.TrimPrefix(path, "/")
}

// Upload implements provider.ObjectStorage. Existing objects are replaced.
func (p *Provider) Upload(ctx context.Context, bucket, path string, r io.Reader) (string, error) {
	resp, err := p.do(ctx, request{
		method: http.MethodPost,
		path:   objectPath(bucket, path),
		raw:    r,
		headers: map[string]string{
			"Content-Type": "application/octet-stream",
			"x-upsert":     "true",
		},
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Key string `json:"Key"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.Key == "" {
		return bucket + "/" + strings.TrimPrefix(path, "/"), nil
	}
	return out.Key, nil
}

// Download implements provider.ObjectStorage.
func (p *Provider) Download(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	resp, err := p.do(ctx, request{method: http.MethodGet, path: objectPath(bucket, path)})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(resp.body)), nil
}

// Remove implements provider.ObjectStorage.
func (p *Provider) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := p.do(ctx, request{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + bucket,
		body:   map[string]any{"prefixes": paths},
	})
	if err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	return nil
}

// PublicURL implements provider.ObjectStorage.
func (p *Provider) PublicURL(bucket, path string) string {
	return p.base.String() + "/storage/v1/object/public/" + bucket + "/" + strings.TrimPrefix(path, "/")
}
