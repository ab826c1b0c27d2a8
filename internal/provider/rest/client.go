// Package rest is the base provider for a hosted PostgREST backend. Tables
// live under /rest/v1, procedures under /rest/v1/rpc, functions under
// /functions/v1 and blobs under /storage/v1.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// Config holds the connection settings of the backend.
type Config struct {
	URL        string
	APIKey     string
	RateLimit  float64 // requests per second; 0 disables the limiter
	RateBurst  int
	MaxRetries int
	Timeout    time.Duration
}

// Provider talks to the backend over HTTP.
type Provider struct {
	base       *url.URL
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	registry   *metadata.Registry
	log        logr.Logger
}

// New validates cfg and builds a provider. reg maps resource names to tables
// and supplies search fields; it may be nil.
func New(cfg Config, reg *metadata.Registry, log logr.Logger) (*Provider, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Provider{
		base:       base,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: uint64(retries),
		registry:   reg,
		log:        log.WithName("rest"),
	}, nil
}

// request describes one HTTP call. Only GETs are retried.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	raw     io.Reader
	headers map[string]string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (p *Provider) do(ctx context.Context, req request) (*response, error) {
	if req.method == http.MethodGet {
		var out *response
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries), ctx)
		err := backoff.RetryNotify(func() error {
			resp, err := p.once(ctx, req)
			if err != nil {
				return err
			}
			out = resp
			return nil
		}, policy, func(err error, wait time.Duration) {
			p.log.V(1).Info("retrying read", "path", req.path, "wait", wait.String(), "error", err.Error())
		})
		return out, err
	}
	resp, err := p.once(ctx, req)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return resp, perm.Err
	}
	return resp, err
}

// once performs a single attempt. Errors that retrying cannot fix are
// wrapped in backoff.Permanent.
func (p *Provider) once(ctx context.Context, req request) (*response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
	}

	u := *p.base
	u.Path = p.base.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader = req.raw
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("encode body: %w", err))
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if p.apiKey != "" {
		httpReq.Header.Set("apikey", p.apiKey)
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer httpResp.Body.Close()
	b, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.path, err)
	}

	resp := &response{status: httpResp.StatusCode, header: httpResp.Header, body: b}
	if httpResp.StatusCode >= 400 {
		apiErr := decodeError(httpResp.StatusCode, b)
		if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
			return resp, apiErr
		}
		return resp, backoff.Permanent(apiErr)
	}
	return resp, nil
}

// decodeError reads the backend's {code, message, details, hint} body.
func decodeError(status int, body []byte) error {
	var dbErr provider.DBError
	if err := json.Unmarshal(body, &dbErr); err == nil && (dbErr.Code != "" || dbErr.Message != "") {
		return &dbErr
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &provider.DBError{Message: fmt.Sprintf("HTTP %d: %s", status, msg)}
}

// decodeJSON unmarshals b keeping integers exact.
func decodeJSON(b []byte) (any, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return normalizeNumbers(v), nil
}

// normalizeNumbers replaces json.Number with int64 or float64.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, x := range t {
			t[k] = normalizeNumbers(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = normalizeNumbers(x)
		}
		return t
	}
	return v
}

func decodeRecords(b []byte) ([]provider.Record, error) {
	v, err := decodeJSON(b)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok && v != nil {
		list = []any{v}
	}
	out := make([]provider.Record, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode response: expected object, got %T", item)
		}
		out = append(out, provider.Record(m))
	}
	return out, nil
}

func decodeRecord(b []byte) (provider.Record, error) {
	rows, err := decodeRecords(b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return rows[0], nil
}
