package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

type captured struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   string
}

// backend records every request and answers with the next queued reply.
type backend struct {
	mu       sync.Mutex
	requests []captured
	replies  []reply
}

type reply struct {
	status  int
	body    string
	headers map[string]string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, captured{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	rep := reply{status: http.StatusOK, body: "[]"}
	if len(b.replies) > 0 {
		rep, b.replies = b.replies[0], b.replies[1:]
	}
	b.mu.Unlock()

	for k, v := range rep.headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_, _ = w.Write([]byte(rep.body))
}

func (b *backend) last(t *testing.T) captured {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.requests)
	return b.requests[len(b.requests)-1]
}

func (b *backend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newBackend(t *testing.T, maxRetries int, replies ...reply) (*Provider, *backend, *httptest.Server) {
	t.Helper()
	b := &backend{replies: replies}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	p, err := New(Config{URL: srv.URL + "/", APIKey: "anon-key", MaxRetries: maxRetries}, metadata.NewCRMRegistry(), testr.New(t))
	require.NoError(t, err)
	return p, b, srv
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Config{URL: "not a url"}, nil, testr.New(t))
	assert.Error(t, err)
	_, err = New(Config{URL: ""}, nil, testr.New(t))
	assert.Error(t, err)
}

func TestGetList(t *testing.T) {
	p, b, _ := newBackend(t, 0, reply{
		status:  http.StatusPartialContent,
		body:    `[{"id": 11, "name": "Acme", "score": 1.5}]`,
		headers: map[string]string{"Content-Range": "10-10/11"},
	})

	res, err := p.GetList(context.Background(), metadata.Organizations, provider.GetListParams{
		Filter:     provider.Filter{"sales_id": 4, "q": "acme", "deleted_at@is": nil},
		Sort:       provider.Sort{Field: "name", Order: "DESC"},
		Pagination: provider.Pagination{Page: 2, PerPage: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 11, res.Total)
	assert.Equal(t, []provider.Record{{"id": int64(11), "name": "Acme", "score": 1.5}}, res.Data)

	req := b.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/rest/v1/organizations", req.Path)
	assert.Equal(t, map[string][]string{
		"select":     {"*"},
		"sales_id":   {"eq.4"},
		"deleted_at": {"is.null"},
		"or":         {"(name.ilike.*acme*,city.ilike.*acme*,website.ilike.*acme*)"},
		"order":      {"name.desc"},
		"limit":      {"10"},
		"offset":     {"10"},
	}, req.Query)
	assert.Equal(t, "count=exact", req.Header.Get("Prefer"))
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", req.Header.Get("Authorization"))
}

func TestGetList_TotalFallsBackToRowCount(t *testing.T) {
	p, _, _ := newBackend(t, 0, reply{status: http.StatusOK, body: `[{"id":1},{"id":2}]`})
	res, err := p.GetMany(context.Background(), metadata.Tags, provider.GetManyParams{IDs: []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestGetOne_NotFound(t *testing.T) {
	p, b, _ := newBackend(t, 3, reply{
		status: http.StatusNotAcceptable,
		body:   `{"code":"PGRST116","message":"Cannot coerce the result to a single JSON object","details":"The result contains 0 rows"}`,
	})

	_, err := p.GetOne(context.Background(), metadata.Tags, provider.GetOneParams{ID: 9})
	assert.ErrorIs(t, err, provider.ErrNotFound)

	var dbErr *provider.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "The result contains 0 rows", dbErr.Details)

	assert.Equal(t, 1, b.count(), "client errors are not retried")
	req := b.last(t)
	assert.Equal(t, []string{"eq.9"}, req.Query["id"])
	assert.Equal(t, objectAccept, req.Header.Get("Accept"))
}

func TestRead_RetriesServerErrors(t *testing.T) {
	p, b, _ := newBackend(t, 1,
		reply{status: http.StatusServiceUnavailable, body: "upstream down"},
		reply{status: http.StatusOK, body: `{"id": 1, "name": "VIP"}`},
	)

	res, err := p.GetOne(context.Background(), metadata.Tags, provider.GetOneParams{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "VIP", res.Data["name"])
	assert.Equal(t, 2, b.count())
}

func TestWrite_IsNotRetried(t *testing.T) {
	p, b, _ := newBackend(t, 3, reply{status: http.StatusBadGateway, body: ""})

	_, err := p.Create(context.Background(), metadata.Tags, provider.CreateParams{Data: provider.Record{"name": "VIP"}})
	var dbErr *provider.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "HTTP 502: Bad Gateway", dbErr.Message)
	assert.Equal(t, 1, b.count())
}

func TestCreate(t *testing.T) {
	p, b, _ := newBackend(t, 0, reply{status: http.StatusCreated, body: `{"id": 3, "name": "VIP", "color": "gold"}`})

	res, err := p.Create(context.Background(), metadata.Tags, provider.CreateParams{Data: provider.Record{"name": "VIP", "color": "gold"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Data["id"])

	req := b.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "return=representation", req.Header.Get("Prefer"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"name": "VIP", "color": "gold"}`, req.Body)
}

func TestUpdateAndDelete(t *testing.T) {
	p, b, _ := newBackend(t, 0,
		reply{status: http.StatusOK, body: `[{"id": 3, "color": "red"}]`},
		reply{status: http.StatusOK, body: `[]`},
		reply{status: http.StatusOK, body: `[{"id": 1}, {"id": 2}]`},
		reply{status: http.StatusOK, body: `[{"id": 4}]`},
	)
	ctx := context.Background()

	up, err := p.Update(ctx, metadata.Tags, provider.UpdateParams{ID: 3, Data: provider.Record{"color": "red"}})
	require.NoError(t, err)
	assert.Equal(t, "red", up.Data["color"])
	req := b.last(t)
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, []string{"eq.3"}, req.Query["id"])
	assert.Equal(t, objectAccept, req.Header.Get("Accept"))

	_, err = p.Delete(ctx, metadata.Tags, provider.DeleteParams{ID: 3})
	assert.ErrorIs(t, err, provider.ErrNotFound)

	gone, err := p.DeleteMany(ctx, metadata.Tags, provider.DeleteManyParams{IDs: []any{1, "2"}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, gone.Data)
	req = b.last(t)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, []string{"in.(1,2)"}, req.Query["id"])
	assert.Empty(t, req.Header.Get("Accept"))

	rows, err := p.UpdateWhere(ctx, metadata.Activities,
		provider.Filter{"opportunity_id": 5, "deleted_at@is": nil},
		provider.Record{"deleted_at": "2025-11-13T09:30:00Z"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	req = b.last(t)
	assert.Equal(t, "/rest/v1/activities", req.Path)
	assert.Equal(t, []string{"eq.5"}, req.Query["opportunity_id"])
}

func TestRPCAndInvoke(t *testing.T) {
	p, b, _ := newBackend(t, 0,
		reply{status: http.StatusOK, body: `{"id": 5, "version": 2, "products": [{"id": 1}]}`},
		reply{status: http.StatusOK, body: `{"ok": true}`},
		reply{status: http.StatusNotFound, body: `{"code":"PGRST202","message":"Could not find the function"}`},
	)
	ctx := context.Background()

	out, err := p.RPC(ctx, "sync_opportunity_with_products", map[string]any{"expected_version": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id": int64(5), "version": int64(2), "products": []any{map[string]any{"id": int64(1)}},
	}, out)
	req := b.last(t)
	assert.Equal(t, "/rest/v1/rpc/sync_opportunity_with_products", req.Path)
	assert.JSONEq(t, `{"expected_version": 1}`, req.Body)

	out, err = p.Invoke(ctx, "merge_contacts", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)
	assert.Equal(t, "/functions/v1/merge_contacts", b.last(t).Path)
	assert.Equal(t, "{}", b.last(t).Body)

	_, err = p.RPC(ctx, "missing", nil)
	var dbErr *provider.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "PGRST202", dbErr.Code)
}

func TestStorage(t *testing.T) {
	p, b, srv := newBackend(t, 0,
		reply{status: http.StatusOK, body: `{"Key": "attachments/notes/a.txt"}`},
		reply{status: http.StatusOK, body: `hello`},
		reply{status: http.StatusOK, body: `[]`},
	)
	ctx := context.Background()

	key, err := p.Upload(ctx, "attachments", "/notes/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "attachments/notes/a.txt", key)
	req := b.last(t)
	assert.Equal(t, "/storage/v1/object/attachments/notes/a.txt", req.Path)
	assert.Equal(t, "hello", req.Body)
	assert.Equal(t, "true", req.Header.Get("x-upsert"))

	rc, err := p.Download(ctx, "attachments", "notes/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, p.Remove(ctx, "attachments", "notes/a.txt"))
	var body map[string][]string
	require.NoError(t, json.Unmarshal([]byte(b.last(t).Body), &body))
	assert.Equal(t, []string{"notes/a.txt"}, body["prefixes"])
	require.NoError(t, p.Remove(ctx, "attachments"))
	assert.Equal(t, 3, b.count(), "removing nothing makes no request")

	assert.Equal(t, srv.URL+"/storage/v1/object/public/attachments/notes/a.txt", p.PublicURL("attachments", "/notes/a.txt"))
}

func TestCondition(t *testing.T) {
	cases := []struct {
		op   string
		want any
		out  string
	}{
		{"eq", "won", "eq.won"},
		{"eq", nil, "is.null"},
		{"neq", nil, "not.is.null"},
		{"neq", 4.0, "neq.4"},
		{"gte", "2025-01-01", "gte.2025-01-01"},
		{"ilike", "%acme%", "ilike.*acme*"},
		{"in", []any{"a,b", 2}, `in.("a,b",2)`},
		{"in", "1, 2", "in.(1,2)"},
		{"is", true, "is.true"},
		{"is", "NULL", "is.null"},
		{"cs", []any{1, 2}, "cs.[1,2]"},
	}
	for _, tc := range cases {
		got, err := condition(tc.op, tc.want)
		require.NoError(t, err, tc.op)
		assert.Equal(t, tc.out, got, tc.op)
	}

	_, err := condition("is", "maybe")
	assert.Error(t, err)
	_, err = condition("between", 1)
	assert.Error(t, err)

	_, err = filterQuery(provider.Filter{"id@between": 1}, nil)
	assert.ErrorContains(t, err, "filter id@between")
}

func TestTotalFromContentRange(t *testing.T) {
	assert.Equal(t, 573, totalFromContentRange("0-24/573", 25))
	assert.Equal(t, 0, totalFromContentRange("*/0", 3))
	assert.Equal(t, 3, totalFromContentRange("0-2/*", 3))
	assert.Equal(t, 3, totalFromContentRange("", 3))
}
