package rest

import (
	"context"
	"net/http"
	"net/url"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

const (
	preferCount  = "count=exact"
	preferReturn = "return=representation"
	objectAccept = "application/vnd.pgrst.object+json"
)

func (p *Provider) resource(name string) *metadata.Resource {
	if p.registry == nil {
		return nil
	}
	return p.registry.GetResource(name)
}

func (p *Provider) tablePath(resource string) string {
	table := resource
	if res := p.resource(resource); res != nil {
		table = res.TableName()
	}
	return "/rest/v1/" + url.PathEscape(table)
}

func (p *Provider) filterValues(resource string, filter provider.Filter) (url.Values, error) {
	var search []string
	if res := p.resource(resource); res != nil {
		search = res.SearchFields
	}
	return filterQuery(filter, search)
}

func (p *Provider) list(ctx context.Context, resource string, filter provider.Filter, s provider.Sort, page provider.Pagination) (*provider.ListResult, error) {
	q, err := p.filterValues(resource, filter)
	if err != nil {
		return nil, err
	}
	q.Set("select", "*")
	orderQuery(q, s)
	pageQuery(q, page)

	resp, err := p.do(ctx, request{
		method:  http.MethodGet,
		path:    p.tablePath(resource),
		query:   q,
		headers: map[string]string{"Prefer": preferCount},
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRecords(resp.body)
	if err != nil {
		return nil, err
	}
	return &provider.ListResult{Data: rows, Total: totalFromContentRange(resp.header.Get("Content-Range"), len(rows))}, nil
}

func (p *Provider) GetList(ctx context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	return p.list(ctx, resource, params.Filter, params.Sort, params.Pagination)
}

func (p *Provider) GetOne(ctx context.Context, resource string, params provider.GetOneParams) (*provider.RecordResult, error) {
	q, err := filterQuery(provider.Filter{"id": params.ID}, nil)
	if err != nil {
		return nil, err
	}
	q.Set("select", "*")
	resp, err := p.do(ctx, request{
		method:  http.MethodGet,
		path:    p.tablePath(resource),
		query:   q,
		headers: map[string]string{"Accept": objectAccept},
	})
	if err != nil {
		return nil, err
	}
	row, err := decodeRecord(resp.body)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: row}, nil
}

func (p *Provider) GetMany(ctx context.Context, resource string, params provider.GetManyParams) (*provider.ListResult, error) {
	return p.list(ctx, resource, provider.Filter{"id@in": params.IDs}, provider.Sort{}, provider.Pagination{})
}

func (p *Provider) GetManyReference(ctx context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	filter := params.Filter.Clone()
	filter[params.Target] = params.ID
	return p.list(ctx, resource, filter, params.Sort, params.Pagination)
}

func (p *Provider) Create(ctx context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	resp, err := p.do(ctx, request{
		method:  http.MethodPost,
		path:    p.tablePath(resource),
		query:   url.Values{"select": {"*"}},
		body:    params.Data,
		headers: map[string]string{"Prefer": preferReturn, "Accept": objectAccept},
	})
	if err != nil {
		return nil, err
	}
	row, err := decodeRecord(resp.body)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: row}, nil
}

func (p *Provider) Update(ctx context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	rows, err := p.patch(ctx, resource, provider.Filter{"id": params.ID}, params.Data, true)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: rows[0]}, nil
}

func (p *Provider) UpdateMany(ctx context.Context, resource string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	rows, err := p.patch(ctx, resource, provider.Filter{"id@in": params.IDs}, params.Data, false)
	if err != nil {
		return nil, err
	}
	return &provider.IDsResult{Data: provider.IDsOf(rows)}, nil
}

func (p *Provider) Delete(ctx context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	rows, err := p.remove(ctx, resource, provider.Filter{"id": params.ID}, true)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: rows[0]}, nil
}

func (p *Provider) DeleteMany(ctx context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	rows, err := p.remove(ctx, resource, provider.Filter{"id@in": params.IDs}, false)
	if err != nil {
		return nil, err
	}
	return &provider.IDsResult{Data: provider.IDsOf(rows)}, nil
}

// UpdateWhere implements provider.FilterWriter.
func (p *Provider) UpdateWhere(ctx context.Context, resource string, filter provider.Filter, data provider.Record) ([]provider.Record, error) {
	return p.patch(ctx, resource, filter, data, false)
}

// DeleteWhere implements provider.FilterWriter.
func (p *Provider) DeleteWhere(ctx context.Context, resource string, filter provider.Filter) ([]provider.Record, error) {
	return p.remove(ctx, resource, filter, false)
}

// patch sends a PATCH for the rows matched by filter. single asks the
// backend for exactly one row, so zero matches surface as PGRST116.
func (p *Provider) patch(ctx context.Context, resource string, filter provider.Filter, data provider.Record, single bool) ([]provider.Record, error) {
	q, err := p.filterValues(resource, filter)
	if err != nil {
		return nil, err
	}
	q.Set("select", "*")
	headers := map[string]string{"Prefer": preferReturn}
	if single {
		headers["Accept"] = objectAccept
	}
	resp, err := p.do(ctx, request{method: http.MethodPatch, path: p.tablePath(resource), query: q, body: data, headers: headers})
	if err != nil {
		return nil, err
	}
	return writtenRows(resp.body, single)
}

func (p *Provider) remove(ctx context.Context, resource string, filter provider.Filter, single bool) ([]provider.Record, error) {
	q, err := p.filterValues(resource, filter)
	if err != nil {
		return nil, err
	}
	q.Set("select", "*")
	headers := map[string]string{"Prefer": preferReturn}
	if single {
		headers["Accept"] = objectAccept
	}
	resp, err := p.do(ctx, request{method: http.MethodDelete, path: p.tablePath(resource), query: q, headers: headers})
	if err != nil {
		return nil, err
	}
	return writtenRows(resp.body, single)
}

func writtenRows(body []byte, single bool) ([]provider.Record, error) {
	rows, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}
	if single && len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return rows, nil
}

// RPC implements provider.RPCInvoker.
func (p *Provider) RPC(ctx context.Context, fn string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := p.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + url.PathEscape(fn),
		body:   args,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON(resp.body)
}

// Invoke implements provider.FunctionInvoker.
func (p *Provider) Invoke(ctx context.Context, fn string, body any) (any, error) {
	if body == nil {
		body = map[string]any{}
	}
	resp, err := p.do(ctx, request{
		method: http.MethodPost,
		path:   "/functions/v1/" + url.PathEscape(fn),
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON(resp.body)
}

var (
	_ provider.DataProvider    = (*Provider)(nil)
	_ provider.FilterWriter    = (*Provider)(nil)
	_ provider.RPCInvoker      = (*Provider)(nil)
	_ provider.FunctionInvoker = (*Provider)(nil)
	_ provider.ObjectStorage   = (*Provider)(nil)
)
