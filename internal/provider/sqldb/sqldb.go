// Package sqldb is the relational base provider. It speaks PostgreSQL or
// SQLite through internal/store and runs procedures inside a transaction.
package sqldb

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"crm-backend/internal/metadata"
	"crm-backend/internal/procedures"
	"crm-backend/internal/provider"
	"crm-backend/internal/store"
)

// Provider reads and writes resource tables through database/sql.
type Provider struct {
	store    *store.Store
	registry *metadata.Registry
	log      logr.Logger
}

// New creates a provider over an open store. reg supplies table names,
// column types and search fields.
func New(s *store.Store, reg *metadata.Registry, log logr.Logger) *Provider {
	return &Provider{store: s, registry: reg, log: log.WithName("sqldb")}
}

func (p *Provider) resource(name string) *metadata.Resource {
	if p.registry == nil {
		return nil
	}
	if res := p.registry.GetResource(name); res != nil {
		return res
	}
	for _, res := range p.registry.AllResources() {
		if res.TableName() == name {
			return res
		}
	}
	return nil
}

func (p *Provider) mapError(err error) error {
	return store.MapError(p.store.Dialect, err)
}

// rows runs sqlStr and decodes every row against the resource's fields.
func (p *Provider) rows(ctx context.Context, q store.Querier, qy *query, sqlStr string) ([]provider.Record, error) {
	p.log.V(2).Info("query", "sql", sqlStr)
	raw, err := store.QueryRows(ctx, q, sqlStr, qy.pb.Params()...)
	if err != nil {
		return nil, p.mapError(err)
	}
	out := make([]provider.Record, len(raw))
	for i, r := range raw {
		out[i] = decodeRow(p.store.Dialect, qy.res, r)
	}
	return out, nil
}

func (p *Provider) find(ctx context.Context, q store.Querier, resource string, filter provider.Filter, s provider.Sort, page provider.Pagination) ([]provider.Record, error) {
	qy := p.newQuery(resource)
	sqlStr, err := qy.selectSQL(filter, s, page)
	if err != nil {
		return nil, err
	}
	return p.rows(ctx, q, qy, sqlStr)
}

func (p *Provider) count(ctx context.Context, q store.Querier, resource string, filter provider.Filter) (int, error) {
	qy := p.newQuery(resource)
	sqlStr, err := qy.countSQL(filter)
	if err != nil {
		return 0, err
	}
	row, err := store.QueryRow(ctx, q, sqlStr, qy.pb.Params()...)
	if err != nil {
		return 0, p.mapError(err)
	}
	switch n := row["count"].(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("count %s: unexpected type %T", resource, row["count"])
}

func (p *Provider) insert(ctx context.Context, q store.Querier, resource string, data provider.Record) (provider.Record, error) {
	row := data.Clone()
	if row == nil {
		row = provider.Record{}
	}
	if row["id"] == nil {
		delete(row, "id")
	}
	qy := p.newQuery(resource)
	sqlStr, err := qy.insertSQL(row)
	if err != nil {
		return nil, err
	}
	rows, err := p.rows(ctx, q, qy, sqlStr)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return rows[0], nil
}

func (p *Provider) update(ctx context.Context, q store.Querier, resource string, filter provider.Filter, data provider.Record) ([]provider.Record, error) {
	qy := p.newQuery(resource)
	sqlStr, err := qy.updateSQL(filter, data)
	if err != nil {
		return nil, err
	}
	return p.rows(ctx, q, qy, sqlStr)
}

func (p *Provider) remove(ctx context.Context, q store.Querier, resource string, filter provider.Filter) ([]provider.Record, error) {
	qy := p.newQuery(resource)
	sqlStr, err := qy.deleteSQL(filter)
	if err != nil {
		return nil, err
	}
	return p.rows(ctx, q, qy, sqlStr)
}

func (p *Provider) list(ctx context.Context, resource string, filter provider.Filter, s provider.Sort, page provider.Pagination) (*provider.ListResult, error) {
	rows, err := p.find(ctx, p.store.DB, resource, filter, s, page)
	if err != nil {
		return nil, err
	}
	total := len(rows)
	if page.PerPage > 0 {
		if total, err = p.count(ctx, p.store.DB, resource, filter); err != nil {
			return nil, err
		}
	}
	if err := p.attachViews(ctx, p.store.DB, resource, rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []provider.Record{}
	}
	return &provider.ListResult{Data: rows, Total: total}, nil
}

func (p *Provider) GetList(ctx context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	return p.list(ctx, resource, params.Filter, params.Sort, params.Pagination)
}

func (p *Provider) GetOne(ctx context.Context, resource string, params provider.GetOneParams) (*provider.RecordResult, error) {
	rows, err := p.find(ctx, p.store.DB, resource, provider.Filter{"id": params.ID}, provider.Sort{}, provider.Pagination{})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	if err := p.attachViews(ctx, p.store.DB, resource, rows[:1]); err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: rows[0]}, nil
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
	row, err := p.insert(ctx, p.store.DB, resource, params.Data)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: row}, nil
}

func (p *Provider) Update(ctx context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	rows, err := p.update(ctx, p.store.DB, resource, provider.Filter{"id": params.ID}, params.Data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return &provider.RecordResult{Data: rows[0]}, nil
}

func (p *Provider) UpdateMany(ctx context.Context, resource string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	rows, err := p.update(ctx, p.store.DB, resource, provider.Filter{"id@in": params.IDs}, params.Data)
	if err != nil {
		return nil, err
	}
	return &provider.IDsResult{Data: provider.IDsOf(rows)}, nil
}

func (p *Provider) Delete(ctx context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	rows, err := p.remove(ctx, p.store.DB, resource, provider.Filter{"id": params.ID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return &provider.RecordResult{Data: rows[0]}, nil
}

func (p *Provider) DeleteMany(ctx context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	rows, err := p.remove(ctx, p.store.DB, resource, provider.Filter{"id@in": params.IDs})
	if err != nil {
		return nil, err
	}
	return &provider.IDsResult{Data: provider.IDsOf(rows)}, nil
}

// UpdateWhere implements provider.FilterWriter.
func (p *Provider) UpdateWhere(ctx context.Context, resource string, filter provider.Filter, data provider.Record) ([]provider.Record, error) {
	return p.update(ctx, p.store.DB, resource, filter, data)
}

// DeleteWhere implements provider.FilterWriter.
func (p *Provider) DeleteWhere(ctx context.Context, resource string, filter provider.Filter) ([]provider.Record, error) {
	return p.remove(ctx, p.store.DB, resource, filter)
}

// RPC runs a registered procedure in one transaction. Any error rolls the
// whole procedure back.
func (p *Provider) RPC(ctx context.Context, fn string, args map[string]any) (any, error) {
	proc, ok := procedures.Lookup(fn)
	if !ok {
		return nil, procedures.UnknownProcedureError(fn)
	}

	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", fn, err)
	}
	defer tx.Rollback()

	out, err := proc(ctx, &txWriter{p: p, tx: tx}, args)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, p.mapError(fmt.Errorf("commit %s: %w", fn, err))
	}
	return out, nil
}

// txWriter adapts the provider's statements to procedures.Writer inside tx.
type txWriter struct {
	p  *Provider
	tx store.Querier
}

func (w *txWriter) Find(ctx context.Context, table string, filter provider.Filter) ([]provider.Record, error) {
	return w.p.find(ctx, w.tx, table, filter, provider.Sort{}, provider.Pagination{})
}

func (w *txWriter) Insert(ctx context.Context, table string, row provider.Record) (provider.Record, error) {
	return w.p.insert(ctx, w.tx, table, row)
}

func (w *txWriter) Update(ctx context.Context, table string, filter provider.Filter, row provider.Record) ([]provider.Record, error) {
	return w.p.update(ctx, w.tx, table, filter, row)
}

func (w *txWriter) Delete(ctx context.Context, table string, filter provider.Filter) ([]provider.Record, error) {
	return w.p.remove(ctx, w.tx, table, filter)
}

var (
	_ provider.DataProvider = (*Provider)(nil)
	_ provider.FilterWriter = (*Provider)(nil)
	_ provider.RPCInvoker   = (*Provider)(nil)
)
