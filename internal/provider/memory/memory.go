// Package memory is an in-process base provider. Tables live in maps guarded
// by one RWMutex; procedures run against a snapshot that is discarded on error.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crm-backend/internal/metadata"
	"crm-backend/internal/procedures"
	"crm-backend/internal/provider"
)

type table struct {
	rows []provider.Record
	seq  int64
}

func (t *table) clone() *table {
	out := &table{rows: make([]provider.Record, len(t.rows)), seq: t.seq}
	for i, r := range t.rows {
		out.rows[i] = r.Clone()
	}
	return out
}

// Provider keeps every table in memory.
type Provider struct {
	mu       sync.RWMutex
	tables   map[string]*table
	registry *metadata.Registry
	now      func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock sets the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates an empty provider. reg supplies table names, composite keys,
// search fields and required columns; it may be nil.
func New(reg *metadata.Registry, opts ...Option) *Provider {
	p := &Provider{
		tables:   make(map[string]*table),
		registry: reg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Seed inserts rows as-is, keeping their ids.
func (p *Provider) Seed(resource string, rows ...provider.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range rows {
		if _, err := p.insert(p.tables, resource, r, false); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns copies of all rows of a resource's table, deleted ones included.
func (p *Provider) Rows(resource string) []provider.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t := p.tables[p.tableName(resource)]
	if t == nil {
		return nil
	}
	out := make([]provider.Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
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

func (p *Provider) tableName(resource string) string {
	if res := p.resource(resource); res != nil {
		return res.TableName()
	}
	return resource
}

// table returns the table, creating it. Callers hold the write lock.
func (p *Provider) table(tables map[string]*table, resource string) *table {
	name := p.tableName(resource)
	t := tables[name]
	if t == nil {
		t = &table{}
		tables[name] = t
	}
	return t
}

// lookup returns the table without creating it. Read paths hold only the
// read lock and must not write to the map.
func (p *Provider) lookup(tables map[string]*table, resource string) *table {
	if t := tables[p.tableName(resource)]; t != nil {
		return t
	}
	return &table{}
}

func (p *Provider) find(tables map[string]*table, resource string, filter provider.Filter) ([]provider.Record, error) {
	var search []string
	if res := p.resource(resource); res != nil {
		search = res.SearchFields
	}
	t := p.lookup(tables, resource)
	var out []provider.Record
	for _, r := range t.rows {
		ok, err := matches(r, filter, search)
		if err != nil {
			return nil, &provider.DBError{Code: "42883", Message: err.Error()}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *Provider) stamp() string {
	return p.now().UTC().Format(time.RFC3339)
}

func (p *Provider) insert(tables map[string]*table, resource string, data provider.Record, stamp bool) (provider.Record, error) {
	res := p.resource(resource)
	t := p.table(tables, resource)
	row := data.Clone()
	if row == nil {
		row = provider.Record{}
	}

	if res != nil {
		for _, f := range res.Fields {
			if f.Required && f.Name != "id" && row[f.Name] == nil {
				return nil, &provider.DBError{
					Code:    "23502",
					Message: fmt.Sprintf(`null value in column "%s" of relation "%s" violates not-null constraint`, f.Name, res.TableName()),
					Details: "Failing row contains null values.",
				}
			}
		}
	}

	if res != nil && res.HasCompositeKey() {
		key := provider.Filter{}
		var cols, vals []string
		for _, k := range res.CompositeKey {
			key[k] = row[k]
			cols = append(cols, k)
			vals = append(vals, provider.IDString(row[k]))
		}
		existing, err := p.find(tables, resource, key)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, &provider.DBError{
				Code:    "23505",
				Message: fmt.Sprintf(`duplicate key value violates unique constraint "%s_pkey"`, res.TableName()),
				Details: fmt.Sprintf("Key (%s)=(%s) already exists.", strings.Join(cols, ", "), strings.Join(vals, ", ")),
			}
		}
	} else {
		if row["id"] == nil {
			t.seq++
			row["id"] = t.seq
		} else {
			if n, ok := number(row["id"]); ok && int64(n) > t.seq {
				t.seq = int64(n)
			}
			for _, r := range t.rows {
				if provider.SameID(r["id"], row["id"]) {
					return nil, &provider.DBError{
						Code:    "23505",
						Message: fmt.Sprintf(`duplicate key value violates unique constraint "%s_pkey"`, p.tableName(resource)),
						Details: fmt.Sprintf(`Key (id)=(%s) already exists.`, provider.IDString(row["id"])),
					}
				}
			}
		}
	}

	if stamp && (res == nil || res.HasField("created_at")) {
		if row["created_at"] == nil {
			row["created_at"] = p.stamp()
		}
		if row["updated_at"] == nil {
			row["updated_at"] = row["created_at"]
		}
	}

	t.rows = append(t.rows, row)
	return row.Clone(), nil
}

func (p *Provider) update(tables map[string]*table, resource string, filter provider.Filter, data provider.Record) ([]provider.Record, error) {
	matched, err := p.find(tables, resource, filter)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Record, 0, len(matched))
	for _, row := range matched {
		for k, v := range data {
			if k == "id" {
				continue
			}
			row[k] = v
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

func (p *Provider) remove(tables map[string]*table, resource string, filter provider.Filter) ([]provider.Record, error) {
	t := p.table(tables, resource)
	var search []string
	if res := p.resource(resource); res != nil {
		search = res.SearchFields
	}
	kept := make([]provider.Record, 0, len(t.rows))
	var removed []provider.Record
	for _, r := range t.rows {
		ok, err := matches(r, filter, search)
		if err != nil {
			return nil, &provider.DBError{Code: "42883", Message: err.Error()}
		}
		if ok {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return removed, nil
}

func (p *Provider) list(resource string, filter provider.Filter, sort provider.Sort, page provider.Pagination) (*provider.ListResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows, err := p.find(p.tables, resource, filter)
	if err != nil {
		return nil, err
	}
	sorted := make([]provider.Record, len(rows))
	copy(sorted, rows)
	sortRows(sorted, sort)

	window := paginate(sorted, page)
	out := make([]provider.Record, len(window))
	for i, r := range window {
		out[i] = p.view(p.tables, resource, r)
	}
	return &provider.ListResult{Data: out, Total: len(rows)}, nil
}

func (p *Provider) GetList(_ context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	return p.list(resource, params.Filter, params.Sort, params.Pagination)
}

func (p *Provider) GetOne(_ context.Context, resource string, params provider.GetOneParams) (*provider.RecordResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows, err := p.find(p.tables, resource, provider.Filter{"id": params.ID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return &provider.RecordResult{Data: p.view(p.tables, resource, rows[0])}, nil
}

func (p *Provider) GetMany(_ context.Context, resource string, params provider.GetManyParams) (*provider.ListResult, error) {
	return p.list(resource, provider.Filter{"id@in": params.IDs}, provider.Sort{}, provider.Pagination{})
}

func (p *Provider) GetManyReference(_ context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	filter := params.Filter.Clone()
	filter[params.Target] = params.ID
	return p.list(resource, filter, params.Sort, params.Pagination)
}

func (p *Provider) Create(_ context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, err := p.insert(p.tables, resource, params.Data, true)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: row}, nil
}

func (p *Provider) Update(_ context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.update(p.tables, resource, provider.Filter{"id": params.ID}, params.Data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return &provider.RecordResult{Data: rows[0]}, nil
}

func (p *Provider) UpdateMany(_ context.Context, resource string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.update(p.tables, resource, provider.Filter{"id@in": params.IDs}, params.Data)
	if err != nil {
		return nil, err
	}
	return &provider.IDsResult{Data: provider.IDsOf(rows)}, nil
}

func (p *Provider) Delete(_ context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.remove(p.tables, resource, provider.Filter{"id": params.ID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return &provider.RecordResult{Data: rows[0]}, nil
}

func (p *Provider) DeleteMany(_ context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.remove(p.tables, resource, provider.Filter{"id@in": params.IDs})
	if err != nil {
		return nil, err
	}
	return &provider.IDsResult{Data: provider.IDsOf(rows)}, nil
}

// UpdateWhere implements provider.FilterWriter.
func (p *Provider) UpdateWhere(_ context.Context, resource string, filter provider.Filter, data provider.Record) ([]provider.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.update(p.tables, resource, filter, data)
}

// DeleteWhere implements provider.FilterWriter.
func (p *Provider) DeleteWhere(_ context.Context, resource string, filter provider.Filter) ([]provider.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remove(p.tables, resource, filter)
}

// RPC runs a registered procedure. Its writes become visible only if it
// returns without error.
func (p *Provider) RPC(ctx context.Context, fn string, args map[string]any) (any, error) {
	proc, ok := procedures.Lookup(fn)
	if !ok {
		return nil, procedures.UnknownProcedureError(fn)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make(map[string]*table, len(p.tables))
	for name, t := range p.tables {
		snapshot[name] = t.clone()
	}
	w := &txWriter{p: p, tables: snapshot}
	out, err := proc(ctx, w, args)
	if err != nil {
		return nil, err
	}
	p.tables = snapshot
	return out, nil
}

// txWriter runs procedure writes against a snapshot. The provider lock is
// held by RPC for its whole lifetime.
type txWriter struct {
	p      *Provider
	tables map[string]*table
}

func (w *txWriter) Find(_ context.Context, table string, filter provider.Filter) ([]provider.Record, error) {
	rows, err := w.p.find(w.tables, table, filter)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (w *txWriter) Insert(_ context.Context, table string, row provider.Record) (provider.Record, error) {
	return w.p.insert(w.tables, table, row, true)
}

func (w *txWriter) Update(_ context.Context, table string, filter provider.Filter, row provider.Record) ([]provider.Record, error) {
	return w.p.update(w.tables, table, filter, row)
}

func (w *txWriter) Delete(_ context.Context, table string, filter provider.Filter) ([]provider.Record, error) {
	return w.p.remove(w.tables, table, filter)
}
