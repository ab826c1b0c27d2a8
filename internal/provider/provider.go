package provider

import "context"

// Record is a single row as exchanged with the backend. Every record carries an "id" key.
type Record map[string]any

// ID returns the record identifier, or nil.
func (r Record) ID() any {
	if r == nil {
		return nil
	}
	return r["id"]
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter maps field names (optionally suffixed with "@op") to values.
type Filter map[string]any

// Clone returns a shallow copy of the filter. A nil filter clones to an empty one.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Sort describes a single ORDER BY field.
type Sort struct {
	Field string `json:"field"`
	Order string `json:"order"` // ASC or DESC
}

// Pagination is a 1-based page window.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
}

// Offset returns the zero-based row offset of the window.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

type GetListParams struct {
	Pagination Pagination
	Sort       Sort
	Filter     Filter
	Meta       Meta
}

type GetOneParams struct {
	ID   any
	Meta Meta
}

type GetManyParams struct {
	IDs  []any
	Meta Meta
}

type GetManyReferenceParams struct {
	Target     string
	ID         any
	Pagination Pagination
	Sort       Sort
	Filter     Filter
	Meta       Meta
}

type CreateParams struct {
	Data Record
	Meta Meta
}

type UpdateParams struct {
	ID           any
	Data         Record
	PreviousData Record
	Meta         Meta
}

type UpdateManyParams struct {
	IDs  []any
	Data Record
	Meta Meta
}

type DeleteParams struct {
	ID           any
	PreviousData Record
	Meta         Meta
}

type DeleteManyParams struct {
	IDs  []any
	Meta Meta
}

// ListResult is returned by the read operations that yield several records.
type ListResult struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
}

// RecordResult is returned by single-record reads and writes.
type RecordResult struct {
	Data Record `json:"data"`
}

// IDsResult is returned by the batch writes.
type IDsResult struct {
	Data []any `json:"data"`
}

// DataProvider is the CRUD contract shared by the base providers and every decorator.
type DataProvider interface {
	GetList(ctx context.Context, resource string, params GetListParams) (*ListResult, error)
	GetOne(ctx context.Context, resource string, params GetOneParams) (*RecordResult, error)
	GetMany(ctx context.Context, resource string, params GetManyParams) (*ListResult, error)
	GetManyReference(ctx context.Context, resource string, params GetManyReferenceParams) (*ListResult, error)
	Create(ctx context.Context, resource string, params CreateParams) (*RecordResult, error)
	Update(ctx context.Context, resource string, params UpdateParams) (*RecordResult, error)
	UpdateMany(ctx context.Context, resource string, params UpdateManyParams) (*IDsResult, error)
	Delete(ctx context.Context, resource string, params DeleteParams) (*RecordResult, error)
	DeleteMany(ctx context.Context, resource string, params DeleteManyParams) (*IDsResult, error)
}
