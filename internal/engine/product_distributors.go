package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// ProductDistributorKey is the two-column primary key of product_distributors.
type ProductDistributorKey struct {
	ProductID     int64 `json:"product_id"`
	DistributorID int64 `json:"distributor_id"`
}

// Filter addresses exactly the row with this key.
func (k ProductDistributorKey) Filter() provider.Filter {
	return provider.Filter{"product_id": k.ProductID, "distributor_id": k.DistributorID}
}

// CreateCompositeID builds the synthetic id "{product_id}-{distributor_id}".
func CreateCompositeID(productID, distributorID any) string {
	return provider.IDString(productID) + "-" + provider.IDString(distributorID)
}

// ParseCompositeID splits a synthetic id at its first "-".
func ParseCompositeID(id any) (ProductDistributorKey, error) {
	s := provider.IDString(id)
	productPart, distributorPart, ok := strings.Cut(s, "-")
	if !ok {
		return ProductDistributorKey{}, invalidCompositeID(s, "expected {product_id}-{distributor_id}")
	}
	productID, err := strconv.ParseInt(productPart, 10, 64)
	if err != nil {
		return ProductDistributorKey{}, invalidCompositeID(s, "product_id is not a number")
	}
	distributorID, err := strconv.ParseInt(distributorPart, 10, 64)
	if err != nil {
		return ProductDistributorKey{}, invalidCompositeID(s, "distributor_id is not a number")
	}
	return ProductDistributorKey{ProductID: productID, DistributorID: distributorID}, nil
}

func invalidCompositeID(id, reason string) *AppError {
	return NewAppError("INVALID_ID", 400, fmt.Sprintf("Invalid product distributor id %q: %s", id, reason))
}

func withCompositeID(r provider.Record) provider.Record {
	out := r.Clone()
	out["id"] = CreateCompositeID(r["product_id"], r["distributor_id"])
	return out
}

func withCompositeIDs(rows []provider.Record) []provider.Record {
	out := make([]provider.Record, len(rows))
	for i, r := range rows {
		out[i] = withCompositeID(r)
	}
	return out
}

// ProductDistributorService writes product_distributors rows addressed by
// their two key columns.
type ProductDistributorService struct {
	base      provider.DataProvider
	writer    provider.FilterWriter
	validator Validator
}

// NewProductDistributorService requires base to support filtered writes.
// validator may be nil.
func NewProductDistributorService(base provider.DataProvider, validator Validator) (*ProductDistributorService, error) {
	w, err := provider.AsFilterWriter(base)
	if err != nil {
		return nil, err
	}
	return &ProductDistributorService{base: base, writer: w, validator: validator}, nil
}

func (s *ProductDistributorService) Get(ctx context.Context, key ProductDistributorKey) (provider.Record, error) {
	res, err := s.base.GetList(ctx, metadata.ProductDistributors, provider.GetListParams{
		Pagination: provider.Pagination{Page: 1, PerPage: 1},
		Filter:     key.Filter(),
	})
	if err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, provider.NoRowsError()
	}
	return res.Data[0], nil
}

func (s *ProductDistributorService) Create(ctx context.Context, data provider.Record) (provider.Record, error) {
	data = payloadWithoutID(data)
	if s.validator != nil {
		if err := s.validator.ValidateRecord(metadata.ProductDistributors, "create", data); err != nil {
			return nil, err
		}
	}
	res, err := s.base.Create(ctx, metadata.ProductDistributors, provider.CreateParams{Data: data})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Update changes the non-key columns of one row.
func (s *ProductDistributorService) Update(ctx context.Context, key ProductDistributorKey, data provider.Record) (provider.Record, error) {
	data = payloadWithoutID(data)
	delete(data, "product_id")
	delete(data, "distributor_id")
	delete(data, "created_at")
	if s.validator != nil {
		full := data.Clone()
		full["product_id"] = key.ProductID
		full["distributor_id"] = key.DistributorID
		if err := s.validator.ValidateRecord(metadata.ProductDistributors, "update", full); err != nil {
			return nil, err
		}
	}
	rows, err := s.writer.UpdateWhere(ctx, metadata.ProductDistributors, key.Filter(), data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return rows[0], nil
}

// Delete removes one row. There is no soft delete for this table.
func (s *ProductDistributorService) Delete(ctx context.Context, key ProductDistributorKey) (provider.Record, error) {
	rows, err := s.writer.DeleteWhere(ctx, metadata.ProductDistributors, key.Filter())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return rows[0], nil
}

func payloadWithoutID(data provider.Record) provider.Record {
	out := data.Clone()
	if out == nil {
		out = provider.Record{}
	}
	delete(out, "id")
	return out
}

type compositeKeyProvider struct {
	base    provider.DataProvider
	service *ProductDistributorService
}

// CompositeKey exposes product_distributors with synthetic string ids.
func CompositeKey(service *ProductDistributorService) provider.Middleware {
	return func(next provider.DataProvider) provider.DataProvider {
		return &compositeKeyProvider{base: next, service: service}
	}
}

func (p *compositeKeyProvider) Unwrap() provider.DataProvider { return p.base }

func (p *compositeKeyProvider) GetList(ctx context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	res, err := p.base.GetList(ctx, resource, params)
	if err != nil {
		return nil, err
	}
	return &provider.ListResult{Data: withCompositeIDs(res.Data), Total: res.Total}, nil
}

func (p *compositeKeyProvider) GetOne(ctx context.Context, _ string, params provider.GetOneParams) (*provider.RecordResult, error) {
	key, err := ParseCompositeID(params.ID)
	if err != nil {
		return nil, err
	}
	row, err := p.service.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: withCompositeID(row)}, nil
}

func (p *compositeKeyProvider) GetMany(ctx context.Context, _ string, params provider.GetManyParams) (*provider.ListResult, error) {
	out := make([]provider.Record, 0, len(params.IDs))
	for _, id := range params.IDs {
		key, err := ParseCompositeID(id)
		if err != nil {
			return nil, err
		}
		row, err := p.service.Get(ctx, key)
		if err != nil {
			if IsNoRowsError(err) {
				continue
			}
			return nil, err
		}
		out = append(out, withCompositeID(row))
	}
	return &provider.ListResult{Data: out, Total: len(out)}, nil
}

func (p *compositeKeyProvider) GetManyReference(ctx context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	res, err := p.base.GetManyReference(ctx, resource, params)
	if err != nil {
		return nil, err
	}
	return &provider.ListResult{Data: withCompositeIDs(res.Data), Total: res.Total}, nil
}

func (p *compositeKeyProvider) Create(ctx context.Context, _ string, params provider.CreateParams) (*provider.RecordResult, error) {
	row, err := p.service.Create(ctx, params.Data)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: withCompositeID(row)}, nil
}

func (p *compositeKeyProvider) Update(ctx context.Context, _ string, params provider.UpdateParams) (*provider.RecordResult, error) {
	key, err := ParseCompositeID(params.ID)
	if err != nil {
		return nil, err
	}
	row, err := p.service.Update(ctx, key, params.Data)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: withCompositeID(row)}, nil
}

func (p *compositeKeyProvider) UpdateMany(ctx context.Context, _ string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	for _, id := range params.IDs {
		key, err := ParseCompositeID(id)
		if err != nil {
			return nil, err
		}
		if _, err := p.service.Update(ctx, key, params.Data); err != nil {
			return nil, err
		}
	}
	return &provider.IDsResult{Data: params.IDs}, nil
}

func (p *compositeKeyProvider) Delete(ctx context.Context, _ string, params provider.DeleteParams) (*provider.RecordResult, error) {
	key, err := ParseCompositeID(params.ID)
	if err != nil {
		return nil, err
	}
	row, err := p.service.Delete(ctx, key)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: withCompositeID(row)}, nil
}

func (p *compositeKeyProvider) DeleteMany(ctx context.Context, _ string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	for _, id := range params.IDs {
		key, err := ParseCompositeID(id)
		if err != nil {
			return nil, err
		}
		if _, err := p.service.Delete(ctx, key); err != nil {
			return nil, err
		}
	}
	return &provider.IDsResult{Data: params.IDs}, nil
}
