package engine

import (
	"context"

	"crm-backend/internal/provider"
)

type validationProvider struct {
	provider.DataProvider
	validator Validator
}

// Validation checks create and update payloads and sanitizes list filters.
// Invalid calls never reach next.
func Validation(v Validator) provider.Middleware {
	return func(next provider.DataProvider) provider.DataProvider {
		return &validationProvider{DataProvider: next, validator: v}
	}
}

func (p *validationProvider) Unwrap() provider.DataProvider { return p.DataProvider }

func (p *validationProvider) GetList(ctx context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	filter, err := p.validator.SanitizeFilter(resource, params.Filter)
	if err != nil {
		return nil, err
	}
	params.Filter = filter
	return p.DataProvider.GetList(ctx, resource, params)
}

func (p *validationProvider) GetManyReference(ctx context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	filter, err := p.validator.SanitizeFilter(resource, params.Filter)
	if err != nil {
		return nil, err
	}
	params.Filter = filter
	return p.DataProvider.GetManyReference(ctx, resource, params)
}

func (p *validationProvider) Create(ctx context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	if err := p.validator.ValidateRecord(resource, "create", params.Data); err != nil {
		return nil, err
	}
	return p.DataProvider.Create(ctx, resource, params)
}

// Update validates the payload with the id merged in.
func (p *validationProvider) Update(ctx context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	data := params.Data.Clone()
	if data == nil {
		data = provider.Record{}
	}
	data["id"] = params.ID
	if err := p.validator.ValidateRecord(resource, "update", data); err != nil {
		return nil, err
	}
	return p.DataProvider.Update(ctx, resource, params)
}
