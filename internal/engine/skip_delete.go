package engine

import (
	"context"

	"crm-backend/internal/provider"
)

type skipDeleteProvider struct {
	provider.DataProvider
}

// SkipDelete answers deletes flagged with meta.skipDelete without calling
// next, because the row was already archived upstream.
func SkipDelete() provider.Middleware {
	return func(next provider.DataProvider) provider.DataProvider {
		return &skipDeleteProvider{DataProvider: next}
	}
}

func (p *skipDeleteProvider) Unwrap() provider.DataProvider { return p.DataProvider }

func (p *skipDeleteProvider) Delete(ctx context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	if params.Meta.SkipDelete() {
		return &provider.RecordResult{Data: provider.Record{"id": params.ID}}, nil
	}
	return p.DataProvider.Delete(ctx, resource, params)
}

func (p *skipDeleteProvider) DeleteMany(ctx context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	if params.Meta.SkipDelete() {
		return &provider.IDsResult{Data: params.IDs}, nil
	}
	return p.DataProvider.DeleteMany(ctx, resource, params)
}
