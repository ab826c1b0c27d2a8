package engine

import (
	"context"
	"fmt"
	"time"

	"crm-backend/internal/provider"
)

type lifecycleProvider struct {
	provider.DataProvider
	cb  *CallbackSet
	now func() time.Time
}

// Lifecycle applies a resource's callback set: soft-delete filtering on reads,
// payload cleanup on writes, and archiving instead of deleting.
func Lifecycle(cb *CallbackSet) provider.Middleware {
	return LifecycleWithClock(cb, time.Now)
}

// LifecycleWithClock is Lifecycle with an injectable clock.
func LifecycleWithClock(cb *CallbackSet, now func() time.Time) provider.Middleware {
	return func(next provider.DataProvider) provider.DataProvider {
		return &lifecycleProvider{DataProvider: next, cb: cb, now: now}
	}
}

func (p *lifecycleProvider) Unwrap() provider.DataProvider { return p.DataProvider }

func (p *lifecycleProvider) GetList(ctx context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	params.Filter = p.excludeDeleted(params.Filter)
	return p.DataProvider.GetList(ctx, resource, params)
}

func (p *lifecycleProvider) GetManyReference(ctx context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	params.Filter = p.excludeDeleted(params.Filter)
	return p.DataProvider.GetManyReference(ctx, resource, params)
}

func (p *lifecycleProvider) Create(ctx context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	params.Data = p.cb.Prepare(params.Data, false, p.now())
	return p.DataProvider.Create(ctx, resource, params)
}

func (p *lifecycleProvider) Update(ctx context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	params.Data = p.cb.Prepare(params.Data, true, p.now())
	return p.DataProvider.Update(ctx, resource, params)
}

func (p *lifecycleProvider) UpdateMany(ctx context.Context, resource string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	params.Data = p.cb.Prepare(params.Data, true, p.now())
	return p.DataProvider.UpdateMany(ctx, resource, params)
}

func (p *lifecycleProvider) Delete(ctx context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	if !p.cb.SoftDelete {
		return p.DataProvider.Delete(ctx, resource, params)
	}
	if err := p.archive(ctx, resource, []any{params.ID}); err != nil {
		return nil, err
	}
	params.Meta = params.Meta.With(provider.MetaSkipDelete, true)
	return p.DataProvider.Delete(ctx, resource, params)
}

func (p *lifecycleProvider) DeleteMany(ctx context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	if !p.cb.SoftDelete {
		return p.DataProvider.DeleteMany(ctx, resource, params)
	}
	if err := p.archive(ctx, resource, params.IDs); err != nil {
		return nil, err
	}
	params.Meta = params.Meta.With(provider.MetaSkipDelete, true)
	return p.DataProvider.DeleteMany(ctx, resource, params)
}

// excludeDeleted adds deleted_at@is=nil unless the caller already filters on
// deleted_at. The caller's map is not modified.
func (p *lifecycleProvider) excludeDeleted(filter provider.Filter) provider.Filter {
	if !p.cb.SoftDelete || filter.HasField("deleted_at") {
		return filter
	}
	out := filter.Clone()
	out[provider.JoinFilterKey("deleted_at", "is")] = nil
	return out
}

// archive marks rows deleted through the archive procedure when the resource
// has one, or by stamping deleted_at with a filtered write.
func (p *lifecycleProvider) archive(ctx context.Context, resource string, ids []any) error {
	if len(ids) == 0 {
		return nil
	}

	if rpc := p.cb.ArchiveRPC; rpc != nil {
		invoker, err := provider.AsRPC(p.DataProvider)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := invoker.RPC(ctx, rpc.Name, map[string]any{rpc.IDArg: id}); err != nil {
				return fmt.Errorf("archive %s %v: %w", resource, id, err)
			}
		}
		return nil
	}

	writer, err := provider.AsFilterWriter(p.DataProvider)
	if err != nil {
		return err
	}
	filter := provider.Filter{"id": ids[0]}
	if len(ids) > 1 {
		filter = provider.Filter{"id@in": ids}
	}
	stamp := provider.Record{"deleted_at": p.now().UTC().Format(time.RFC3339)}
	rows, err := writer.UpdateWhere(ctx, resource, filter, stamp)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", resource, err)
	}
	if len(rows) == 0 {
		return provider.NoRowsError()
	}
	return nil
}
