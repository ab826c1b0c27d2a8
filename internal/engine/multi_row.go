package engine

import (
	"context"
	"fmt"
	"time"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// SyncSpec configures a handler that writes a parent record and its child
// rows through one atomic procedure.
type SyncSpec struct {
	// VirtualField carries the submitted child rows.
	VirtualField string
	// ItemSchema validates each submitted child row.
	ItemSchema *metadata.Resource
	// PreviousField holds the stored child rows in previousData.
	PreviousField string
	// Key matches submitted rows with stored ones.
	Key string
	// DeleteKey identifies stored rows in the delete list.
	DeleteKey string

	Procedure string
	ParentArg string
	CreateArg string
	UpdateArg string
	DeleteArg string

	// Check runs before any write. id is nil on create.
	Check func(ctx context.Context, reader provider.DataProvider, id any, data, previous provider.Record) error
}

type multiRowProvider struct {
	provider.DataProvider
	spec      SyncSpec
	cb        *CallbackSet
	validator Validator
	items     ItemValidator
	now       func() time.Time
}

// ItemValidator validates the submitted child rows of a multi-row write.
type ItemValidator interface {
	ValidateItems(item *metadata.Resource, field string, items []provider.Record) error
}

// MultiRowWrite intercepts create and update. When the virtual field holds
// rows, it validates them and the parent, diffs them against the stored rows
// and calls the sync procedure. Otherwise the virtual field is dropped and
// the write continues down the chain.
func MultiRowWrite(spec SyncSpec, cb *CallbackSet, v *SchemaValidator) provider.Middleware {
	return func(next provider.DataProvider) provider.DataProvider {
		return &multiRowProvider{
			DataProvider: next,
			spec:         spec,
			cb:           cb,
			validator:    v,
			items:        v,
			now:          time.Now,
		}
	}
}

func (p *multiRowProvider) Unwrap() provider.DataProvider { return p.DataProvider }

func (p *multiRowProvider) Create(ctx context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	if p.spec.Check != nil {
		if err := p.spec.Check(ctx, p.DataProvider, nil, params.Data, nil); err != nil {
			return nil, err
		}
	}

	items, data, err := p.split(params.Data)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		params.Data = data
		return p.DataProvider.Create(ctx, resource, params)
	}

	parent := p.cb.Prepare(data, false, p.now())
	if err := p.validator.ValidateRecord(resource, "create", parent); err != nil {
		return nil, err
	}

	diff := DiffItems(nil, items, p.spec.Key, p.spec.DeleteKey)
	return p.sync(ctx, parent, diff, nil)
}

func (p *multiRowProvider) Update(ctx context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	if p.spec.Check != nil {
		if err := p.spec.Check(ctx, p.DataProvider, params.ID, params.Data, params.PreviousData); err != nil {
			return nil, err
		}
	}

	items, data, err := p.split(params.Data)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		params.Data = data
		return p.DataProvider.Update(ctx, resource, params)
	}

	parent := p.cb.Prepare(data, true, p.now())
	parent["id"] = params.ID
	if err := p.validator.ValidateRecord(resource, "update", parent); err != nil {
		return nil, err
	}

	var previous []provider.Record
	var version any
	if params.PreviousData != nil {
		previous, err = RecordsOf(params.PreviousData[p.spec.PreviousField])
		if err != nil {
			return nil, fmt.Errorf("previous %s: %w", p.spec.PreviousField, err)
		}
		version = params.PreviousData["version"]
	}

	diff := DiffItems(previous, items, p.spec.Key, p.spec.DeleteKey)
	return p.sync(ctx, parent, diff, version)
}

// split separates the submitted child rows from the parent payload and
// validates the rows.
func (p *multiRowProvider) split(data provider.Record) ([]provider.Record, provider.Record, error) {
	raw, present := data[p.spec.VirtualField]
	if !present {
		return nil, data, nil
	}
	rest := data.Clone()
	delete(rest, p.spec.VirtualField)

	items, err := RecordsOf(raw)
	if err != nil {
		return nil, nil, FieldError(p.spec.VirtualField, err.Error())
	}
	if len(items) == 0 {
		return nil, rest, nil
	}
	if err := p.items.ValidateItems(p.spec.ItemSchema, p.spec.VirtualField, items); err != nil {
		return nil, nil, err
	}
	return items, rest, nil
}

func (p *multiRowProvider) sync(ctx context.Context, parent provider.Record, diff ItemDiff, version any) (*provider.RecordResult, error) {
	rpc, err := provider.AsRPC(p.DataProvider)
	if err != nil {
		return nil, err
	}

	args := map[string]any{
		p.spec.ParentArg: parent,
		p.spec.CreateArg: nonNilRecords(diff.Creates),
		p.spec.UpdateArg: nonNilRecords(diff.Updates),
		p.spec.DeleteArg: nonNilIDs(diff.DeleteIDs),
	}
	if version != nil {
		args["expected_version"] = version
	}

	out, err := rpc.RPC(ctx, p.spec.Procedure, args)
	if err != nil {
		return nil, err
	}
	record, err := RecordFromResult(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.spec.Procedure, err)
	}
	return &provider.RecordResult{Data: record}, nil
}

func nonNilRecords(r []provider.Record) []provider.Record {
	if r == nil {
		return []provider.Record{}
	}
	return r
}

func nonNilIDs(ids []any) []any {
	if ids == nil {
		return []any{}
	}
	return ids
}
