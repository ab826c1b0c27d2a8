package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

func newOpportunityWriter(t *testing.T, fake *fakeProvider) provider.DataProvider {
	t.Helper()
	p := MultiRowWrite(OpportunitySync, callbacks(t, metadata.Opportunities), newValidator())(fake)
	p.(*multiRowProvider).now = func() time.Time { return fixedNow }
	return p
}

func opportunityPayload() provider.Record {
	return provider.Record{
		"name":                      "Spring menu",
		"customer_organization_id":  1,
		"principal_organization_id": 2,
	}
}

func TestMultiRowWrite_CreateCallsSyncProcedure(t *testing.T) {
	fake := &fakeProvider{rpcResult: provider.Record{"id": int64(40), "name": "Spring menu"}}
	p := newOpportunityWriter(t, fake)

	data := opportunityPayload()
	data["products_to_sync"] = []any{
		map[string]any{"product_id_reference": 10, "notes": "two cases"},
	}
	res, err := p.Create(context.Background(), metadata.Opportunities, provider.CreateParams{Data: data})
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Data["id"])

	require.Equal(t, []string{"rpc"}, fake.methods())
	rpc := fake.calls[0].Params.(rpcCall)
	assert.Equal(t, "sync_opportunity_with_products", rpc.Fn)

	want := map[string]any{
		"opportunity_data": provider.Record{
			"name":                      "Spring menu",
			"customer_organization_id":  1,
			"principal_organization_id": 2,
		},
		"products_to_create": []provider.Record{
			{"product_id_reference": 10, "notes": "two cases"},
		},
		"products_to_update":    []provider.Record{},
		"product_ids_to_delete": []any{},
	}
	if diff := cmp.Diff(want, rpc.Args); diff != "" {
		t.Errorf("rpc args mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiRowWrite_UpdateSendsDiffAndVersion(t *testing.T) {
	fake := &fakeProvider{rpcResult: []any{map[string]any{"id": 7, "version": 4}}}
	p := newOpportunityWriter(t, fake)

	data := opportunityPayload()
	data["products_to_sync"] = []any{
		map[string]any{"product_id_reference": 10, "notes": "new"},
		map[string]any{"product_id_reference": 12},
	}
	previous := provider.Record{
		"id":      7,
		"version": 3,
		"products": []any{
			map[string]any{"id": 100, "product_id_reference": 10, "notes": "old"},
			map[string]any{"id": 101, "product_id_reference": 11},
		},
	}

	res, err := p.Update(context.Background(), metadata.Opportunities, provider.UpdateParams{
		ID: 7, Data: data, PreviousData: previous,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Data["version"])

	args := fake.last().Params.(rpcCall).Args
	assert.Equal(t, 3, args["expected_version"])
	assert.Equal(t, []provider.Record{{"product_id_reference": 12}}, args["products_to_create"])
	assert.Equal(t, []provider.Record{{"id": 100, "product_id_reference": 10, "notes": "new"}}, args["products_to_update"])
	assert.Equal(t, []any{101}, args["product_ids_to_delete"])

	parent := args["opportunity_data"].(provider.Record)
	assert.Equal(t, 7, parent["id"])
	assert.Equal(t, "2025-11-13T09:30:00Z", parent["updated_at"])
	assert.NotContains(t, parent, "products_to_sync")
}

func TestMultiRowWrite_WithoutItemsPassesThrough(t *testing.T) {
	fake := &fakeProvider{}
	p := newOpportunityWriter(t, fake)

	_, err := p.Create(context.Background(), metadata.Opportunities, provider.CreateParams{Data: opportunityPayload()})
	require.NoError(t, err)

	data := opportunityPayload()
	data["products_to_sync"] = []any{}
	_, err = p.Update(context.Background(), metadata.Opportunities, provider.UpdateParams{ID: 3, Data: data})
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "update"}, fake.methods())
	assert.NotContains(t, fake.last().Params.(provider.UpdateParams).Data, "products_to_sync")
	assert.Contains(t, data, "products_to_sync", "caller payload must not change")
}

func TestMultiRowWrite_InvalidItem(t *testing.T) {
	fake := &fakeProvider{}
	p := newOpportunityWriter(t, fake)

	data := opportunityPayload()
	data["products_to_sync"] = []any{map[string]any{"notes": "no product"}}
	_, err := p.Create(context.Background(), metadata.Opportunities, provider.CreateParams{Data: data})

	appErr, ok := AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, map[string]string{"products_to_sync.0.product_id_reference": "Required"}, appErr.FieldErrors())
	assert.Empty(t, fake.calls)
}

func TestMultiRowWrite_ItemsMustBeObjects(t *testing.T) {
	p := newOpportunityWriter(t, &fakeProvider{})

	data := opportunityPayload()
	data["products_to_sync"] = []any{"10"}
	_, err := p.Create(context.Background(), metadata.Opportunities, provider.CreateParams{Data: data})
	appErr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.FieldErrors(), "products_to_sync")
}

func TestMultiRowWrite_ParentIsValidated(t *testing.T) {
	fake := &fakeProvider{}
	p := newOpportunityWriter(t, fake)

	_, err := p.Create(context.Background(), metadata.Opportunities, provider.CreateParams{Data: provider.Record{
		"name":             "Missing orgs",
		"products_to_sync": []any{map[string]any{"product_id_reference": 1}},
	}})
	appErr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.FieldErrors(), "customer_organization_id")
	assert.Empty(t, fake.calls)
}

func TestMultiRowWrite_ProductDistributors(t *testing.T) {
	fake := &fakeProvider{rpcResult: provider.Record{"id": 5}}
	p := MultiRowWrite(ProductSync, callbacks(t, metadata.Products), newValidator())(fake)

	_, err := p.Update(context.Background(), metadata.Products, provider.UpdateParams{
		ID: 5,
		Data: provider.Record{
			"name":         "Olive oil",
			"principal_id": 2,
			"distributors_to_sync": []any{
				map[string]any{"distributor_id": 8, "vendor_item_number": "OO-1"},
			},
		},
		PreviousData: provider.Record{
			"distributors": []any{
				map[string]any{"product_id": 5, "distributor_id": 8, "vendor_item_number": "OO-1"},
				map[string]any{"product_id": 5, "distributor_id": 9},
			},
		},
	})
	require.NoError(t, err)

	args := fake.last().Params.(rpcCall).Args
	assert.Equal(t, "sync_product_with_distributors", fake.last().Params.(rpcCall).Fn)
	assert.Empty(t, args["distributors_to_create"])
	assert.Empty(t, args["distributors_to_update"], "unchanged rows are not rewritten")
	assert.Equal(t, []any{9}, args["distributor_ids_to_delete"])
	assert.NotContains(t, args, "expected_version")
}

func TestMultiRowWrite_NeedsRPC(t *testing.T) {
	p := MultiRowWrite(ProductSync, callbacks(t, metadata.Products), newValidator())(bareProvider{&fakeProvider{}})

	_, err := p.Create(context.Background(), metadata.Products, provider.CreateParams{Data: provider.Record{
		"name":                 "Olive oil",
		"principal_id":         2,
		"distributors_to_sync": []any{map[string]any{"distributor_id": 8}},
	}})
	assert.ErrorIs(t, err, provider.ErrRPCUnsupported)
}
