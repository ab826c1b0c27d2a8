package sqldb

import (
	"context"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
	"crm-backend/internal/store"
)

// childViews lists the child collections the summary views embed in their
// parent rows: parent table -> (field, child table, foreign key).
var childViews = map[string]struct {
	field, table, fk string
}{
	metadata.Opportunities: {"products", metadata.OpportunityProducts, "opportunity_id"},
	metadata.Products:      {"distributors", metadata.ProductDistributors, "product_id"},
}

// attachViews embeds child rows into rows with one query per call.
func (p *Provider) attachViews(ctx context.Context, q store.Querier, resource string, rows []provider.Record) error {
	table := resource
	if res := p.resource(resource); res != nil {
		table = res.TableName()
	}
	view, ok := childViews[table]
	if !ok || len(rows) == 0 {
		return nil
	}

	children, err := p.find(ctx, q, view.table, provider.Filter{view.fk + "@in": provider.IDsOf(rows)}, provider.Sort{}, provider.Pagination{})
	if err != nil {
		return err
	}
	byParent := make(map[string][]provider.Record, len(rows))
	for _, c := range children {
		key := provider.IDString(c[view.fk])
		byParent[key] = append(byParent[key], c)
	}
	for _, r := range rows {
		list := byParent[provider.IDString(r.ID())]
		if list == nil {
			list = []provider.Record{}
		}
		r[view.field] = list
	}
	return nil
}
