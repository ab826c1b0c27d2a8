package memory

import (
	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// view returns a copy of row with the computed fields the summary views
// would join in. Only the child lists read by the sync handlers are built.
func (p *Provider) view(tables map[string]*table, resource string, row provider.Record) provider.Record {
	out := row.Clone()
	switch p.tableName(resource) {
	case metadata.Opportunities:
		lines, _ := p.find(tables, metadata.OpportunityProducts, provider.Filter{"opportunity_id": row.ID()})
		out["products"] = clones(lines)
	case metadata.Products:
		links, _ := p.find(tables, metadata.ProductDistributors, provider.Filter{"product_id": row.ID()})
		out["distributors"] = clones(links)
	}
	return out
}

func clones(rows []provider.Record) []provider.Record {
	out := make([]provider.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
