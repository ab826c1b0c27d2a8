package procedures

import (
	"context"
	"fmt"

	"crm-backend/internal/provider"
)

// SyncOpportunityWithProducts writes an opportunity and its product lines.
//
// Arguments: opportunity_data, products_to_create, products_to_update,
// product_ids_to_delete (opportunity_products ids) and the optional
// expected_version. Returns the opportunity with its current products.
func SyncOpportunityWithProducts(ctx context.Context, w Writer, args map[string]any) (any, error) {
	data, err := recordArg(args, "opportunity_data")
	if err != nil {
		return nil, err
	}
	creates, err := recordsArg(args, "products_to_create")
	if err != nil {
		return nil, err
	}
	updates, err := recordsArg(args, "products_to_update")
	if err != nil {
		return nil, err
	}
	deletes, err := listArg(args, "product_ids_to_delete")
	if err != nil {
		return nil, err
	}

	opp, err := upsertVersioned(ctx, w, "opportunities", data, args["expected_version"])
	if err != nil {
		return nil, fmt.Errorf("write opportunity: %w", err)
	}
	oppID := opp.ID()

	for _, item := range creates {
		row := item.Clone()
		delete(row, "id")
		row["opportunity_id"] = oppID
		if _, err := w.Insert(ctx, "opportunity_products", row); err != nil {
			return nil, fmt.Errorf("insert opportunity product: %w", err)
		}
	}

	for _, item := range updates {
		row := item.Clone()
		lineID := row.ID()
		delete(row, "id")
		delete(row, "opportunity_id")
		filter := provider.Filter{"opportunity_id": oppID, "product_id_reference": row["product_id_reference"]}
		if provider.IDString(lineID) != "" {
			filter = provider.Filter{"opportunity_id": oppID, "id": lineID}
		}
		if _, err := w.Update(ctx, "opportunity_products", filter, row); err != nil {
			return nil, fmt.Errorf("update opportunity product: %w", err)
		}
	}

	if len(deletes) > 0 {
		filter := provider.Filter{"opportunity_id": oppID, "id@in": deletes}
		if _, err := w.Delete(ctx, "opportunity_products", filter); err != nil {
			return nil, fmt.Errorf("delete opportunity products: %w", err)
		}
	}

	products, err := w.Find(ctx, "opportunity_products", provider.Filter{"opportunity_id": oppID})
	if err != nil {
		return nil, err
	}
	opp = opp.Clone()
	opp["products"] = nonNil(products)
	return opp, nil
}

// ArchiveOpportunityWithRelations soft-deletes an opportunity together with
// its activities and notes. Argument: opp_id.
func ArchiveOpportunityWithRelations(ctx context.Context, w Writer, args map[string]any) (any, error) {
	id := args["opp_id"]
	if provider.IDString(id) == "" {
		return nil, argError("opp_id", "is required")
	}

	if _, err := getOne(ctx, w, "opportunities", provider.Filter{"id": id, "deleted_at@is": nil}); err != nil {
		return nil, err
	}

	stamp := provider.Record{"deleted_at": timestamp()}
	if _, err := w.Update(ctx, "opportunities", provider.Filter{"id": id}, stamp); err != nil {
		return nil, fmt.Errorf("archive opportunity: %w", err)
	}
	for _, table := range []string{"activities", "opportunity_notes"} {
		filter := provider.Filter{"opportunity_id": id, "deleted_at@is": nil}
		if _, err := w.Update(ctx, table, filter, stamp); err != nil {
			return nil, fmt.Errorf("archive %s: %w", table, err)
		}
	}
	return provider.Record{"id": id}, nil
}

func nonNil(rows []provider.Record) []provider.Record {
	if rows == nil {
		return []provider.Record{}
	}
	return rows
}
