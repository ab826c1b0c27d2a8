package procedures

import (
	"context"
	"fmt"

	"crm-backend/internal/provider"
)

// SyncProductWithDistributors writes a product and its distributor links.
//
// Arguments: product_data, distributors_to_create, distributors_to_update,
// distributor_ids_to_delete and the optional expected_version. Returns the
// product with its current distributors.
func SyncProductWithDistributors(ctx context.Context, w Writer, args map[string]any) (any, error) {
	data, err := recordArg(args, "product_data")
	if err != nil {
		return nil, err
	}
	creates, err := recordsArg(args, "distributors_to_create")
	if err != nil {
		return nil, err
	}
	updates, err := recordsArg(args, "distributors_to_update")
	if err != nil {
		return nil, err
	}
	deletes, err := listArg(args, "distributor_ids_to_delete")
	if err != nil {
		return nil, err
	}

	product, err := upsertVersioned(ctx, w, "products", data, args["expected_version"])
	if err != nil {
		return nil, fmt.Errorf("write product: %w", err)
	}
	productID := product.ID()

	for _, item := range creates {
		row := item.Clone()
		delete(row, "id")
		row["product_id"] = productID
		if _, err := w.Insert(ctx, "product_distributors", row); err != nil {
			return nil, fmt.Errorf("insert product distributor: %w", err)
		}
	}

	for _, item := range updates {
		row := item.Clone()
		distributorID := row["distributor_id"]
		delete(row, "id")
		delete(row, "product_id")
		delete(row, "distributor_id")
		filter := provider.Filter{"product_id": productID, "distributor_id": distributorID}
		if _, err := w.Update(ctx, "product_distributors", filter, row); err != nil {
			return nil, fmt.Errorf("update product distributor: %w", err)
		}
	}

	if len(deletes) > 0 {
		filter := provider.Filter{"product_id": productID, "distributor_id@in": deletes}
		if _, err := w.Delete(ctx, "product_distributors", filter); err != nil {
			return nil, fmt.Errorf("delete product distributors: %w", err)
		}
	}

	distributors, err := w.Find(ctx, "product_distributors", provider.Filter{"product_id": productID})
	if err != nil {
		return nil, err
	}
	product = product.Clone()
	product["distributors"] = nonNil(distributors)
	return product, nil
}
