package engine

import "crm-backend/internal/metadata"

// ProductSync writes a product and its distributor links in one call to
// sync_product_with_distributors.
var ProductSync = SyncSpec{
	VirtualField:  "distributors_to_sync",
	ItemSchema:    metadata.ProductDistributorItem,
	PreviousField: "distributors",
	Key:           "distributor_id",
	DeleteKey:     "distributor_id",

	Procedure: "sync_product_with_distributors",
	ParentArg: "product_data",
	CreateArg: "distributors_to_create",
	UpdateArg: "distributors_to_update",
	DeleteArg: "distributor_ids_to_delete",
}
