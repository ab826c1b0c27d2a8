package engine

import "crm-backend/internal/metadata"

// OpportunitySync writes an opportunity and its product lines in one call to
// sync_opportunity_with_products, after checking related_opportunity_id.
var OpportunitySync = SyncSpec{
	VirtualField:  "products_to_sync",
	ItemSchema:    metadata.OpportunityProductItem,
	PreviousField: "products",
	Key:           "product_id_reference",
	DeleteKey:     "id",

	Procedure: "sync_opportunity_with_products",
	ParentArg: "opportunity_data",
	CreateArg: "products_to_create",
	UpdateArg: "products_to_update",
	DeleteArg: "product_ids_to_delete",

	Check: ValidateOpportunityLink,
}
