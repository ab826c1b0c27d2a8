package engine

import (
	"context"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

const (
	relatedOpportunityField = "related_opportunity_id"

	msgSelfLink          = "Cannot link opportunity to itself"
	msgRelatedMissing    = "Related opportunity not found or deleted"
	msgPrincipalMismatch = "Related opportunity must have same principal"
)

// ValidateOpportunityLink checks related_opportunity_id before an opportunity
// is written. id is the opportunity's own id (nil on create unless the
// payload carries one). previous supplies the principal when the payload
// omits it. Ids are compared by value, so 7 and "7" are the same opportunity.
func ValidateOpportunityLink(ctx context.Context, reader provider.DataProvider, id any, data, previous provider.Record) error {
	related, ok := data[relatedOpportunityField]
	if !ok || provider.IDString(related) == "" {
		return nil
	}

	if id == nil {
		id = data.ID()
	}
	if id != nil && provider.SameID(id, related) {
		return FieldError(relatedOpportunityField, msgSelfLink)
	}

	res, err := reader.GetOne(ctx, metadata.Opportunities, provider.GetOneParams{ID: related})
	if err != nil {
		if IsNoRowsError(err) {
			return FieldError(relatedOpportunityField, msgRelatedMissing)
		}
		return err
	}
	if res == nil || res.Data == nil || res.Data["deleted_at"] != nil {
		return FieldError(relatedOpportunityField, msgRelatedMissing)
	}

	principal, ok := data["principal_organization_id"]
	if !ok && previous != nil {
		principal = previous["principal_organization_id"]
	}
	if principal != nil && !provider.SameID(principal, res.Data["principal_organization_id"]) {
		return FieldError(relatedOpportunityField, msgPrincipalMismatch)
	}
	return nil
}
