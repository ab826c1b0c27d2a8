package metadata

// Resource names used by custom handlers.
const (
	Organizations        = "organizations"
	Contacts             = "contacts"
	ContactNotes         = "contact_notes"
	Opportunities        = "opportunities"
	OpportunityNotes     = "opportunity_notes"
	OpportunityProducts  = "opportunity_products"
	Products             = "products"
	ProductDistributors  = "product_distributors"
	Activities           = "activities"
	Tasks                = "tasks"
	Tags                 = "tags"
	Sales                = "sales"
	OpportunityItemsSync = "opportunity_products_sync"
	DistributorItemsSync = "product_distributors_sync"
)

func timestamps(softDelete bool) []Field {
	fields := []Field{
		{Name: "created_at", Type: "timestamp", Nullable: true},
		{Name: "updated_at", Type: "timestamp", Nullable: true},
	}
	if softDelete {
		fields = append(fields, Field{Name: "deleted_at", Type: "timestamp", Nullable: true})
	}
	return fields
}

func withTimestamps(softDelete bool, fields ...Field) []Field {
	return append(fields, timestamps(softDelete)...)
}

var idField = Field{Name: "id", Type: "id"}

// OpportunityProductItem validates one entry of an opportunity's products_to_sync.
var OpportunityProductItem = &Resource{
	Name: OpportunityItemsSync,
	Fields: []Field{
		{Name: "id", Type: "id", Nullable: true},
		{Name: "product_id_reference", Type: "id", Required: true},
		{Name: "product_name", Type: "string", Nullable: true},
		{Name: "product_category", Type: "string", Nullable: true},
		{Name: "notes", Type: "text", Nullable: true},
	},
}

// ProductDistributorItem validates one entry of a product's distributors_to_sync.
var ProductDistributorItem = &Resource{
	Name: DistributorItemsSync,
	Fields: []Field{
		{Name: "distributor_id", Type: "id", Required: true},
		{Name: "vendor_item_number", Type: "string", Nullable: true},
		{Name: "status", Type: "string", Enum: []string{"pending", "active", "inactive"}, Nullable: true},
		{Name: "valid_from", Type: "date", Nullable: true},
		{Name: "valid_to", Type: "date", Nullable: true},
		{Name: "notes", Type: "text", Nullable: true},
	},
}

// CRMResources returns the built-in resource catalog.
func CRMResources() []*Resource {
	return []*Resource{
		{
			Name:       Organizations,
			SoftDelete: true,
			Fields: withTimestamps(true,
				idField,
				Field{Name: "name", Type: "string", Required: true, MinLength: 1, MaxLength: 255},
				Field{Name: "organization_type", Type: "string", Enum: []string{"customer", "prospect", "principal", "distributor", "unknown"}, Nullable: true},
				Field{Name: "priority", Type: "string", Enum: []string{"A", "B", "C", "D"}, Nullable: true},
				Field{Name: "segment_id", Type: "id", Nullable: true},
				Field{Name: "parent_organization_id", Type: "id", Nullable: true},
				Field{Name: "website", Type: "string", Nullable: true},
				Field{Name: "phone", Type: "string", Nullable: true},
				Field{Name: "address", Type: "string", Nullable: true},
				Field{Name: "city", Type: "string", Nullable: true},
				Field{Name: "state", Type: "string", Nullable: true},
				Field{Name: "postal_code", Type: "string", Nullable: true},
				Field{Name: "linkedin_url", Type: "string", Nullable: true},
				Field{Name: "description", Type: "text", Nullable: true},
				Field{Name: "sales_id", Type: "id", Nullable: true},
			),
			Computed:     []string{"nb_contacts", "nb_opportunities", "last_opportunity_activity"},
			SearchFields: []string{"name", "city", "website"},
		},
		{
			Name:       Contacts,
			SoftDelete: true,
			Fields: withTimestamps(true,
				idField,
				Field{Name: "first_name", Type: "string", Required: true, MinLength: 1},
				Field{Name: "last_name", Type: "string", Required: true, MinLength: 1},
				Field{Name: "title", Type: "string", Nullable: true},
				Field{Name: "email", Type: "json"},
				Field{Name: "phone", Type: "json"},
				Field{Name: "organization_id", Type: "id", Nullable: true},
				Field{Name: "sales_id", Type: "id", Nullable: true},
				Field{Name: "linkedin_url", Type: "string", Nullable: true},
				Field{Name: "status", Type: "string", Nullable: true},
				Field{Name: "tags", Type: "json"},
				Field{Name: "notes", Type: "text", Nullable: true},
				Field{Name: "first_seen", Type: "timestamp", Nullable: true},
				Field{Name: "last_seen", Type: "timestamp", Nullable: true},
			),
			Computed:     []string{"nb_tasks", "company_name", "organization_name"},
			SearchFields: []string{"first_name", "last_name", "title"},
		},
		{
			Name:       ContactNotes,
			SoftDelete: true,
			Fields: withTimestamps(true,
				idField,
				Field{Name: "contact_id", Type: "id", Required: true},
				Field{Name: "text", Type: "text", Required: true, MinLength: 1},
				Field{Name: "date", Type: "timestamp", Nullable: true},
				Field{Name: "sales_id", Type: "id", Nullable: true},
				Field{Name: "status", Type: "string", Nullable: true},
				Field{Name: "attachments", Type: "json"},
			),
			SearchFields: []string{"text"},
		},
		{
			Name:       Opportunities,
			SoftDelete: true,
			Fields: withTimestamps(true,
				idField,
				Field{Name: "name", Type: "string", Required: true, MinLength: 1, MaxLength: 255},
				Field{Name: "customer_organization_id", Type: "id", Required: true},
				Field{Name: "principal_organization_id", Type: "id", Required: true},
				Field{Name: "distributor_organization_id", Type: "id", Nullable: true},
				Field{Name: "stage", Type: "string", Enum: []string{
					"new_lead", "initial_outreach", "sample_visit_offered", "awaiting_response",
					"feedback_logged", "demo_scheduled", "closed_won", "closed_lost",
				}, Nullable: true},
				Field{Name: "status", Type: "string", Enum: []string{"active", "on_hold", "nurturing", "stalled", "expired"}, Nullable: true},
				Field{Name: "priority", Type: "string", Enum: []string{"low", "medium", "high", "critical"}, Nullable: true},
				Field{Name: "estimated_close_date", Type: "date", Nullable: true},
				Field{Name: "description", Type: "text", Nullable: true},
				Field{Name: "loss_reason", Type: "string", Nullable: true},
				Field{Name: "contact_ids", Type: "json"},
				Field{Name: "opportunity_owner_id", Type: "id", Nullable: true},
				Field{Name: "related_opportunity_id", Type: "id", Nullable: true},
				Field{Name: "version", Type: "int", Nullable: true},
				Field{Name: "index", Type: "int", Nullable: true},
			),
			Computed: []string{
				"customer_organization_name", "principal_organization_name", "distributor_organization_name",
				"products", "nb_interactions", "last_interaction_date",
			},
			Virtual:      []string{"products_to_sync"},
			SearchFields: []string{"name", "description"},
			Archive:      &ArchiveRPC{Name: "archive_opportunity_with_relations", IDArg: "opp_id"},
		},
		{
			Name:       OpportunityNotes,
			SoftDelete: true,
			Fields: withTimestamps(true,
				idField,
				Field{Name: "opportunity_id", Type: "id", Required: true},
				Field{Name: "text", Type: "text", Required: true, MinLength: 1},
				Field{Name: "date", Type: "timestamp", Nullable: true},
				Field{Name: "sales_id", Type: "id", Nullable: true},
				Field{Name: "attachments", Type: "json"},
			),
			SearchFields: []string{"text"},
		},
		{
			Name: OpportunityProducts,
			Fields: withTimestamps(false,
				idField,
				Field{Name: "opportunity_id", Type: "id", Required: true},
				Field{Name: "product_id_reference", Type: "id", Required: true},
				Field{Name: "product_name", Type: "string", Nullable: true},
				Field{Name: "product_category", Type: "string", Nullable: true},
				Field{Name: "notes", Type: "text", Nullable: true},
			),
		},
		{
			Name:       Products,
			SoftDelete: true,
			Fields: withTimestamps(true,
				idField,
				Field{Name: "principal_id", Type: "id", Required: true},
				Field{Name: "name", Type: "string", Required: true, MinLength: 1, MaxLength: 255},
				Field{Name: "description", Type: "text", Nullable: true},
				Field{Name: "category", Type: "string", Nullable: true},
				Field{Name: "status", Type: "string", Enum: []string{"active", "discontinued", "coming_soon"}, Nullable: true},
				Field{Name: "manufacturer_part_number", Type: "string", Nullable: true},
				Field{Name: "version", Type: "int", Nullable: true},
				Field{Name: "created_by", Type: "id", Nullable: true},
			),
			Computed:     []string{"principal_name", "distributors"},
			Virtual:      []string{"distributors_to_sync"},
			SearchFields: []string{"name", "manufacturer_part_number", "category"},
		},
		{
			Name:         ProductDistributors,
			CompositeKey: []string{"product_id", "distributor_id"},
			Fields: withTimestamps(false,
				Field{Name: "product_id", Type: "id", Required: true},
				Field{Name: "distributor_id", Type: "id", Required: true},
				Field{Name: "vendor_item_number", Type: "string", Nullable: true},
				Field{Name: "status", Type: "string", Enum: []string{"pending", "active", "inactive"}, Nullable: true},
				Field{Name: "valid_from", Type: "date", Nullable: true},
				Field{Name: "valid_to", Type: "date", Nullable: true},
				Field{Name: "notes", Type: "text", Nullable: true},
			),
		},
		{
			Name:       Activities,
			SoftDelete: true,
			Fields: withTimestamps(true,
				idField,
				Field{Name: "activity_type", Type: "string", Required: true, Enum: []string{"engagement", "interaction", "task"}},
				Field{Name: "type", Type: "string", Nullable: true},
				Field{Name: "subject", Type: "string", Required: true, MinLength: 1, MaxLength: 255},
				Field{Name: "description", Type: "text", Nullable: true},
				Field{Name: "activity_date", Type: "timestamp", Nullable: true},
				Field{Name: "due_date", Type: "date", Nullable: true},
				Field{Name: "reminder_date", Type: "date", Nullable: true},
				Field{Name: "completed", Type: "boolean", Nullable: true},
				Field{Name: "completed_at", Type: "timestamp", Nullable: true},
				Field{Name: "priority", Type: "string", Enum: []string{"low", "medium", "high", "critical"}, Nullable: true},
				Field{Name: "duration_minutes", Type: "int", Nullable: true},
				Field{Name: "contact_id", Type: "id", Nullable: true},
				Field{Name: "organization_id", Type: "id", Nullable: true},
				Field{Name: "opportunity_id", Type: "id", Nullable: true},
				Field{Name: "sales_id", Type: "id", Nullable: true},
				Field{Name: "created_by", Type: "id", Nullable: true},
			),
			SearchFields: []string{"subject", "description"},
		},
		{
			Name: Tags,
			Fields: withTimestamps(false,
				idField,
				Field{Name: "name", Type: "string", Required: true, MinLength: 1, MaxLength: 50},
				Field{Name: "color", Type: "string", Required: true},
			),
			SearchFields: []string{"name"},
		},
		{
			Name: Sales,
			Fields: withTimestamps(false,
				idField,
				Field{Name: "first_name", Type: "string", Required: true, MinLength: 1},
				Field{Name: "last_name", Type: "string", Required: true, MinLength: 1},
				Field{Name: "email", Type: "string", Required: true, Format: "email"},
				Field{Name: "administrator", Type: "boolean", Nullable: true},
				Field{Name: "disabled", Type: "boolean", Nullable: true},
				Field{Name: "user_id", Type: "uuid", Nullable: true},
			),
			SearchFields: []string{"first_name", "last_name", "email"},
		},
	}
}

// CRMRules returns the built-in cross-field rules.
func CRMRules() []*Rule {
	return []*Rule{
		{
			ID:       "opportunities.loss_reason",
			Resource: Opportunities,
			Definition: RuleDefinition{
				Field:      "loss_reason",
				Expression: `record.stage == "closed_lost" && (record.loss_reason == nil || record.loss_reason == "")`,
				Message:    "Loss reason is required when an opportunity is closed lost",
			},
			Active: true,
		},
		{
			ID:       "product_distributors.valid_range",
			Resource: ProductDistributors,
			Definition: RuleDefinition{
				Field:      "valid_to",
				Expression: `record.valid_from != nil && record.valid_to != nil && record.valid_to < record.valid_from`,
				Message:    "Valid to must be on or after valid from",
			},
			Active: true,
		},
	}
}

// NewCRMRegistry returns a registry loaded with the built-in catalog and rules.
func NewCRMRegistry() *Registry {
	reg := NewRegistry()
	reg.Load(CRMResources())
	reg.LoadRules(CRMRules())
	return reg
}
