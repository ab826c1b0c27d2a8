package metadata

// ArchiveRPC names the procedure that soft-deletes a record together with its
// dependents, and the argument that carries the record id.
type ArchiveRPC struct {
	Name  string `json:"name"`
	IDArg string `json:"id_arg"`
}

// Resource describes one collection exposed by the data provider.
type Resource struct {
	Name       string  `json:"name"`
	Table      string  `json:"table"`
	SoftDelete bool    `json:"soft_delete"`
	Fields     []Field `json:"fields"`

	// Computed fields come from joined views and are stripped before writes.
	Computed []string `json:"computed,omitempty"`
	// Virtual fields are consumed by custom handlers and never reach a table.
	Virtual []string `json:"virtual,omitempty"`
	// SearchFields are matched by the free-text "q" filter.
	SearchFields []string `json:"search_fields,omitempty"`

	Archive *ArchiveRPC `json:"archive,omitempty"`

	// CompositeKey lists the columns forming the primary key when the table
	// has no single id column.
	CompositeKey []string `json:"composite_key,omitempty"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (r *Resource) GetField(name string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the resource has a stored field with the given name.
func (r *Resource) HasField(name string) bool {
	return r.GetField(name) != nil
}

// IsComputed reports whether name is a view-joined field.
func (r *Resource) IsComputed(name string) bool {
	return contains(r.Computed, name)
}

// IsVirtual reports whether name is a handler-only field.
func (r *Resource) IsVirtual(name string) bool {
	return contains(r.Virtual, name)
}

// IsFilterable reports whether a list filter may reference name.
// Computed fields are readable through the summary views, so they filter too.
func (r *Resource) IsFilterable(name string) bool {
	return r.HasField(name) || r.IsComputed(name)
}

// FieldNames returns all stored field names.
func (r *Resource) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// TableName returns the backing table, defaulting to the resource name.
func (r *Resource) TableName() string {
	if r.Table != "" {
		return r.Table
	}
	return r.Name
}

// HasCompositeKey reports whether the table is keyed by several columns.
func (r *Resource) HasCompositeKey() bool {
	return len(r.CompositeKey) > 1
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
