package metadata

// JSONSchema builds the record schema of the resource. Unknown keys are
// rejected, and only fields marked Required are mandatory.
func (r *Resource) JSONSchema() map[string]any {
	props := make(map[string]any, len(r.Fields))
	var required []any
	for _, f := range r.Fields {
		props[f.Name] = f.JSONSchema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	s := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
