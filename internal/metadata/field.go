package metadata

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	MinLength int      `json:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Format    string   `json:"format,omitempty"`
	Precision int      `json:"precision,omitempty"`
	// Items is the element schema for "array" fields.
	Items *Resource `json:"items,omitempty"`
}

// JSONSchema returns the JSON Schema fragment validating values of this field.
func (f Field) JSONSchema() map[string]any {
	s := map[string]any{}
	switch f.Type {
	case "string", "text":
		s["type"] = "string"
		if f.MinLength > 0 {
			s["minLength"] = f.MinLength
		}
		if f.MaxLength > 0 {
			s["maxLength"] = f.MaxLength
		}
		if f.Format != "" {
			s["format"] = f.Format
		}
	case "int", "bigint":
		s["type"] = "integer"
	case "id":
		// Ids arrive as numbers from the backend and as strings from forms.
		s["type"] = []any{"integer", "string"}
	case "decimal":
		s["type"] = "number"
	case "boolean":
		s["type"] = "boolean"
	case "uuid":
		s["type"] = "string"
		s["format"] = "uuid"
	case "timestamp":
		s["type"] = "string"
		s["format"] = "date-time"
	case "date":
		s["type"] = "string"
		s["pattern"] = `^\d{4}-\d{2}-\d{2}`
	case "array":
		s["type"] = "array"
		if f.Items != nil {
			s["items"] = f.Items.JSONSchema()
		}
	case "json":
		// any JSON value
	}
	if len(f.Enum) > 0 {
		enum := make([]any, 0, len(f.Enum)+1)
		for _, e := range f.Enum {
			enum = append(enum, e)
		}
		if f.Nullable {
			enum = append(enum, nil)
		}
		s["enum"] = enum
	}
	if f.Nullable {
		if t, ok := s["type"]; ok {
			switch tv := t.(type) {
			case string:
				s["type"] = []any{tv, "null"}
			case []any:
				s["type"] = append(tv, "null")
			}
		}
	}
	return s
}
