package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr/vm"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// Validator checks write payloads and list filters for a resource.
type Validator interface {
	// ValidateRecord checks a create ("create") or update ("update") payload.
	ValidateRecord(resource, hook string, record provider.Record) error
	// SanitizeFilter cleans a list filter, or rejects it when it references
	// fields unknown to the resource.
	SanitizeFilter(resource string, filter provider.Filter) (provider.Filter, error)
}

var quotedName = regexp.MustCompile(`'([^']*)'`)

var filterOperators = map[string]bool{
	"eq": true, "neq": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"like": true, "ilike": true, "in": true, "is": true, "cs": true,
}

// SchemaValidator validates records against JSON schemas generated from the
// registry, then against the registry's expression rules.
type SchemaValidator struct {
	registry *metadata.Registry

	mu       sync.Mutex
	schemas  map[string]*jsonschema.Schema
	programs map[string]*vm.Program
}

func NewSchemaValidator(reg *metadata.Registry) *SchemaValidator {
	return &SchemaValidator{
		registry: reg,
		schemas:  make(map[string]*jsonschema.Schema),
		programs: make(map[string]*vm.Program),
	}
}

// ValidateRecord validates against the registered resource. Unknown resources pass.
func (v *SchemaValidator) ValidateRecord(resource, hook string, record provider.Record) error {
	res := v.registry.GetResource(resource)
	if res == nil {
		return nil
	}
	details, err := v.check(res, record, "")
	if err != nil {
		return err
	}
	if len(details) == 0 {
		details = v.EvaluateRules(v.registry.GetRules(resource, hook), hook, record)
	}
	if len(details) > 0 {
		return ValidationError(details)
	}
	return nil
}

// ValidateItems validates each element of a virtual list field against the
// item resource. Error paths are prefixed with field and the element index.
func (v *SchemaValidator) ValidateItems(item *metadata.Resource, field string, items []provider.Record) error {
	var details []ErrorDetail
	for i, it := range items {
		d, err := v.check(item, it, fmt.Sprintf("%s.%d", field, i))
		if err != nil {
			return err
		}
		details = append(details, d...)
	}
	if len(details) > 0 {
		return ValidationError(details)
	}
	return nil
}

func (v *SchemaValidator) check(res *metadata.Resource, record provider.Record, prefix string) ([]ErrorDetail, error) {
	schema, err := v.schemaFor(res)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", res.Name, err)
	}

	doc, err := toJSONValue(record)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", res.Name, err)
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return flattenSchemaError(ve, prefix), nil
		}
		return nil, fmt.Errorf("validate %s: %w", res.Name, err)
	}
	return nil, nil
}

func (v *SchemaValidator) schemaFor(res *metadata.Resource) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[res.Name]; ok {
		return s, nil
	}

	raw, err := json.Marshal(res.JSONSchema())
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	url := "schema://" + res.Name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	v.schemas[res.Name] = s
	return s, nil
}

// SanitizeFilter drops empty values, trims strings, and rejects keys whose
// field is unknown. An "is" comparison against nil is kept.
func (v *SchemaValidator) SanitizeFilter(resource string, filter provider.Filter) (provider.Filter, error) {
	if filter == nil {
		return nil, nil
	}
	res := v.registry.GetResource(resource)

	out := make(provider.Filter, len(filter))
	for key, val := range filter {
		field, op := provider.SplitFilterKey(key)
		if key == provider.SearchKey {
			if s, ok := val.(string); ok && strings.TrimSpace(s) != "" {
				out[key] = strings.TrimSpace(s)
			}
			continue
		}
		if res != nil && !res.IsFilterable(field) {
			return nil, UnknownFieldError(resource, field)
		}
		if !filterOperators[op] {
			return nil, NewAppError("INVALID_FILTER", 400, fmt.Sprintf("Unknown filter operator for %s: %s", field, op))
		}
		if op != "is" && isEmptyFilterValue(val) {
			continue
		}
		if s, ok := val.(string); ok {
			val = strings.TrimSpace(s)
		}
		out[key] = val
	}
	return out, nil
}

func isEmptyFilterValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// flattenSchemaError turns the leaves of a schema error tree into field
// errors. Missing and unknown properties get one entry per property.
func flattenSchemaError(ve *jsonschema.ValidationError, prefix string) []ErrorDetail {
	var out []ErrorDetail
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		path := joinPath(prefix, pointerToPath(e.InstanceLocation))
		switch {
		case strings.HasSuffix(e.KeywordLocation, "/additionalProperties"):
			for _, m := range quotedName.FindAllStringSubmatch(e.Message, -1) {
				out = append(out, ErrorDetail{
					Field:   joinPath(path, m[1]),
					Rule:    "unknown",
					Message: fmt.Sprintf("Unrecognized key: %s", m[1]),
				})
			}
		case strings.HasSuffix(e.KeywordLocation, "/required"):
			for _, m := range quotedName.FindAllStringSubmatch(e.Message, -1) {
				out = append(out, ErrorDetail{
					Field:   joinPath(path, m[1]),
					Rule:    "required",
					Message: "Required",
				})
			}
		default:
			out = append(out, ErrorDetail{
				Field:   path,
				Rule:    keywordOf(e.KeywordLocation),
				Message: e.Message,
			})
		}
	}
	walk(ve)
	return out
}

// pointerToPath converts a JSON pointer ("/address/city") to "address.city".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func joinPath(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "." + b
}

func keywordOf(loc string) string {
	if i := strings.LastIndexByte(loc, '/'); i >= 0 {
		return loc[i+1:]
	}
	return loc
}

// toJSONValue re-decodes v the way the schema library expects: maps, slices,
// strings, bools, nil and json.Number.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
