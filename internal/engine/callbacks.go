package engine

import (
	"strings"
	"time"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// Transform rewrites a write payload in place before it is saved.
type Transform func(data provider.Record)

// CallbackSet describes the lifecycle behavior of one resource. It is built
// once when handlers are composed and is read-only afterwards.
type CallbackSet struct {
	Resource       string
	SoftDelete     bool
	Timestamps     bool
	ComputedFields []string
	Transforms     []Transform
	ArchiveRPC     *metadata.ArchiveRPC
}

// CallbacksFor derives the callback set of a registered resource.
func CallbacksFor(res *metadata.Resource) *CallbackSet {
	cb := &CallbackSet{
		Resource:       res.Name,
		SoftDelete:     res.SoftDelete,
		Timestamps:     res.HasField("updated_at"),
		ComputedFields: append([]string(nil), res.Computed...),
		ArchiveRPC:     res.Archive,
	}

	var trimmed []string
	for _, f := range res.Fields {
		if f.Type == "string" {
			trimmed = append(trimmed, f.Name)
		}
	}
	if len(trimmed) > 0 {
		cb.Transforms = append(cb.Transforms, TrimFields(trimmed...))
	}
	for _, name := range []string{"website", "linkedin_url"} {
		if res.HasField(name) {
			cb.Transforms = append(cb.Transforms, NormalizeURL(name))
		}
	}
	if f := res.GetField("email"); f != nil && f.Type == "string" {
		cb.Transforms = append(cb.Transforms, LowercaseField("email"))
	}
	return cb
}

// Prepare returns a cleaned copy of a write payload: computed fields removed,
// transforms applied, and on update created_at dropped and updated_at stamped.
func (cb *CallbackSet) Prepare(data provider.Record, update bool, now time.Time) provider.Record {
	out := data.Clone()
	if out == nil {
		out = provider.Record{}
	}
	for _, f := range cb.ComputedFields {
		delete(out, f)
	}
	for _, t := range cb.Transforms {
		t(out)
	}
	if update {
		delete(out, "created_at")
		if cb.Timestamps {
			out["updated_at"] = now.UTC().Format(time.RFC3339)
		}
	}
	return out
}

// TrimFields removes surrounding whitespace from the named string fields.
func TrimFields(fields ...string) Transform {
	return func(data provider.Record) {
		for _, f := range fields {
			if s, ok := data[f].(string); ok {
				data[f] = strings.TrimSpace(s)
			}
		}
	}
}

// NormalizeURL prefixes a scheme-less URL with https://. Blank values become nil.
func NormalizeURL(field string) Transform {
	return func(data provider.Record) {
		s, ok := data[field].(string)
		if !ok {
			return
		}
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			data[field] = nil
		case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
			data[field] = s
		default:
			data[field] = "https://" + s
		}
	}
}

// LowercaseField lowercases a string field.
func LowercaseField(field string) Transform {
	return func(data provider.Record) {
		if s, ok := data[field].(string); ok {
			data[field] = strings.ToLower(strings.TrimSpace(s))
		}
	}
}
