package sqldb

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
	"crm-backend/internal/store"
)

// encodeParam converts a filter value to the column's Go type. Ids arrive as
// strings from URLs and as float64 from JSON bodies.
func encodeParam(f *metadata.Field, v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			v = i
		} else if fl, err := n.Float64(); err == nil {
			v = fl
		}
	}
	if f == nil {
		return v
	}
	switch f.Type {
	case "id", "int", "bigint":
		switch t := v.(type) {
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return i
			}
		case float64:
			if t == float64(int64(t)) {
				return int64(t)
			}
		case int:
			return int64(t)
		}
	case "decimal":
		if s, ok := v.(string); ok {
			if fl, err := strconv.ParseFloat(s, 64); err == nil {
				return fl
			}
		}
	}
	return v
}

// encodeValue prepares a value for an INSERT or UPDATE column.
func encodeValue(f *metadata.Field, v any) any {
	if v == nil {
		return nil
	}
	if f != nil && (f.Type == "json" || f.Type == "array") {
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(b)
	}
	switch t := v.(type) {
	case map[string]any, provider.Record, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return v
		}
		return string(b)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return encodeParam(f, v)
}

// decodeRow turns a scanned row into a record shaped like the REST backend's
// JSON: JSON columns parsed, booleans as bool, timestamps as RFC 3339.
func decodeRow(d store.Dialect, res *metadata.Resource, raw map[string]any) provider.Record {
	row := provider.Record(raw)
	if res == nil {
		return row
	}
	for _, f := range res.Fields {
		v, ok := row[f.Name]
		if !ok || v == nil {
			continue
		}
		switch f.Type {
		case "json", "array":
			if s, ok := v.(string); ok {
				var decoded any
				if err := json.Unmarshal([]byte(s), &decoded); err == nil {
					row[f.Name] = decoded
				}
			}
		case "boolean":
			if d.NeedsBoolFix() {
				switch n := v.(type) {
				case int64:
					row[f.Name] = n != 0
				case float64:
					row[f.Name] = n != 0
				}
			}
		case "timestamp":
			if t, ok := v.(time.Time); ok {
				row[f.Name] = t.UTC().Format(time.RFC3339)
			}
		case "date":
			if t, ok := v.(time.Time); ok {
				row[f.Name] = t.Format(time.DateOnly)
			}
		case "decimal":
			if s, ok := v.(string); ok {
				if fl, err := strconv.ParseFloat(s, 64); err == nil {
					row[f.Name] = fl
				}
			}
		case "int", "bigint", "id":
			switch n := v.(type) {
			case int32:
				row[f.Name] = int64(n)
			case float64:
				if n == float64(int64(n)) {
					row[f.Name] = int64(n)
				}
			}
		}
	}
	return row
}
