package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IDString renders an identifier the same way regardless of whether it came
// from the backend (numbers) or from a form (strings).
func IDString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return IDString(float64(v))
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SameID compares two identifiers after coercing them to their string form.
func SameID(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return IDString(a) == IDString(b)
}

// IDsOf collects the ids of the given records.
func IDsOf(records []Record) []any {
	ids := make([]any, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID())
	}
	return ids
}
