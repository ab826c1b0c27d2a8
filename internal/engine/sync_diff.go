package engine

import (
	"fmt"
	"reflect"

	"crm-backend/internal/provider"
)

// ItemDiff is the change set between a stored child list and a submitted one.
type ItemDiff struct {
	Creates   []provider.Record
	Updates   []provider.Record
	DeleteIDs []any
}

// DiffItems compares incoming items with the previous ones by key.
// Incoming items whose key is new are created. Items whose key already
// exists are updated when any submitted value changed, carrying the stored
// row id if the submission lacks one. Previous items missing from incoming
// are deleted and reported by their deleteKey value.
func DiffItems(previous, incoming []provider.Record, key, deleteKey string) ItemDiff {
	byKey := make(map[string]provider.Record, len(previous))
	for _, row := range previous {
		if k := provider.IDString(row[key]); k != "" {
			byKey[k] = row
		}
	}

	var diff ItemDiff
	seen := make(map[string]bool, len(incoming))
	for _, item := range incoming {
		k := provider.IDString(item[key])
		old, exists := byKey[k]
		if k == "" || !exists {
			diff.Creates = append(diff.Creates, item)
			continue
		}
		seen[k] = true
		if !changed(old, item) {
			continue
		}
		upd := item.Clone()
		if upd["id"] == nil && old["id"] != nil {
			upd["id"] = old["id"]
		}
		diff.Updates = append(diff.Updates, upd)
	}

	for _, row := range previous {
		k := provider.IDString(row[key])
		if k == "" || seen[k] {
			continue
		}
		diff.DeleteIDs = append(diff.DeleteIDs, row[deleteKey])
	}
	return diff
}

func changed(old, item provider.Record) bool {
	for f, v := range item {
		if f == "id" {
			continue
		}
		ov := old[f]
		if reflect.DeepEqual(ov, v) {
			continue
		}
		if isScalarID(ov) && isScalarID(v) && provider.SameID(ov, v) {
			continue
		}
		return true
	}
	return false
}

func isScalarID(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int32, int64:
		return true
	}
	return false
}

// RecordsOf converts a decoded JSON list into records. It accepts []any of
// objects, []map[string]any and []provider.Record.
func RecordsOf(v any) ([]provider.Record, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []provider.Record:
		return list, nil
	case []map[string]any:
		out := make([]provider.Record, len(list))
		for i, m := range list {
			out[i] = provider.Record(m)
		}
		return out, nil
	case []any:
		out := make([]provider.Record, 0, len(list))
		for i, item := range list {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, provider.Record(m))
			case provider.Record:
				out = append(out, m)
			default:
				return nil, fmt.Errorf("item %d is %T, not an object", i, item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

// RecordFromResult extracts the parent record from a procedure result.
func RecordFromResult(v any) (provider.Record, error) {
	switch r := v.(type) {
	case provider.Record:
		return r, nil
	case map[string]any:
		return provider.Record(r), nil
	case []any:
		if len(r) == 0 {
			return nil, provider.NoRowsError()
		}
		return RecordFromResult(r[0])
	case []provider.Record:
		if len(r) == 0 {
			return nil, provider.NoRowsError()
		}
		return r[0], nil
	}
	return nil, fmt.Errorf("unexpected procedure result %T", v)
}
