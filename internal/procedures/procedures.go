// Package procedures implements the backend's remote procedures once, against
// a transactional Writer supplied by each base provider.
package procedures

import (
	"context"
	"fmt"
	"sort"
	"time"

	"crm-backend/internal/provider"
)

// CodeVersionConflict is returned when expected_version no longer matches.
const CodeVersionConflict = "40001"

// Writer is the view of the store a procedure runs against. All calls made
// by one procedure belong to the same transaction.
type Writer interface {
	Find(ctx context.Context, table string, filter provider.Filter) ([]provider.Record, error)
	Insert(ctx context.Context, table string, row provider.Record) (provider.Record, error)
	Update(ctx context.Context, table string, filter provider.Filter, row provider.Record) ([]provider.Record, error)
	Delete(ctx context.Context, table string, filter provider.Filter) ([]provider.Record, error)
}

// Procedure runs with decoded JSON arguments and returns a JSON-able result.
type Procedure func(ctx context.Context, w Writer, args map[string]any) (any, error)

var procedures = map[string]Procedure{
	"sync_opportunity_with_products":     SyncOpportunityWithProducts,
	"sync_product_with_distributors":     SyncProductWithDistributors,
	"archive_opportunity_with_relations": ArchiveOpportunityWithRelations,
}

// Lookup returns the named procedure.
func Lookup(name string) (Procedure, bool) {
	p, ok := procedures[name]
	return p, ok
}

// Names lists the registered procedures in order.
func Names() []string {
	names := make([]string, 0, len(procedures))
	for n := range procedures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UnknownProcedureError mirrors the backend's error for a missing function.
func UnknownProcedureError(name string) *provider.DBError {
	return &provider.DBError{
		Code:    "PGRST202",
		Message: fmt.Sprintf("Could not find the function public.%s in the schema cache", name),
	}
}

// Now is the clock used for deleted_at and updated_at stamps.
var Now = func() time.Time { return time.Now().UTC() }

func timestamp() string {
	return Now().Format(time.RFC3339)
}

func getOne(ctx context.Context, w Writer, table string, filter provider.Filter) (provider.Record, error) {
	rows, err := w.Find(ctx, table, filter)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return rows[0], nil
}

func recordArg(args map[string]any, name string) (provider.Record, error) {
	switch v := args[name].(type) {
	case provider.Record:
		return v.Clone(), nil
	case map[string]any:
		return provider.Record(v).Clone(), nil
	case nil:
		return nil, argError(name, "is required")
	}
	return nil, argError(name, "must be an object")
}

func recordsArg(args map[string]any, name string) ([]provider.Record, error) {
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case []provider.Record:
		return v, nil
	case []map[string]any:
		out := make([]provider.Record, len(v))
		for i, m := range v {
			out[i] = provider.Record(m)
		}
		return out, nil
	case []any:
		out := make([]provider.Record, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				if r, isRecord := item.(provider.Record); isRecord {
					m = r
				} else {
					return nil, argError(name, "must be a list of objects")
				}
			}
			out = append(out, provider.Record(m))
		}
		return out, nil
	}
	return nil, argError(name, "must be a list")
}

func listArg(args map[string]any, name string) ([]any, error) {
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	}
	return nil, argError(name, "must be a list")
}

func argError(name, msg string) *provider.DBError {
	return &provider.DBError{
		Code:    "22023",
		Message: fmt.Sprintf("invalid argument %s", name),
		Details: fmt.Sprintf("argument %s %s", name, msg),
	}
}

// upsertVersioned inserts data when it has no id, otherwise updates the row
// after checking expectedVersion. version is incremented on every write.
func upsertVersioned(ctx context.Context, w Writer, table string, data provider.Record, expectedVersion any) (provider.Record, error) {
	id := data.ID()
	if provider.IDString(id) == "" {
		delete(data, "id")
		data["version"] = 1
		return w.Insert(ctx, table, data)
	}

	current, err := getOne(ctx, w, table, provider.Filter{"id": id})
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && !provider.SameID(current["version"], expectedVersion) {
		return nil, &provider.DBError{
			Code:    CodeVersionConflict,
			Message: fmt.Sprintf("%s %v was modified by another user (expected version %v, found %v)", table, id, expectedVersion, current["version"]),
		}
	}

	delete(data, "id")
	delete(data, "created_at")
	data["version"] = versionNumber(current["version"]) + 1
	data["updated_at"] = timestamp()
	rows, err := w.Update(ctx, table, provider.Filter{"id": id}, data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, provider.NoRowsError()
	}
	return rows[0], nil
}

func versionNumber(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
