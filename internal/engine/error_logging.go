package engine

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"crm-backend/internal/instrument"
	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// RedactedMarker replaces payload contents in logged parameter snapshots.
const RedactedMarker = "[present]"

var columnPattern = regexp.MustCompile(`column "(\w+)"`)

type errorLoggingProvider struct {
	next      provider.DataProvider
	log       logr.Logger
	audit     instrument.AuditSink
	sensitive map[string]bool
	now       func() time.Time
}

// ErrorLogging logs failures with redacted parameters, audits deletes and
// writes on sensitive resources, and reclassifies backend errors:
// a delete of a missing row succeeds with the previous data, validation
// errors pass unchanged, and database errors naming a column become field
// errors on that column.
func ErrorLogging(log logr.Logger, audit instrument.AuditSink, sensitiveResources ...string) provider.Middleware {
	if audit == nil {
		audit = instrument.NoopSink{}
	}
	sensitive := make(map[string]bool, len(sensitiveResources))
	for _, r := range sensitiveResources {
		sensitive[r] = true
	}
	return func(next provider.DataProvider) provider.DataProvider {
		return &errorLoggingProvider{
			next:      next,
			log:       log.WithName("dataprovider"),
			audit:     audit,
			sensitive: sensitive,
			now:       time.Now,
		}
	}
}

func (p *errorLoggingProvider) Unwrap() provider.DataProvider { return p.next }

func (p *errorLoggingProvider) GetList(ctx context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	res, err := p.next.GetList(ctx, resource, params)
	if err != nil {
		return nil, p.fail("getList", resource, map[string]any{
			"pagination": params.Pagination,
			"sort":       params.Sort,
			"filter":     filterKeys(params.Filter),
			"meta":       metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "getList", resource, func() []any { return provider.IDsOf(res.Data) })
	return res, nil
}

func (p *errorLoggingProvider) GetOne(ctx context.Context, resource string, params provider.GetOneParams) (*provider.RecordResult, error) {
	res, err := p.next.GetOne(ctx, resource, params)
	if err != nil {
		return nil, p.fail("getOne", resource, map[string]any{
			"id":   params.ID,
			"meta": metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "getOne", resource, func() []any { return []any{params.ID} })
	return res, nil
}

func (p *errorLoggingProvider) GetMany(ctx context.Context, resource string, params provider.GetManyParams) (*provider.ListResult, error) {
	res, err := p.next.GetMany(ctx, resource, params)
	if err != nil {
		return nil, p.fail("getMany", resource, map[string]any{
			"ids":  params.IDs,
			"meta": metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "getMany", resource, func() []any { return provider.IDsOf(res.Data) })
	return res, nil
}

func (p *errorLoggingProvider) GetManyReference(ctx context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	res, err := p.next.GetManyReference(ctx, resource, params)
	if err != nil {
		return nil, p.fail("getManyReference", resource, map[string]any{
			"target":     params.Target,
			"id":         params.ID,
			"pagination": params.Pagination,
			"sort":       params.Sort,
			"filter":     filterKeys(params.Filter),
			"meta":       metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "getManyReference", resource, func() []any { return provider.IDsOf(res.Data) })
	return res, nil
}

func (p *errorLoggingProvider) Create(ctx context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	res, err := p.next.Create(ctx, resource, params)
	if err != nil {
		return nil, p.fail("create", resource, map[string]any{
			"data": presence(params.Data),
			"meta": metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "create", resource, func() []any { return []any{res.Data.ID()} })
	return res, nil
}

func (p *errorLoggingProvider) Update(ctx context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	res, err := p.next.Update(ctx, resource, params)
	if err != nil {
		return nil, p.fail("update", resource, map[string]any{
			"id":           params.ID,
			"data":         presence(params.Data),
			"previousData": presence(params.PreviousData),
			"meta":         metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "update", resource, func() []any { return []any{params.ID} })
	return res, nil
}

func (p *errorLoggingProvider) UpdateMany(ctx context.Context, resource string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	res, err := p.next.UpdateMany(ctx, resource, params)
	if err != nil {
		return nil, p.fail("updateMany", resource, map[string]any{
			"ids":  params.IDs,
			"data": presence(params.Data),
			"meta": metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "updateMany", resource, func() []any { return res.Data })
	return res, nil
}

func (p *errorLoggingProvider) Delete(ctx context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	res, err := p.next.Delete(ctx, resource, params)
	if err != nil {
		if !IsNoRowsError(err) {
			return nil, p.fail("delete", resource, map[string]any{
				"id":           params.ID,
				"previousData": presence(params.PreviousData),
				"meta":         metaKeys(params.Meta),
			}, err)
		}
		p.log.V(1).Info("delete target already gone", "resource", resource, "id", params.ID)
		data := params.PreviousData
		if data == nil {
			data = provider.Record{"id": params.ID}
		}
		res = &provider.RecordResult{Data: data}
	}
	p.succeed(ctx, "delete", resource, func() []any { return []any{params.ID} })
	return res, nil
}

func (p *errorLoggingProvider) DeleteMany(ctx context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	res, err := p.next.DeleteMany(ctx, resource, params)
	if err != nil {
		return nil, p.fail("deleteMany", resource, map[string]any{
			"ids":  params.IDs,
			"meta": metaKeys(params.Meta),
		}, err)
	}
	p.succeed(ctx, "deleteMany", resource, func() []any { return res.Data })
	return res, nil
}

func (p *errorLoggingProvider) succeed(ctx context.Context, method, resource string, ids func() []any) {
	if method != "delete" && method != "deleteMany" && !p.sensitive[resource] {
		return
	}
	entry := instrument.AuditEntry{
		Method:    method,
		Resource:  resource,
		IDs:       ids(),
		Timestamp: p.now().UTC(),
	}
	if u := metadata.UserFromContext(ctx); u != nil {
		entry.Actor = u.ID
	}
	p.log.Info("audit", "method", method, "resource", resource, "ids", entry.IDs, "actor", entry.Actor)
	p.audit.Record(ctx, entry)
}

// fail logs the failure and returns the reclassified error.
func (p *errorLoggingProvider) fail(method, resource string, snapshot map[string]any, err error) error {
	p.log.Error(loggedError(err), "data provider operation failed", "method", method, "resource", resource, "params", snapshot)

	if appErr, ok := AsValidationError(err); ok {
		p.log.Info("validation errors", "method", method, "resource", resource, "errors", appErr.FieldErrors())
		return err
	}

	// PGRST116 carries both a code and details but stays a not-found error.
	var dbErr *provider.DBError
	if errors.As(err, &dbErr) && dbErr.Code != "" && dbErr.Details != "" && !errors.Is(err, provider.ErrNotFound) {
		field := ColumnFromDBError(dbErr)
		reclassified := ValidationError([]ErrorDetail{{Field: field, Rule: "database", Message: dbErr.Message}})
		p.log.Info("validation errors", "method", method, "resource", resource, "errors", reclassified.FieldErrors(), "code", dbErr.Code)
		return reclassified
	}
	return err
}

// loggedError strips database error details, which quote row values such as
// "Key (email)=(...) already exists", before the error reaches the log.
func loggedError(err error) error {
	var dbErr *provider.DBError
	if !errors.As(err, &dbErr) || dbErr.Details == "" {
		return err
	}
	return &provider.DBError{Code: dbErr.Code, Message: dbErr.Message, Details: RedactedMarker}
}

// IsNoRowsError reports whether err means the addressed row does not exist.
func IsNoRowsError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, provider.ErrNotFound) {
		return true
	}
	var dbErr *provider.DBError
	if errors.As(err, &dbErr) && dbErr.Code == provider.CodeNoRows {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "cannot coerce")
}

// ColumnFromDBError extracts the offending column from the error details,
// then from the message. It returns "_error" when neither names a column.
func ColumnFromDBError(e *provider.DBError) string {
	for _, s := range []string{e.Details, e.Message} {
		if m := columnPattern.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return GeneralErrorKey
}

func presence(r provider.Record) any {
	if r == nil {
		return nil
	}
	return RedactedMarker
}

func filterKeys(f provider.Filter) []string {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func metaKeys(m provider.Meta) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
