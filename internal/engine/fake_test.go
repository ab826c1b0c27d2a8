package engine

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"crm-backend/internal/instrument"
	"crm-backend/internal/provider"
)

// call is one operation seen by the fake backend.
type call struct {
	Method   string
	Resource string
	Params   any
}

// fakeProvider records every call and answers with canned results. It
// supports RPC and filtered writes so capability lookups succeed.
type fakeProvider struct {
	calls []call

	listResult *provider.ListResult
	oneResult  *provider.RecordResult
	rpcResult  any
	whereRows  []provider.Record
	err        error
	rpcErr     error
}

func (f *fakeProvider) record(method, resource string, params any) {
	f.calls = append(f.calls, call{Method: method, Resource: resource, Params: params})
}

func (f *fakeProvider) methods() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

func (f *fakeProvider) last() call {
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeProvider) list() (*provider.ListResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.listResult != nil {
		return f.listResult, nil
	}
	return &provider.ListResult{Data: []provider.Record{}}, nil
}

func (f *fakeProvider) one(data provider.Record) (*provider.RecordResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.oneResult != nil {
		return f.oneResult, nil
	}
	return &provider.RecordResult{Data: data}, nil
}

func (f *fakeProvider) GetList(_ context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	f.record("getList", resource, params)
	return f.list()
}

func (f *fakeProvider) GetOne(_ context.Context, resource string, params provider.GetOneParams) (*provider.RecordResult, error) {
	f.record("getOne", resource, params)
	return f.one(provider.Record{"id": params.ID})
}

func (f *fakeProvider) GetMany(_ context.Context, resource string, params provider.GetManyParams) (*provider.ListResult, error) {
	f.record("getMany", resource, params)
	return f.list()
}

func (f *fakeProvider) GetManyReference(_ context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	f.record("getManyReference", resource, params)
	return f.list()
}

func (f *fakeProvider) Create(_ context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	f.record("create", resource, params)
	data := params.Data.Clone()
	if data != nil && data["id"] == nil {
		data["id"] = int64(1)
	}
	return f.one(data)
}

func (f *fakeProvider) Update(_ context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	f.record("update", resource, params)
	data := params.Data.Clone()
	if data == nil {
		data = provider.Record{}
	}
	data["id"] = params.ID
	return f.one(data)
}

func (f *fakeProvider) UpdateMany(_ context.Context, resource string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	f.record("updateMany", resource, params)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.IDsResult{Data: params.IDs}, nil
}

func (f *fakeProvider) Delete(_ context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	f.record("delete", resource, params)
	return f.one(provider.Record{"id": params.ID})
}

func (f *fakeProvider) DeleteMany(_ context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	f.record("deleteMany", resource, params)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.IDsResult{Data: params.IDs}, nil
}

type rpcCall struct {
	Fn   string
	Args map[string]any
}

type whereCall struct {
	Filter provider.Filter
	Data   provider.Record
}

func (f *fakeProvider) RPC(_ context.Context, fn string, args map[string]any) (any, error) {
	f.record("rpc", fn, rpcCall{Fn: fn, Args: args})
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	if f.rpcResult != nil {
		return f.rpcResult, nil
	}
	return provider.Record{"id": args["opp_id"]}, nil
}

func (f *fakeProvider) UpdateWhere(_ context.Context, resource string, filter provider.Filter, data provider.Record) ([]provider.Record, error) {
	f.record("updateWhere", resource, whereCall{Filter: filter, Data: data})
	if f.err != nil {
		return nil, f.err
	}
	if f.whereRows != nil {
		return f.whereRows, nil
	}
	return []provider.Record{{"id": filter["id"]}}, nil
}

func (f *fakeProvider) DeleteWhere(_ context.Context, resource string, filter provider.Filter) ([]provider.Record, error) {
	f.record("deleteWhere", resource, whereCall{Filter: filter})
	if f.err != nil {
		return nil, f.err
	}
	if f.whereRows != nil {
		return f.whereRows, nil
	}
	return []provider.Record{provider.Record(filter.Clone())}, nil
}

// bareProvider hides the optional capabilities of the wrapped fake.
type bareProvider struct {
	provider.DataProvider
}

// auditRecorder collects audit entries.
type auditRecorder struct {
	entries []instrument.AuditEntry
}

func (a *auditRecorder) Record(_ context.Context, e instrument.AuditEntry) {
	a.entries = append(a.entries, e)
}

// logLine is one line captured by testLogger.
type logLine struct {
	Prefix string
	Args   string
}

// testLogger returns a logger that forwards to t.Log and keeps every line.
func testLogger(t *testing.T) (logr.Logger, *[]logLine) {
	t.Helper()
	var lines []logLine
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, logLine{Prefix: prefix, Args: args})
		t.Log(prefix, args)
	}, funcr.Options{Verbosity: 1})
	return log, &lines
}
