package provider

import (
	"context"
	"errors"
	"io"
)

var (
	ErrRPCUnsupported         = errors.New("provider does not support remote-procedure calls")
	ErrStorageUnsupported     = errors.New("provider does not support object storage")
	ErrInvokeUnsupported      = errors.New("provider does not support function invocation")
	ErrFilterWriteUnsupported = errors.New("provider does not support filtered writes")
)

// RPCInvoker runs a named remote procedure atomically on the backend.
type RPCInvoker interface {
	RPC(ctx context.Context, fn string, args map[string]any) (any, error)
}

// ObjectStorage stores attachment blobs next to the records.
type ObjectStorage interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader) (string, error)
	Download(ctx context.Context, bucket, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, bucket string, paths ...string) error
	PublicURL(bucket, path string) string
}

// FunctionInvoker calls a hosted function by name.
type FunctionInvoker interface {
	Invoke(ctx context.Context, fn string, body any) (any, error)
}

// FilterWriter writes rows addressed by a filter instead of a single id column.
type FilterWriter interface {
	UpdateWhere(ctx context.Context, resource string, filter Filter, data Record) ([]Record, error)
	DeleteWhere(ctx context.Context, resource string, filter Filter) ([]Record, error)
}

// AsRPC finds an RPCInvoker in p or any provider it wraps.
func AsRPC(p DataProvider) (RPCInvoker, error) {
	for cur := p; cur != nil; cur = Unwrap(cur) {
		if c, ok := cur.(RPCInvoker); ok {
			return c, nil
		}
	}
	return nil, ErrRPCUnsupported
}

// AsStorage finds an ObjectStorage in p or any provider it wraps.
func AsStorage(p DataProvider) (ObjectStorage, error) {
	for cur := p; cur != nil; cur = Unwrap(cur) {
		if c, ok := cur.(ObjectStorage); ok {
			return c, nil
		}
	}
	return nil, ErrStorageUnsupported
}

// AsInvoker finds a FunctionInvoker in p or any provider it wraps.
func AsInvoker(p DataProvider) (FunctionInvoker, error) {
	for cur := p; cur != nil; cur = Unwrap(cur) {
		if c, ok := cur.(FunctionInvoker); ok {
			return c, nil
		}
	}
	return nil, ErrInvokeUnsupported
}

// AsFilterWriter finds a FilterWriter in p or any provider it wraps.
func AsFilterWriter(p DataProvider) (FilterWriter, error) {
	for cur := p; cur != nil; cur = Unwrap(cur) {
		if c, ok := cur.(FilterWriter); ok {
			return c, nil
		}
	}
	return nil, ErrFilterWriteUnsupported
}
