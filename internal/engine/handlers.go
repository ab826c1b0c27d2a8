package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"crm-backend/internal/instrument"
	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// HandlerOptions configures the composed resource handlers.
type HandlerOptions struct {
	Registry           *metadata.Registry
	Validator          *SchemaValidator
	Log                logr.Logger
	Audit              instrument.AuditSink
	SensitiveResources []string
}

// ResourceProvider routes each call to the handler composed for its resource.
type ResourceProvider struct {
	base     provider.DataProvider
	opts     HandlerOptions
	handlers map[string]provider.DataProvider

	mu       sync.Mutex
	fallback map[string]provider.DataProvider
}

// NewResourceProvider composes one handler per registered resource on top of base:
//
//	default:              ErrorLogging(Lifecycle(SkipDelete(Validation(base))))
//	opportunities:        ErrorLogging(MultiRowWrite(Lifecycle(SkipDelete(Validation(base)))))
//	products:             same as opportunities with the product sync
//	tasks:                TasksAdapter over the activities handler
//	product_distributors: ErrorLogging(CompositeKey(base))
func NewResourceProvider(base provider.DataProvider, opts HandlerOptions) (*ResourceProvider, error) {
	if opts.Registry == nil {
		opts.Registry = metadata.NewCRMRegistry()
	}
	if opts.Validator == nil {
		opts.Validator = NewSchemaValidator(opts.Registry)
	}
	if opts.Audit == nil {
		opts.Audit = instrument.NoopSink{}
	}

	rp := &ResourceProvider{
		base:     base,
		opts:     opts,
		handlers: make(map[string]provider.DataProvider),
		fallback: make(map[string]provider.DataProvider),
	}

	for _, res := range opts.Registry.AllResources() {
		switch res.Name {
		case metadata.Opportunities:
			rp.handlers[res.Name] = rp.compose(CallbacksFor(res), &OpportunitySync)
		case metadata.Products:
			rp.handlers[res.Name] = rp.compose(CallbacksFor(res), &ProductSync)
		case metadata.ProductDistributors:
			svc, err := NewProductDistributorService(base, opts.Validator)
			if err != nil {
				return nil, fmt.Errorf("compose %s: %w", res.Name, err)
			}
			rp.handlers[res.Name] = provider.Chain(base,
				rp.errorLogging(),
				CompositeKey(svc),
			)
		default:
			rp.handlers[res.Name] = rp.compose(CallbacksFor(res), nil)
		}
	}

	if activities, ok := rp.handlers[metadata.Activities]; ok {
		rp.handlers[metadata.Tasks] = TasksAdapter(activities)
	}
	return rp, nil
}

func (rp *ResourceProvider) errorLogging() provider.Middleware {
	return ErrorLogging(rp.opts.Log, rp.opts.Audit, rp.opts.SensitiveResources...)
}

// compose builds the default chain, with a multi-row write layer between
// error logging and the lifecycle when spec is set.
func (rp *ResourceProvider) compose(cb *CallbackSet, spec *SyncSpec) provider.DataProvider {
	mws := []provider.Middleware{rp.errorLogging()}
	if spec != nil {
		mws = append(mws, MultiRowWrite(*spec, cb, rp.opts.Validator))
	}
	mws = append(mws,
		Lifecycle(cb),
		SkipDelete(),
		Validation(rp.opts.Validator),
	)
	return provider.Chain(rp.base, mws...)
}

// For returns the handler of resource. Unregistered resources get the
// default composition with an empty callback set.
func (rp *ResourceProvider) For(resource string) provider.DataProvider {
	if h, ok := rp.handlers[resource]; ok {
		return h
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if h, ok := rp.fallback[resource]; ok {
		return h
	}
	h := rp.compose(&CallbackSet{Resource: resource}, nil)
	rp.fallback[resource] = h
	return h
}

// Has reports whether resource has a dedicated handler.
func (rp *ResourceProvider) Has(resource string) bool {
	_, ok := rp.handlers[resource]
	return ok
}

func (rp *ResourceProvider) Unwrap() provider.DataProvider { return rp.base }

func (rp *ResourceProvider) GetList(ctx context.Context, resource string, params provider.GetListParams) (*provider.ListResult, error) {
	return rp.For(resource).GetList(ctx, resource, params)
}

func (rp *ResourceProvider) GetOne(ctx context.Context, resource string, params provider.GetOneParams) (*provider.RecordResult, error) {
	return rp.For(resource).GetOne(ctx, resource, params)
}

func (rp *ResourceProvider) GetMany(ctx context.Context, resource string, params provider.GetManyParams) (*provider.ListResult, error) {
	return rp.For(resource).GetMany(ctx, resource, params)
}

func (rp *ResourceProvider) GetManyReference(ctx context.Context, resource string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	return rp.For(resource).GetManyReference(ctx, resource, params)
}

func (rp *ResourceProvider) Create(ctx context.Context, resource string, params provider.CreateParams) (*provider.RecordResult, error) {
	return rp.For(resource).Create(ctx, resource, params)
}

func (rp *ResourceProvider) Update(ctx context.Context, resource string, params provider.UpdateParams) (*provider.RecordResult, error) {
	return rp.For(resource).Update(ctx, resource, params)
}

func (rp *ResourceProvider) UpdateMany(ctx context.Context, resource string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	return rp.For(resource).UpdateMany(ctx, resource, params)
}

func (rp *ResourceProvider) Delete(ctx context.Context, resource string, params provider.DeleteParams) (*provider.RecordResult, error) {
	return rp.For(resource).Delete(ctx, resource, params)
}

func (rp *ResourceProvider) DeleteMany(ctx context.Context, resource string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	return rp.For(resource).DeleteMany(ctx, resource, params)
}
