package provider

// Middleware wraps a provider and returns a provider with added behavior.
type Middleware func(next DataProvider) DataProvider

// Chain wraps base with the given middlewares. The first middleware ends up
// outermost: Chain(base, a, b) == a(b(base)).
func Chain(base DataProvider, mws ...Middleware) DataProvider {
	p := base
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}

// Wrapper is implemented by decorators so capability lookups can reach the base provider.
type Wrapper interface {
	Unwrap() DataProvider
}

// Unwrap returns the provider wrapped by p, or nil when p is not a decorator.
func Unwrap(p DataProvider) DataProvider {
	if w, ok := p.(Wrapper); ok {
		return w.Unwrap()
	}
	return nil
}
