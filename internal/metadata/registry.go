package metadata

import (
	"sort"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	rules     map[string][]*Rule // keyed by resource name
}

func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]*Resource),
		rules:     make(map[string][]*Rule),
	}
}

// GetResource returns the resource with the given name, or nil.
func (r *Registry) GetResource(name string) *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[name]
}

// AllResources returns all registered resources sorted by name.
func (r *Registry) AllResources() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resources := make([]*Resource, 0, len(r.resources))
	for _, res := range r.resources {
		resources = append(resources, res)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
	return resources
}

// Load replaces all resources in the registry.
func (r *Registry) Load(resources []*Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources = make(map[string]*Resource, len(resources))
	for _, res := range resources {
		r.resources[res.Name] = res
	}
}

// LoadRules replaces all rules, grouping active ones by resource in priority order.
func (r *Registry) LoadRules(rules []*Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = make(map[string][]*Rule)
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		r.rules[rule.Resource] = append(r.rules[rule.Resource], rule)
	}
	for _, list := range r.rules {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	}
}

// AddRules appends active rules to the existing set.
func (r *Registry) AddRules(rules []*Rule) {
	r.mu.Lock()
	all := make([]*Rule, 0)
	for _, list := range r.rules {
		all = append(all, list...)
	}
	r.mu.Unlock()
	r.LoadRules(append(all, rules...))
}

// GetRules returns the rules for a resource that apply to the given hook
// ("create" or "update"). Rules without a hook apply to both.
func (r *Registry) GetRules(resource, hook string) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Rule
	for _, rule := range r.rules[resource] {
		if rule.Hook == "" || rule.Hook == hook {
			out = append(out, rule)
		}
	}
	return out
}
