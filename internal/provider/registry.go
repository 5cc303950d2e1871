package provider

import "fmt"

// Registry holds one Adapter per configured provider, built once at
// startup from config and handed to every HTTP handler (spec.md §4.C;
// grounded on original_source/gateway/src/providers/registry.rs's
// ProviderRegistry, generalized from its fixed four fields to the full
// fourteen-provider map).
type Registry struct {
	adapters map[ID]Adapter
}

// NewRegistry builds a Registry from the given adapters, keyed by their
// own Name().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[ID]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Provider returns the adapter for id, or an error if no adapter was
// registered under that id.
func (r *Registry) Provider(id ID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("provider %s is not configured", id)
	}
	return a, nil
}

// All returns every registered adapter in the enumeration's declaration
// order, which is stable across calls
// (original_source/gateway/src/providers/registry.rs: all()).
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, id := range allIDs {
		if a, ok := r.adapters[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
