package externalsync

import (
	"errors"
	"fmt"
)

// Registry maps provider names to providers and keeps registration order.
// It is built once at startup and read-only afterwards.
type Registry struct {
	order  []string
	byName map[string]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("nil sync provider")
		}
		name := p.Name()
		if name == "" {
			return nil, errors.New("sync provider with empty name")
		}
		if _, ok := r.byName[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
		}
		r.byName[name] = p
		r.order = append(r.order, name)
	}
	return r, nil
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Select returns every provider when name is empty, otherwise the provider
// whose name matches exactly (case-sensitive), or none.
func (r *Registry) Select(name string) []Provider {
	if name == "" {
		out := make([]Provider, 0, len(r.order))
		for _, n := range r.order {
			out = append(out, r.byName[n])
		}
		return out
	}
	if p, ok := r.byName[name]; ok {
		return []Provider{p}
	}
	return nil
}

func (r *Registry) Len() int { return len(r.order) }
