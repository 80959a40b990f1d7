// Package backend provides the settlement backend implementations and their
// registry.
package backend

import (
	"strings"

	"github.com/nestwatch/payments/settlement/domain"
)

// Registry resolves a configured backend name to an implementation.
type Registry struct {
	backends map[string]domain.Backend
}

func NewRegistry(backends ...domain.Backend) *Registry {
	registry := &Registry{backends: map[string]domain.Backend{}}
	for _, b := range backends {
		if b == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(b.Name()))
		if name == "" {
			continue
		}
		registry.backends[name] = b
	}
	return registry
}

func (r *Registry) Get(name string) (domain.Backend, error) {
	if r == nil {
		return nil, domain.ErrBackendNotFound
	}
	b, ok := r.backends[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.ErrBackendNotFound
	}
	return b, nil
}
