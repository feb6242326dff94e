// Package sync describes the entities pulled from SAP and how each remote
// record maps onto a stored row.
package sync

import (
	"sync"

	"sap-sales-sync/internal/records"
	"sap-sales-sync/internal/repository"
)

// DecodeFunc maps one remote record onto a typed row. An error excludes the
// record from the batch.
type DecodeFunc func(raw map[string]any) (records.Record, error)

// EntitySpec is everything the generic orchestrator needs to sync one entity.
type EntitySpec struct {
	Name        string               `json:"name"`         // e.g. "sales_orders"
	DisplayName string               `json:"display_name"` // e.g. "Sales Order Data"
	SourceURL   string               `json:"-"`
	Table       repository.TableSpec `json:"table"`
	Decode      DecodeFunc           `json:"-"`
}

// Registry holds the entity specs in registration order, which is also the
// order the scheduler runs them in. It is safe for concurrent access.
type Registry struct {
	mu    sync.RWMutex
	order []string
	specs map[string]EntitySpec
}

// NewRegistry creates a registry holding specs in the given order
func NewRegistry(specs ...EntitySpec) *Registry {
	r := &Registry{specs: make(map[string]EntitySpec, len(specs))}
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// Register adds a spec. A spec with the same name is replaced in place.
func (r *Registry) Register(spec EntitySpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.specs[spec.Name] = spec
}

// Get retrieves a spec by name.
func (r *Registry) Get(name string) (EntitySpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	return spec, ok
}

// List returns every spec in registration order.
func (r *Registry) List() []EntitySpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]EntitySpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Names returns the registered entity names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Count returns the number of registered specs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}
