package safety

import (
	"sync"

	"github.com/poi-trace/core/pkg/poierrors"
)

// Registry maps monitorId to Detector. Registration fails on an empty id or
// a duplicate id rather than silently overwriting, matching the teacher's
// pkg/strategy.Registry precedent for strategy registration.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
	order     []string // registration order, preserved for pipeline execution
}

// NewRegistry returns an empty detector registry.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[string]Detector)}
}

// Register adds a detector under its own ID(). Fails if the id is empty or
// already registered.
func (r *Registry) Register(d Detector) error {
	if d == nil {
		return poierrors.Policy("detector cannot be nil")
	}
	id := d.ID()
	if id == "" {
		return poierrors.Policy("detector id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.detectors[id]; exists {
		return poierrors.Policy("detector already registered for id: " + id)
	}
	r.detectors[id] = d
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a detector by id.
func (r *Registry) Get(id string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[id]
	return d, ok
}

// List returns every registered detector in registration order.
func (r *Registry) List() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.detectors[id])
	}
	return out
}

// Healthcheck reports whether the registry has at least one detector
// registered, used as a liveness signal for a pipeline operator.
func (r *Registry) Healthcheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.detectors) == 0 {
		return poierrors.Policy("no detectors registered")
	}
	return nil
}
