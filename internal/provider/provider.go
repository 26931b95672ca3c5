// Package provider defines enterprise field-value providers and the ordered
// registry that fans out across them.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/competitor-intel/internal/metrics"
	"github.com/sells-group/competitor-intel/internal/model"
)

// Result is one provider's answer for a competitor. Keys are registry
// field names.
type Result struct {
	Fields     map[string]string `json:"fields"`
	SourceURLs map[string]string `json:"source_urls,omitempty"`
	DataAsOf   *time.Time        `json:"data_as_of,omitempty"`
}

// FieldValueProvider supplies current values for a competitor's fields.
type FieldValueProvider interface {
	// Name identifies the provider in logs, errors and metrics.
	Name() string
	// SourceType is the authority class of every value the provider returns.
	SourceType() model.SourceType
	// QueryEntity looks up a competitor by name. A nil Result means the
	// provider knows nothing about it.
	QueryEntity(ctx context.Context, name string) (*Result, error)
}

// DefaultTimeout bounds each provider call during a fan-out.
const DefaultTimeout = 15 * time.Second

// Registry holds providers in authority order: the first registered
// provider wins when several return a value for the same field.
type Registry struct {
	mu        sync.RWMutex
	providers []FieldValueProvider
	timeout   time.Duration
	metrics   *metrics.Recorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout sets the per-provider call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records each provider call.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty provider registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a provider. A provider with the same name is replaced
// in place and keeps its position.
func (r *Registry) Register(p FieldValueProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.providers {
		if existing.Name() == p.Name() {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) FieldValueProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns registered provider names in authority order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Len reports how many providers are registered. A nil registry has none.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

func (r *Registry) snapshot() []FieldValueProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FieldValueProvider, len(r.providers))
	copy(out, r.providers)
	return out
}
