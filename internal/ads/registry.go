// Package ads dispatches slot requests to the adapter registered for the
// slot type.
package ads

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/patrickwarner/adslot/internal/adconfig"
	"github.com/patrickwarner/adslot/internal/frame"
)

// ErrUnknownType is returned for a slot type with no registered adapter.
var ErrUnknownType = errors.New("unknown ad type")

// Adapter fills one slot window from its configuration.
type Adapter interface {
	Run(ctx context.Context, w *frame.Window, cfg adconfig.Config) error
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context, w *frame.Window, cfg adconfig.Config) error

// Run calls f.
func (f AdapterFunc) Run(ctx context.Context, w *frame.Window, cfg adconfig.Config) error {
	return f(ctx, w, cfg)
}

// Registry maps slot types to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register installs a for slotType, replacing any previous adapter.
func (r *Registry) Register(slotType string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[slotType] = a
}

// Lookup returns the adapter for slotType.
func (r *Registry) Lookup(slotType string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[slotType]
	return a, ok
}

// Has reports whether slotType has an adapter.
func (r *Registry) Has(slotType string) bool {
	_, ok := r.Lookup(slotType)
	return ok
}

// Types returns the registered slot types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Run dispatches w to the adapter for w.Type.
func (r *Registry) Run(ctx context.Context, w *frame.Window, cfg adconfig.Config) error {
	a, ok := r.Lookup(w.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	return a.Run(ctx, w, cfg)
}
