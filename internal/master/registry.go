package master

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/patrickwarner/adslot/internal/observability"
)

// Registry hands out the Unit for an ad unit id, creating it on first use.
// Units expire after ttl without access and are closed on eviction.
type Registry struct {
	mu       sync.Mutex
	units    *cache.Cache
	ttl      time.Duration
	defaults Options
	metrics  observability.MetricsRegistry
}

// NewRegistry creates a registry whose units use defaults for any option
// left zero by the caller.
func NewRegistry(ttl time.Duration, defaults Options, metrics observability.MetricsRegistry) *Registry {
	c := cache.New(ttl, cleanupInterval(ttl))
	c.OnEvicted(func(_ string, v interface{}) {
		if u, ok := v.(*Unit); ok {
			u.Close()
		}
	})
	return &Registry{units: c, ttl: ttl, defaults: defaults, metrics: metrics}
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Minute
	}
	if ttl < 2*time.Second {
		return time.Second
	}
	return ttl / 2
}

// Unit returns the unit for id and refreshes its expiry. opts only apply
// when the unit is created.
func (r *Registry) Unit(id string, opts Options) *Unit {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.units.Get(id); ok {
		u := v.(*Unit)
		r.units.Set(id, u, cache.DefaultExpiration)
		return u
	}

	if opts.ExpectedSlots == 0 {
		opts.ExpectedSlots = r.defaults.ExpectedSlots
	}
	if opts.AggregationWindow == 0 {
		opts.AggregationWindow = r.defaults.AggregationWindow
	}
	u := NewUnit(id, opts, r.metrics)
	r.units.Set(id, u, cache.DefaultExpiration)
	return u
}

// Lookup returns an existing unit without creating one.
func (r *Registry) Lookup(id string) (*Unit, bool) {
	v, ok := r.units.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Unit), true
}

// Remove evicts and closes the unit for id.
func (r *Registry) Remove(id string) {
	r.units.Delete(id)
}

// Len reports the number of live units.
func (r *Registry) Len() int {
	return r.units.ItemCount()
}
