package frame

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/patrickwarner/adslot/internal/master"
)

// Registry keeps pages and windows alive between slot requests so later
// events can reach them. Both expire after ttl without access; expired
// windows are closed.
type Registry struct {
	mu      sync.Mutex
	pages   *cache.Cache
	windows *cache.Cache
}

// NewRegistry creates an empty registry.
func NewRegistry(ttl time.Duration) *Registry {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	windows := cache.New(ttl, cleanup)
	windows.OnEvicted(func(_ string, v interface{}) {
		if w, ok := v.(*Window); ok {
			w.Close()
		}
	})
	return &Registry{pages: cache.New(ttl, cleanup), windows: windows}
}

// Page returns the page for id, creating it on first use.
func (r *Registry) Page(id string) *Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.pages.Get(id); ok {
		p := v.(*Page)
		r.pages.Set(id, p, cache.DefaultExpiration)
		return p
	}
	p := NewPage(id)
	r.pages.Set(id, p, cache.DefaultExpiration)
	return p
}

// Open creates and registers a window for a new slot invocation. An empty
// ctx.PageViewID is replaced with a fresh id.
func (r *Registry) Open(slotType string, ctx Context, host Host, unit *master.Unit) *Window {
	if ctx.PageViewID == "" {
		ctx.PageViewID = uuid.NewString()
	}
	w := NewWindow(uuid.NewString(), slotType, ctx, host, r.Page(ctx.PageViewID), unit)
	r.windows.Set(w.ID, w, cache.DefaultExpiration)
	return w
}

// Window returns a registered window and refreshes its expiry.
func (r *Registry) Window(id string) (*Window, bool) {
	v, ok := r.windows.Get(id)
	if !ok {
		return nil, false
	}
	w := v.(*Window)
	r.windows.Set(id, w, cache.DefaultExpiration)
	return w, true
}

// CloseWindow closes and forgets a window. It reports whether it existed.
func (r *Registry) CloseWindow(id string) bool {
	if _, ok := r.windows.Get(id); !ok {
		return false
	}
	r.windows.Delete(id)
	return true
}

// Windows reports the number of live windows.
func (r *Registry) Windows() int {
	return r.windows.ItemCount()
}
