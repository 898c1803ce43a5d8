// Package frame models the environment an ad adapter runs in: the slot
// window with its document, the page it belongs to, the host hooks it
// reports to, and the master unit it shares with sibling slots.
package frame

import (
	"sync"

	"github.com/patrickwarner/adslot/internal/events"
	"github.com/patrickwarner/adslot/internal/master"
)

// Context is the data the host supplies to every slot.
type Context struct {
	CanonicalURL string `json:"canonicalUrl"`
	Referrer     string `json:"referrer"`
	PageViewID   string `json:"pageViewId"`
	Location     string `json:"location,omitempty"`
}

// Page holds the page-global state shared by every slot of one page view.
type Page struct {
	id      string
	mu      sync.Mutex
	globals map[string]any
}

// NewPage returns a page with no globals.
func NewPage(id string) *Page {
	return &Page{id: id, globals: make(map[string]any)}
}

// ID returns the page view id.
func (p *Page) ID() string { return p.id }

// Global returns the global stored under key, creating it with init when
// absent. created reports whether init ran. Globals are never replaced.
// init runs with the page locked and must not block; compute anything slow
// beforehand and check Lookup first.
func (p *Page) Global(key string, init func() any) (v any, created bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.globals[key]; ok {
		return v, false
	}
	v = init()
	p.globals[key] = v
	return v, true
}

// Lookup returns the global stored under key.
func (p *Page) Lookup(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.globals[key]
	return v, ok
}

// Window is one slot invocation.
type Window struct {
	ID       string
	Type     string
	Context  Context
	Host     Host
	Document *Document
	Page     *Page
	Master   *master.Unit
	Events   *events.Target

	mu      sync.Mutex
	closed  bool
	closers []func()
}

// NewWindow assembles a window. page and unit may be shared with other
// windows; document and events are owned by this one.
func NewWindow(id, slotType string, ctx Context, host Host, page *Page, unit *master.Unit) *Window {
	return &Window{
		ID:       id,
		Type:     slotType,
		Context:  ctx,
		Host:     host,
		Document: NewDocument(),
		Page:     page,
		Master:   unit,
		Events:   events.NewTarget(),
	}
}

// OnClose registers fn to run when the window closes. On an already closed
// window fn runs immediately.
func (w *Window) OnClose(fn func()) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		fn()
		return
	}
	w.closers = append(w.closers, fn)
	w.mu.Unlock()
}

// Close releases everything registered with OnClose, in reverse order.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	closers := w.closers
	w.closers = nil
	w.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// Closed reports whether Close was called.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
