package frame

import (
	"sync"
	"time"
)

// Host is the embedding page's side of a slot: the lifecycle hooks an
// adapter reports to.
type Host interface {
	// RequestResize asks the page to resize the slot. A zero dimension keeps
	// the current value.
	RequestResize(width, height int)
	// RenderStart tells the page the slot is about to show content.
	RenderStart()
	// NoContentAvailable tells the page the slot will stay empty.
	NoContentAvailable()
}

// Lifecycle calls recorded by Recorder.
const (
	LifecycleResize      = "requestResize"
	LifecycleRenderStart = "renderStart"
	LifecycleNoContent   = "noContentAvailable"
)

// Outcomes derived from the recorded lifecycle.
const (
	OutcomePending   = "pending"
	OutcomeRender    = "render"
	OutcomeNoContent = "no_content"
)

// LifecycleEvent is one hook invocation.
type LifecycleEvent struct {
	Name   string    `json:"name"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
	At     time.Time `json:"at"`
}

// Recorder is a Host that keeps every hook invocation so the HTTP host can
// report them back to the page. An optional observer sees each event as it
// is recorded.
type Recorder struct {
	mu       sync.Mutex
	events   []LifecycleEvent
	observer func(LifecycleEvent)
}

// NewRecorder returns a Recorder; observer may be nil.
func NewRecorder(observer func(LifecycleEvent)) *Recorder {
	return &Recorder{observer: observer}
}

func (r *Recorder) record(e LifecycleEvent) {
	e.At = time.Now()
	r.mu.Lock()
	r.events = append(r.events, e)
	observer := r.observer
	r.mu.Unlock()
	if observer != nil {
		observer(e)
	}
}

func (r *Recorder) RequestResize(width, height int) {
	r.record(LifecycleEvent{Name: LifecycleResize, Width: width, Height: height})
}

func (r *Recorder) RenderStart() { r.record(LifecycleEvent{Name: LifecycleRenderStart}) }

func (r *Recorder) NoContentAvailable() { r.record(LifecycleEvent{Name: LifecycleNoContent}) }

// Events returns a copy of the recorded events in call order.
func (r *Recorder) Events() []LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LifecycleEvent(nil), r.events...)
}

// Count returns how many times the named hook was called.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Outcome summarizes the terminal state. The first terminal call wins.
func (r *Recorder) Outcome() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		switch e.Name {
		case LifecycleRenderStart:
			return OutcomeRender
		case LifecycleNoContent:
			return OutcomeNoContent
		}
	}
	return OutcomePending
}
