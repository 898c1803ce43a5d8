// Package events provides typed, named event subscriptions for a slot
// window. Subscriptions are explicit values that can be released, and events
// arriving over the wire as JSON are decoded into the subscriber's type.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrTypeMismatch is returned when a name is subscribed with two different
// detail types.
var ErrTypeMismatch = errors.New("event detail type mismatch")

// Event is one delivered notification. Detail is nil when the sender did not
// attach one.
type Event[T any] struct {
	Name   string
	Detail *T
}

// Subscription is a registered handler.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() { s.once.Do(s.cancel) }

// Bus delivers events of one detail type to its handlers in subscription
// order.
type Bus[T any] struct {
	name     string
	mu       sync.Mutex
	next     int
	handlers map[int]func(Event[T])
	order    []int
}

// NewBus returns an empty bus for the named event.
func NewBus[T any](name string) *Bus[T] {
	return &Bus[T]{name: name, handlers: make(map[int]func(Event[T]))}
}

// Subscribe registers fn until the returned subscription is released.
func (b *Bus[T]) Subscribe(fn func(Event[T])) Subscription {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	return &subscription{cancel: func() { b.remove(id) }}
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers detail to every current handler and returns how many ran.
// Handlers run on the caller's goroutine, outside the bus lock.
func (b *Bus[T]) Publish(detail *T) int {
	b.mu.Lock()
	fns := make([]func(Event[T]), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.handlers[id])
	}
	b.mu.Unlock()

	e := Event[T]{Name: b.name, Detail: detail}
	for _, fn := range fns {
		fn(e)
	}
	return len(fns)
}

// Len reports the number of active handlers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// PublishJSON decodes raw into T and publishes it. Empty or null raw
// publishes an event without detail.
func (b *Bus[T]) PublishJSON(raw []byte) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return b.Publish(nil), nil
	}
	var detail T
	if err := json.Unmarshal(raw, &detail); err != nil {
		return 0, fmt.Errorf("decode %s detail: %w", b.name, err)
	}
	return b.Publish(&detail), nil
}

type jsonPublisher interface {
	PublishJSON(raw []byte) (int, error)
	Len() int
}

// Target is the set of named buses belonging to one window.
type Target struct {
	mu    sync.Mutex
	buses map[string]jsonPublisher
}

// NewTarget returns a Target with no subscriptions.
func NewTarget() *Target {
	return &Target{buses: make(map[string]jsonPublisher)}
}

// BusFor returns the bus for name, creating it on first use. It fails when
// name was already created with a different detail type.
func BusFor[T any](t *Target, name string) (*Bus[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.buses[name]; ok {
		b, ok := existing.(*Bus[T])
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrTypeMismatch)
		}
		return b, nil
	}
	b := NewBus[T](name)
	t.buses[name] = b
	return b, nil
}

// On subscribes fn to the named event on t.
func On[T any](t *Target, name string, fn func(Event[T])) (Subscription, error) {
	b, err := BusFor[T](t, name)
	if err != nil {
		return nil, err
	}
	return b.Subscribe(fn), nil
}

// Dispatch delivers a JSON detail to the subscribers of name. Events nobody
// listens to are dropped and report zero deliveries.
func (t *Target) Dispatch(name string, raw []byte) (int, error) {
	t.mu.Lock()
	b, ok := t.buses[name]
	t.mu.Unlock()
	if !ok {
		return 0, nil
	}
	return b.PublishJSON(raw)
}

// Listeners reports how many handlers are subscribed to name.
func (t *Target) Listeners(name string) int {
	t.mu.Lock()
	b, ok := t.buses[name]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	return b.Len()
}
