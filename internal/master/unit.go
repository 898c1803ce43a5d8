// Package master coordinates work shared by the sibling slots of one ad
// unit. A Unit plays the role of the master frame: the first slot to ask for
// a keyed computation runs it, every other slot, including ones that arrive
// after it settled, receives the same result.
package master

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/patrickwarner/adslot/internal/observability"
)

// ErrUnitClosed is returned by a Unit that was evicted or closed.
var ErrUnitClosed = errors.New("master unit closed")

// Options tune how long a unit waits for its slots before running work.
type Options struct {
	// ExpectedSlots is the number of slots that normally join the unit.
	// Work waits for that many callers of the same key, bounded by
	// AggregationWindow. Zero or less means the count is unknown and work
	// waits for the whole window. One disables waiting.
	ExpectedSlots int
	// AggregationWindow bounds the wait for ExpectedSlots. Zero disables
	// waiting.
	AggregationWindow time.Duration
}

type outcome struct {
	val any
	err error
}

// Unit is the shared context of one ad unit.
type Unit struct {
	id      string
	opts    Options
	metrics observability.MetricsRegistry

	flight singleflight.Group

	mu     sync.Mutex
	closed bool
	memo   map[string]outcome
	joined map[string]int
	ready  map[string]chan struct{}
	values map[string]any
}

// NewUnit returns an empty unit.
func NewUnit(id string, opts Options, metrics observability.MetricsRegistry) *Unit {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Unit{
		id:      id,
		opts:    opts,
		metrics: metrics,
		memo:    make(map[string]outcome),
		joined:  make(map[string]int),
		ready:   make(map[string]chan struct{}),
		values:  make(map[string]any),
	}
}

// ID returns the unit identifier.
func (u *Unit) ID() string { return u.id }

// Options returns the options the unit was created with.
func (u *Unit) Options() Options { return u.opts }

// Compute runs work at most once per key for the lifetime of the unit and
// returns its memoized result to every caller, errors included.
//
// Before work runs the unit waits for ExpectedSlots callers of key or for
// AggregationWindow, whichever comes first. With no known slot count it
// waits for the whole window. Work receives a context that is
// not cancelled when the first caller goes away; each caller still stops
// waiting when its own ctx is done.
func (u *Unit) Compute(ctx context.Context, key string, work func(context.Context) (any, error)) (any, error) {
	return u.do(ctx, key, true, work)
}

// Once is Compute without the aggregation wait, used for singletons such as
// a vendor library that must be loaded once per unit.
func (u *Unit) Once(ctx context.Context, key string, init func(context.Context) (any, error)) (any, error) {
	return u.do(ctx, "once:"+key, false, init)
}

func (u *Unit) do(ctx context.Context, key string, barrier bool, work func(context.Context) (any, error)) (any, error) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil, ErrUnitClosed
	}
	if o, ok := u.memo[key]; ok {
		u.mu.Unlock()
		u.metrics.IncrementMasterComputations(key, "shared")
		return o.val, o.err
	}
	ready := u.join(key)
	u.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	executed := false
	ch := u.flight.DoChan(key, func() (any, error) {
		u.mu.Lock()
		o, ok := u.memo[key]
		u.mu.Unlock()
		if ok {
			return o.val, o.err
		}

		if barrier {
			u.await(ready)
		}
		executed = true
		val, err := work(detached)

		u.mu.Lock()
		if !u.closed {
			u.memo[key] = outcome{val: val, err: err}
		}
		u.mu.Unlock()
		return val, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		role := "shared"
		if executed {
			role = "executed"
		}
		u.metrics.IncrementMasterComputations(key, role)
		return res.Val, res.Err
	}
}

// join records a caller of key and returns the channel closed once the
// expected number of callers joined. Callers hold u.mu.
func (u *Unit) join(key string) chan struct{} {
	ch, ok := u.ready[key]
	if !ok {
		ch = make(chan struct{})
		u.ready[key] = ch
	}
	u.joined[key]++
	if u.opts.ExpectedSlots > 0 && u.joined[key] == u.opts.ExpectedSlots {
		close(ch)
	}
	return ch
}

func (u *Unit) await(ready <-chan struct{}) {
	if u.opts.ExpectedSlots == 1 || u.opts.AggregationWindow <= 0 {
		return
	}
	timer := time.NewTimer(u.opts.AggregationWindow)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
	}
}

// Joined reports how many callers asked for key so far.
func (u *Unit) Joined(key string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.joined[key]
}

// Value returns the shared value stored under key, creating it with init on
// first use. The value is shared by reference between all slots of the unit.
func (u *Unit) Value(key string, init func() any) any {
	u.mu.Lock()
	defer u.mu.Unlock()
	if v, ok := u.values[key]; ok {
		return v
	}
	v := init()
	u.values[key] = v
	return v
}

// Close drops memoized results and shared values. Later calls fail with
// ErrUnitClosed.
func (u *Unit) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	u.memo = make(map[string]outcome)
	u.values = make(map[string]any)
}
