// Package nativery runs the Nativery native widget in a slot: it records the
// page-wide widget state once, forwards widget size changes to the host and
// loads the widget loader script.
package nativery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/adconfig"
	"github.com/patrickwarner/adslot/internal/events"
	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/observability"
	"github.com/patrickwarner/adslot/internal/scriptloader"
)

const (
	// Type is the slot type served by this adapter.
	Type = "nativery"
	// ScriptURL is the widget loader.
	ScriptURL = "https://cdn.nativery.com/widget/js/natamp.js"
	// EventWidgetCreated is dispatched by the widget once it rendered.
	EventWidgetCreated = "amp-widgetCreated"
	// GlobalKey names the page global holding the WidgetState.
	GlobalKey = "_nativery"
)

// WidgetState is the page-wide configuration the widget loader reads.
// It is created by the first nativery slot of a page and never replaced.
type WidgetState struct {
	WID      string          `json:"wid"`
	Referrer string          `json:"referrer"`
	URL      string          `json:"url"`
	ViewID   string          `json:"viewId"`
	Params   adconfig.Config `json:"params"`
}

// WidgetCreated is the detail of EventWidgetCreated.
type WidgetCreated struct {
	Height int `json:"height"`
}

// WidgetStore shares widget state between server instances.
type WidgetStore interface {
	InitWidgetState(ctx context.Context, pageViewID string, state []byte, ttl time.Duration) ([]byte, error)
}

// Adapter implements ads.Adapter for nativery slots.
type Adapter struct {
	loader    scriptloader.Loader
	store     WidgetStore
	stateTTL  time.Duration
	scriptURL string
	logger    *zap.Logger
	metrics   observability.MetricsRegistry
}

// New creates the adapter. store may be nil; an empty scriptURL means ScriptURL.
func New(loader scriptloader.Loader, store WidgetStore, stateTTL time.Duration, scriptURL string, logger *zap.Logger, metrics observability.MetricsRegistry) *Adapter {
	if scriptURL == "" {
		scriptURL = ScriptURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Adapter{
		loader:    loader,
		store:     store,
		stateTTL:  stateTTL,
		scriptURL: scriptURL,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run validates cfg, initializes the page widget state, subscribes to widget
// creation and writes the loader script into the slot document.
func (a *Adapter) Run(ctx context.Context, w *frame.Window, cfg adconfig.Config) error {
	if err := adconfig.Validate(cfg, []string{"wid"}, nil); err != nil {
		return err
	}

	// Global holds the page lock while init runs; the store round trip
	// stays outside it.
	if _, ok := w.Page.Lookup(GlobalKey); !ok {
		state := a.initState(ctx, w, cfg)
		v, created := w.Page.Global(GlobalKey, func() any { return state })
		if created {
			a.logStateCreated(v)
		}
	}

	sub, err := events.On(w.Events, EventWidgetCreated, func(e events.Event[WidgetCreated]) {
		a.logger.Info("widget ready", zap.String("window_id", w.ID))
		if e.Detail == nil {
			return
		}
		a.metrics.IncrementResizeRequests()
		w.Host.RequestResize(0, e.Detail.Height)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", EventWidgetCreated, err)
	}
	w.OnClose(sub.Unsubscribe)

	a.loader.WriteScript(ctx, w.Document, a.scriptURL)
	return nil
}

func (a *Adapter) logStateCreated(v any) {
	state := v.(*WidgetState)
	a.logger.Debug("nativery state initialized",
		zap.String("wid", state.WID),
		zap.String("page_view_id", state.ViewID))
}

func (a *Adapter) initState(ctx context.Context, w *frame.Window, cfg adconfig.Config) *WidgetState {
	state := &WidgetState{
		WID:      cfg.StringOr("wid", ""),
		Referrer: cfg.StringOr("referrer", w.Context.Referrer),
		URL:      cfg.StringOr("url", w.Context.CanonicalURL),
		ViewID:   w.Context.PageViewID,
		Params:   cfg.Clone(),
	}
	if a.store == nil {
		return state
	}

	raw, err := json.Marshal(state)
	if err != nil {
		a.logger.Warn("encode nativery state", zap.Error(err))
		return state
	}
	stored, err := a.store.InitWidgetState(ctx, state.ViewID, raw, a.stateTTL)
	if err != nil {
		a.logger.Warn("persist nativery state", zap.String("page_view_id", state.ViewID), zap.Error(err))
		return state
	}
	var shared WidgetState
	if err := json.Unmarshal(stored, &shared); err != nil {
		a.logger.Warn("decode nativery state", zap.String("page_view_id", state.ViewID), zap.Error(err))
		return state
	}
	return &shared
}

// State returns the widget state of the page, if a nativery slot ran on it.
func State(p *frame.Page) (*WidgetState, bool) {
	v, ok := p.Lookup(GlobalKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*WidgetState)
	return s, ok
}
