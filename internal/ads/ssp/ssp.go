// Package ssp runs Seznam SSP slots. Every slot of an ad unit registers its
// position on the shared unit; the unit resolves all of them with a single
// vendor request and each slot then renders its own result.
package ssp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/adconfig"
	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/master"
	"github.com/patrickwarner/adslot/internal/observability"
	"github.com/patrickwarner/adslot/internal/scriptloader"
	"github.com/patrickwarner/adslot/internal/sssp"
)

const (
	// Type is the slot type served by this adapter.
	Type = "ssp"
	// ScriptURL is the vendor library.
	ScriptURL = "https://ssp.imedia.cz/static/js/ssp.js"
	// ComputeKey identifies the shared ad resolution on the unit.
	ComputeKey = "ssp-load"

	libraryKey   = "sssp"
	positionsKey = "positions"
)

var errNoLibrary = errors.New("init vendor: no library")

// VendorFactory builds the vendor library once its script is loaded.
type VendorFactory func(ctx context.Context) (sssp.Library, error)

// Resolution is the memoized outcome of ComputeKey on a unit.
type Resolution struct {
	Ads     []sssp.AdResult
	Library sssp.Library
}

// Find returns the result for positionID.
func (r *Resolution) Find(positionID string) (sssp.AdResult, bool) {
	for _, ad := range r.Ads {
		if ad.ID == positionID {
			return ad, true
		}
	}
	return sssp.AdResult{}, false
}

// Adapter implements ads.Adapter for ssp slots.
type Adapter struct {
	loader    scriptloader.Loader
	vendor    VendorFactory
	scriptURL string
	logger    *zap.Logger
}

// New creates the adapter. An empty scriptURL means ScriptURL.
func New(loader scriptloader.Loader, vendor VendorFactory, scriptURL string, logger *zap.Logger) *Adapter {
	if scriptURL == "" {
		scriptURL = ScriptURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{loader: loader, vendor: vendor, scriptURL: scriptURL, logger: logger}
}

// Positions returns the shared position queue of unit.
func Positions(unit *master.Unit) *Queue {
	return unit.Value(positionsKey, func() any { return &Queue{} }).(*Queue)
}

// Run validates cfg, registers the slot position on the unit, waits for the
// unit to resolve and then renders or signals no content. Past validation
// exactly one terminal host call is made.
func (a *Adapter) Run(ctx context.Context, w *frame.Window, cfg adconfig.Config) error {
	if err := adconfig.Validate(cfg, []string{"position"}, []string{"site"}); err != nil {
		return err
	}
	pos, err := ParsePosition(cfg)
	if err != nil {
		return err
	}

	var container *frame.Container
	if pos.ID != "" {
		container, err = w.Document.CreateContainer(pos.ID)
		if err != nil {
			w.Host.NoContentAvailable()
			return fmt.Errorf("register position: %w", err)
		}
		Positions(w.Master).Add(pos)
	}

	v, err := w.Master.Compute(ctx, ComputeKey, func(ctx context.Context) (any, error) {
		return a.resolve(ctx, w)
	})
	if err != nil {
		w.Host.NoContentAvailable()
		return fmt.Errorf("%s: %w", ComputeKey, err)
	}
	res := v.(*Resolution)

	ad, ok := res.Find(pos.ID)
	if pos.ID == "" || !ok || !ad.Filled() {
		if observability.ShouldSample(observability.GetSamplingRate()) {
			a.logger.Info("ssp no content",
				zap.String("window_id", w.ID),
				zap.String("position_id", pos.ID),
				zap.String("unit", w.Master.ID()))
		}
		w.Host.NoContentAvailable()
		return nil
	}

	w.Host.RenderStart()
	if err := res.Library.WriteAd(pos.ID, container); err != nil {
		return fmt.Errorf("write ad: %w", err)
	}
	return nil
}

// resolve runs once per unit on behalf of every slot that joined it.
func (a *Adapter) resolve(ctx context.Context, w *frame.Window) (*Resolution, error) {
	positions := Positions(w.Master).Snapshot()
	if len(positions) == 0 {
		return &Resolution{Ads: []sssp.AdResult{}}, nil
	}

	lib, err := a.library(ctx, w)
	if err != nil {
		return nil, err
	}
	lib.Config(sssp.SiteInfo{Site: w.Context.CanonicalURL})

	zones := make([]sssp.Zone, 0, len(positions))
	for _, p := range positions {
		zones = append(zones, p.Zone())
	}
	ads, err := lib.GetAds(ctx, zones)
	if err != nil {
		return nil, fmt.Errorf("get ads: %w", err)
	}
	a.logger.Debug("ssp unit resolved",
		zap.String("unit", w.Master.ID()),
		zap.Int("positions", len(zones)),
		zap.Int("ads", len(ads)))
	return &Resolution{Ads: ads, Library: lib}, nil
}

func (a *Adapter) library(ctx context.Context, w *frame.Window) (sssp.Library, error) {
	v, err := w.Master.Once(ctx, libraryKey, func(ctx context.Context) (any, error) {
		if err := a.loader.LoadScript(ctx, w.Document, a.scriptURL); err != nil {
			return nil, err
		}
		lib, err := a.vendor(ctx)
		if err != nil {
			return nil, fmt.Errorf("init vendor: %w", err)
		}
		return lib, nil
	})
	if err != nil {
		return nil, err
	}
	lib, ok := v.(sssp.Library)
	if !ok || lib == nil {
		return nil, errNoLibrary
	}
	return lib, nil
}
