package api

import (
	"context"
	"errors"
	"sync"

	"github.com/patrickwarner/adslot/internal/ads"
	"github.com/patrickwarner/adslot/internal/analytics"
	"github.com/patrickwarner/adslot/internal/config"
	"github.com/patrickwarner/adslot/internal/db"
	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/master"
	"github.com/patrickwarner/adslot/internal/observability"

	"go.uber.org/zap"
)

// ErrNoUnitSource is returned by Reload when no Postgres is configured.
var ErrNoUnitSource = errors.New("postgres unavailable")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Ads       *ads.Registry
	Frames    *frame.Registry
	Units     *master.Registry
	DB        *db.DB
	PG        db.UnitSource
	Analytics analytics.AnalyticsService
	Scripts   ScriptSource
	Metrics   observability.MetricsRegistry
	Config    config.Config
	reloadMu  sync.Mutex
}

// NewServer constructs a Server. pg, analytics and scripts may be nil.
func NewServer(logger *zap.Logger, registry *ads.Registry, frames *frame.Registry, units *master.Registry, database *db.DB, pg db.UnitSource, analytics analytics.AnalyticsService, scripts ScriptSource, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if database == nil {
		database = db.NewDB(nil)
	}
	return &Server{
		Logger:    logger,
		Ads:       registry,
		Frames:    frames,
		Units:     units,
		DB:        database,
		PG:        pg,
		Analytics: analytics,
		Scripts:   scripts,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// Reload refreshes ad unit definitions from Postgres. Units already created
// keep the settings they were created with.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.PG == nil {
		return ErrNoUnitSource
	}
	return s.DB.Reload(ctx, s.PG)
}

// unitFor returns the master unit shared by the slots of one page view that
// name the same unit. Without an explicit name the slot type is the unit.
func (s *Server) unitFor(pageViewID, name string) *master.Unit {
	var opts master.Options
	if def, ok := s.DB.GetUnit(name); ok {
		opts = master.Options{ExpectedSlots: def.ExpectedSlots, AggregationWindow: def.AggregationWindow}
	}
	return s.Units.Unit(pageViewID+"/"+name, opts)
}

// record stores a slot event. Analytics is best effort: a missing backend is
// ignored and failures are logged.
func (s *Server) record(ev analytics.SlotEvent) {
	if s.Analytics == nil {
		return
	}
	if err := s.Analytics.RecordSlotEvent(context.Background(), ev); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
		s.Logger.Warn("record slot event", zap.String("event_type", ev.EventType), zap.Error(err))
	}
}
