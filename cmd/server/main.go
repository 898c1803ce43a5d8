package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickwarner/adslot/internal/ads"
	"github.com/patrickwarner/adslot/internal/ads/nativery"
	"github.com/patrickwarner/adslot/internal/ads/ssp"
	"github.com/patrickwarner/adslot/internal/analytics"
	"github.com/patrickwarner/adslot/internal/api"
	"github.com/patrickwarner/adslot/internal/config"
	"github.com/patrickwarner/adslot/internal/db"
	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/master"
	"github.com/patrickwarner/adslot/internal/observability"
	"github.com/patrickwarner/adslot/internal/scriptloader"
	"github.com/patrickwarner/adslot/internal/sssp"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	// Redis is optional. Without it widget state stays local to this
	// instance and scripts are fetched on every cold load.
	var (
		widgetStore nativery.WidgetStore
		scriptCache scriptloader.Cache
	)
	if cfg.RedisAddr != "" {
		store, err := db.InitRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer store.Close()
		widgetStore = store
		scriptCache = store
	}

	var analyticsSvc analytics.AnalyticsService
	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer ch.Close()
		analyticsSvc = ch
	}

	var unitSource db.UnitSource
	database := db.NewDB(nil)
	if cfg.PostgresDSN != "" {
		pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		database, err = db.Init(ctx, pg)
		if err != nil {
			return fmt.Errorf("failed to load ad units: %w", err)
		}
		unitSource = pg
		logger.Info("Loaded ad units", zap.Int("count", database.Len()))
	}

	loader := scriptloader.NewHTTPLoader(cfg.ScriptFetchTimeout, cfg.ScriptCacheTTL, scriptCache, logger, metricsRegistry)

	registry := ads.NewRegistry()
	registry.Register(nativery.Type, nativery.New(loader, widgetStore, cfg.WidgetStateTTL, cfg.NativeryScriptURL, logger, metricsRegistry))
	registry.Register(ssp.Type, ssp.New(loader, func(context.Context) (sssp.Library, error) {
		return sssp.NewClient(cfg.SSPEndpoint, cfg.VendorTimeout, logger, metricsRegistry), nil
	}, cfg.SSPScriptURL, logger))

	frames := frame.NewRegistry(cfg.FrameTTL)
	units := master.NewRegistry(cfg.UnitTTL, master.Options{
		ExpectedSlots:     cfg.DefaultExpectedSlots,
		AggregationWindow: cfg.AggregationWindow,
	}, metricsRegistry)

	srvDeps := api.NewServer(logger, registry, frames, units, database, unitSource, analyticsSvc, loader, metricsRegistry, cfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(srvDeps.Router(), cfg.ServiceName),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Slot host running",
		zap.String("addr", addr),
		zap.Strings("adapters", registry.Types()),
		zap.Bool("redis", widgetStore != nil),
		zap.Bool("clickhouse", analyticsSvc != nil),
		zap.Bool("postgres", unitSource != nil))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 && unitSource != nil {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
					observability.LogSamplingStats(logger)
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Slot host stopped")
	return nil
}
