package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/config"
	"github.com/patrickwarner/adslot/internal/db"
	"github.com/patrickwarner/adslot/internal/models"
	"github.com/patrickwarner/adslot/internal/observability"
)

var (
	unitID     = flag.String("id", "", "ad unit id (the slot unit name, e.g. ssp)")
	slots      = flag.Int("slots", 1, "expected slots per page view")
	window     = flag.Duration("window", 50*time.Millisecond, "aggregation window")
	deactivate = flag.Bool("deactivate", false, "deactivate the unit instead of upserting it")
	list       = flag.Bool("list", false, "list active units and exit")
	skipReload = flag.Bool("skip-reload", false, "skip automatic reload after the change")
)

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if cfg.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "POSTGRES_DSN required")
		os.Exit(1)
	}
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()

	if *list {
		units, err := pg.LoadUnits(ctx)
		if err != nil {
			logger.Fatal("load units", zap.Error(err))
		}
		for _, u := range units {
			fmt.Printf("%s\tslots=%d\twindow=%s\n", u.ID, u.ExpectedSlots, u.AggregationWindow)
		}
		return
	}

	if *unitID == "" {
		fmt.Fprintln(os.Stderr, "id required")
		os.Exit(1)
	}

	if *deactivate {
		if err := pg.DeactivateUnit(ctx, *unitID); err != nil {
			logger.Fatal("deactivate unit", zap.String("id", *unitID), zap.Error(err))
		}
		fmt.Printf("deactivated %s\n", *unitID)
	} else {
		u := models.AdUnit{ID: *unitID, ExpectedSlots: *slots, AggregationWindow: *window}
		if err := pg.UpsertUnit(ctx, u); err != nil {
			logger.Fatal("upsert unit", zap.String("id", *unitID), zap.Error(err))
		}
		fmt.Printf("saved %s (slots=%d, window=%s)\n", u.ID, u.ExpectedSlots, u.AggregationWindow)
	}

	if !*skipReload {
		if err := callReloadEndpoint(&cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server units: %v\n", err)
		} else {
			fmt.Println("server units reloaded")
		}
	}
}

func callReloadEndpoint(cfg *config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
