package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Slot lifecycle event types.
const (
	EventSlotRequest     = "slot_request"
	EventValidationError = "validation_error"
	EventRenderStart     = "render_start"
	EventNoContent       = "no_content"
	EventResize          = "resize"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// AnalyticsService defines the interface for analytics operations.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type AnalyticsService interface {
	// RecordSlotEvent records one slot lifecycle event.
	RecordSlotEvent(ctx context.Context, ev SlotEvent) error
}

// SlotEvent mirrors a row in the slot_events table.
type SlotEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	Adapter    string    `json:"adapter"`
	UnitID     string    `json:"unit_id"`
	WindowID   string    `json:"window_id"`
	PageViewID string    `json:"page_view_id"`
	PositionID string    `json:"position_id,omitempty"`
	Height     int32     `json:"height,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

const createSlotEvents = `CREATE TABLE IF NOT EXISTS slot_events (
       timestamp    DateTime64(3),
       event_type   LowCardinality(String),
       adapter      LowCardinality(String),
       unit_id      String,
       window_id    String,
       page_view_id String,
       position_id  String,
       height       Int32,
       detail       String
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the slot_events table exists.
func InitClickHouse(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	a := &Analytics{DB: db}
	if err := a.ensureSchema(context.Background()); err != nil {
		return nil, err
	}

	zap.L().Info("Connected to ClickHouse")
	return a, nil
}

func (a *Analytics) ensureSchema(ctx context.Context) error {
	if _, err := a.DB.ExecContext(ctx, createSlotEvents); err != nil {
		return fmt.Errorf("clickhouse create table: %w", err)
	}
	return nil
}

// RecordSlotEvent inserts a single row into the slot_events table.
func (a *Analytics) RecordSlotEvent(ctx context.Context, ev SlotEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	stmt := `INSERT INTO slot_events (timestamp, event_type, adapter, unit_id, window_id, page_view_id, position_id, height, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ev.Timestamp, ev.EventType, ev.Adapter, ev.UnitID, ev.WindowID, ev.PageViewID, ev.PositionID, ev.Height, ev.Detail); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", ev.EventType))
		return fmt.Errorf("insert %s event: %w", ev.EventType, err)
	}
	return nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// GetEventsByWindowID returns all events for a given window ordered by timestamp.
func (a *Analytics) GetEventsByWindowID(ctx context.Context, id string) ([]SlotEvent, error) {
	return a.QueryEvents(ctx, EventFilter{WindowID: id})
}
