package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS ad_units (
    id TEXT PRIMARY KEY,
    expected_slots INT NOT NULL DEFAULT 1,
    aggregation_window_ms INT NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ad_units_active ON ad_units (active) WHERE active = true;
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadUnits fetches active ad unit definitions from the database.
func (p *Postgres) LoadUnits(ctx context.Context) ([]models.AdUnit, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, expected_slots, aggregation_window_ms FROM ad_units WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ad units: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var units []models.AdUnit
	for rows.Next() {
		var u models.AdUnit
		var windowMS int64
		if err := rows.Scan(&u.ID, &u.ExpectedSlots, &windowMS); err != nil {
			return nil, fmt.Errorf("scan ad unit: %w", err)
		}
		u.AggregationWindow = time.Duration(windowMS) * time.Millisecond
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return units, nil
}

// UpsertUnit inserts or replaces an ad unit definition.
func (p *Postgres) UpsertUnit(ctx context.Context, u models.AdUnit) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO ad_units (id, expected_slots, aggregation_window_ms, active, updated_at) VALUES ($1,$2,$3,TRUE,NOW())
ON CONFLICT (id) DO UPDATE SET expected_slots=EXCLUDED.expected_slots, aggregation_window_ms=EXCLUDED.aggregation_window_ms, active=TRUE, updated_at=NOW()`,
		u.ID, u.ExpectedSlots, u.AggregationWindow.Milliseconds())
	if err != nil {
		return fmt.Errorf("upsert ad unit %s: %w", u.ID, err)
	}
	return nil
}

// DeactivateUnit hides an ad unit from LoadUnits.
func (p *Postgres) DeactivateUnit(ctx context.Context, id string) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE ad_units SET active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("deactivate ad unit %s: %w", id, err)
	}
	return nil
}
