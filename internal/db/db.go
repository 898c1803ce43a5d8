package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/patrickwarner/adslot/internal/models"
)

// UnitSource loads ad unit definitions.
type UnitSource interface {
	LoadUnits(ctx context.Context) ([]models.AdUnit, error)
}

// DB holds the ad unit definitions loaded from Postgres in memory.
type DB struct {
	mu    sync.RWMutex
	units map[string]models.AdUnit
}

// NewDB returns an index over the given units.
func NewDB(units []models.AdUnit) *DB {
	d := &DB{}
	d.replace(units)
	return d
}

// Init loads unit definitions from src and validates them.
func Init(ctx context.Context, src UnitSource) (*DB, error) {
	d := &DB{units: map[string]models.AdUnit{}}
	if err := d.Reload(ctx, src); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload swaps in a fresh set of unit definitions. On error the previous set
// is kept.
func (d *DB) Reload(ctx context.Context, src UnitSource) error {
	units, err := src.LoadUnits(ctx)
	if err != nil {
		return fmt.Errorf("load ad units: %w", err)
	}
	for _, u := range units {
		if u.ID == "" {
			return fmt.Errorf("ad unit with empty id")
		}
		if u.ExpectedSlots < 0 || u.AggregationWindow < 0 {
			return fmt.Errorf("ad unit %s: negative barrier settings", u.ID)
		}
	}
	d.replace(units)
	return nil
}

func (d *DB) replace(units []models.AdUnit) {
	idx := make(map[string]models.AdUnit, len(units))
	for _, u := range units {
		idx[u.ID] = u
	}
	d.mu.Lock()
	d.units = idx
	d.mu.Unlock()
}

// GetUnit returns the definition for the given unit id.
func (d *DB) GetUnit(id string) (models.AdUnit, bool) {
	if d == nil {
		return models.AdUnit{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.units[id]
	return u, ok
}

// Len reports the number of loaded units.
func (d *DB) Len() int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.units)
}
