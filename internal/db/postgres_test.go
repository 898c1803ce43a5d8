package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/adslot/internal/models"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &Postgres{DB: sqlDB}, mock
}

func TestLoadUnits(t *testing.T) {
	pg, mock := newMockPostgres(t)
	rows := sqlmock.NewRows([]string{"id", "expected_slots", "aggregation_window_ms"}).
		AddRow("home-ssp", 3, 120).
		AddRow("article", 1, 0)
	mock.ExpectQuery(`SELECT id, expected_slots, aggregation_window_ms FROM ad_units`).WillReturnRows(rows)

	units, err := pg.LoadUnits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.AdUnit{
		{ID: "home-ssp", ExpectedSlots: 3, AggregationWindow: 120 * time.Millisecond},
		{ID: "article", ExpectedSlots: 1},
	}, units)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadUnitsQueryError(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectQuery(`FROM ad_units`).WillReturnError(errors.New("boom"))

	_, err := pg.LoadUnits(context.Background())
	assert.ErrorContains(t, err, "query ad units")
}

func TestUpsertUnit(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO ad_units`).
		WithArgs("home-ssp", 2, int64(75)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := pg.UpsertUnit(context.Background(), models.AdUnit{ID: "home-ssp", ExpectedSlots: 2, AggregationWindow: 75 * time.Millisecond})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateUnit(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectExec(`UPDATE ad_units SET active=FALSE`).WithArgs("old").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.DeactivateUnit(context.Background(), "old"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type staticSource struct {
	units []models.AdUnit
	err   error
}

func (s staticSource) LoadUnits(context.Context) ([]models.AdUnit, error) { return s.units, s.err }

func TestDBReloadKeepsPreviousOnError(t *testing.T) {
	d, err := Init(context.Background(), staticSource{units: []models.AdUnit{{ID: "a", ExpectedSlots: 2}}})
	require.NoError(t, err)

	err = d.Reload(context.Background(), staticSource{err: errors.New("down")})
	assert.Error(t, err)
	u, ok := d.GetUnit("a")
	require.True(t, ok)
	assert.Equal(t, 2, u.ExpectedSlots)

	err = d.Reload(context.Background(), staticSource{units: []models.AdUnit{{ID: ""}}})
	assert.Error(t, err)
	assert.Equal(t, 1, d.Len())

	require.NoError(t, d.Reload(context.Background(), staticSource{units: []models.AdUnit{{ID: "b"}}}))
	_, ok = d.GetUnit("a")
	assert.False(t, ok)
	assert.Equal(t, 1, d.Len())
}

func TestNilDBLookups(t *testing.T) {
	var d *DB
	_, ok := d.GetUnit("x")
	assert.False(t, ok)
	assert.Zero(t, d.Len())
}
