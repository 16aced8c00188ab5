package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

func newStockRepo(t *testing.T) (*StockRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStockRepo(db), mock
}

func TestReserveUnitsSkipsRacedRows(t *testing.T) {
	repo, mock := newStockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM blood_stock`)).
		WithArgs(uint64(3), "A+", model.ComponentWholeBlood, model.StockAvailable, uint32(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101).AddRow(102).AddRow(103))

	// Unit 102 is taken by a concurrent approval between the candidate read
	// and our conditional update.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_stock SET status=?, request_id=?`)).
		WithArgs(model.StockReserved, uint64(9), uint64(101), model.StockAvailable).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_stock SET status=?, request_id=?`)).
		WithArgs(model.StockReserved, uint64(9), uint64(102), model.StockAvailable).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_stock SET status=?, request_id=?`)).
		WithArgs(model.StockReserved, uint64(9), uint64(103), model.StockAvailable).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.ReserveUnits(context.Background(), 3, "A+", model.ComponentWholeBlood, 3, 9)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101, 103}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveUnitsShortStock(t *testing.T) {
	repo, mock := newStockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM blood_stock`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_stock SET status=?, request_id=?`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.ReserveUnits(context.Background(), 3, "O-", model.ComponentRBC, 5, 9)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101}, got)
}

func TestExpireSweep(t *testing.T) {
	repo, mock := newStockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_stock SET status=?`)).
		WithArgs(model.StockExpired, uint64(3), model.StockAvailable).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ExpireSweep(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestMarkInTransitEmptyList(t *testing.T) {
	repo, _ := newStockRepo(t)

	n, err := repo.MarkInTransit(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
