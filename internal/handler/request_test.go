package handler

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

var requestCols = []string{
	"id", "patient_id", "hospital_id", "blood_group", "component_type", "units_required",
	"urgency", "required_date", "diagnosis", "status", "approved_by", "approval_date",
	"rejection_reason", "transfer_id", "notes", "created_at", "updated_at",
}

func requestRow(id, patientID, hospitalID uint64, units uint32, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(requestCols).AddRow(
		id, patientID, hospitalID, "A+", model.ComponentWholeBlood, units,
		model.UrgencyNormal, nil, nil, status, nil, nil,
		nil, nil, nil, now, now,
	)
}

func newRequestHandler(t *testing.T) (*RequestHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRequestHandler(
		repository.NewHospitalRepo(db),
		repository.NewRequestRepo(db),
		repository.NewStockRepo(db),
	), mock
}

// Fulfill must count only this request's held units; Reserved stock belonging
// to other requests cannot stand in for them.
func TestFulfillCountsOnlyOwnReservedUnits(t *testing.T) {
	h, mock := newRequestHandler(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM requests WHERE id=\?`).
		WithArgs(uint64(9)).
		WillReturnRows(requestRow(9, 5, 3, 3, model.RequestAwaitingDonor))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM blood_stock WHERE request_id=? AND status=?`)).
		WithArgs(uint64(9), model.StockReserved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM blood_stock`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(501))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_stock SET status=?, request_id=?`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE requests SET status=?`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)SELECT .+ FROM requests WHERE id=\?`).
		WillReturnRows(requestRow(9, 5, 3, 3, model.RequestReadyForIssue))

	c, rec := staffCtx(t, 3)
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.Fulfill(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFulfillStillShortStaysParked(t *testing.T) {
	h, mock := newRequestHandler(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM requests WHERE id=\?`).
		WillReturnRows(requestRow(9, 5, 3, 3, model.RequestTransferRequired))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM blood_stock WHERE request_id=? AND status=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM blood_stock`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, rec := staffCtx(t, 3)
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.Fulfill(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFulfillRejectsWrongState(t *testing.T) {
	h, mock := newRequestHandler(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM requests WHERE id=\?`).
		WillReturnRows(requestRow(9, 5, 3, 3, model.RequestPending))

	c, rec := staffCtx(t, 3)
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.Fulfill(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
