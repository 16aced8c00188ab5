package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

func newHospitalDonationHandler(t *testing.T) (*HospitalDonationHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHospitalDonationHandler(
		repository.NewUserRepo(db),
		repository.NewHospitalRepo(db),
		repository.NewDonationRepo(db),
		repository.NewStockRepo(db),
	), mock
}

func staffCtx(t *testing.T, hospitalID uint64) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(21))
	c.Set("role", model.RoleHospital)
	c.Set("hospital_id", hospitalID)
	return c, rec
}

// Completing anything but a passed Screening must fail before the donor's
// eligibility window is touched: that write cannot be undone and a retry can
// never move the donation to Completed.
func TestCompleteRefusesScheduledDonation(t *testing.T) {
	h, mock := newHospitalDonationHandler(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM donations WHERE id=\?`).
		WithArgs(uint64(11)).
		WillReturnRows(testDonationRow(11, 7, 3, model.DonationScheduled))

	c, rec := staffCtx(t, 3)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.Complete(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	// No users UPDATE was expected; an eligibility write would have failed the
	// mock.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRefusesFailedScreening(t *testing.T) {
	h, mock := newHospitalDonationHandler(t)

	now := time.Now().UTC()
	row := sqlmock.NewRows(testDonationCols).AddRow(
		11, 7, 3, "A+", now.Add(-time.Hour), nil,
		model.DonationScreening, 10.1, "120/80", 60.0, 36.6, 72, false,
		"low hemoglobin", model.LabPending, model.LabPending, model.LabPending, model.LabPending, model.LabPending,
		nil, nil, 21, nil, now, now,
	)
	mock.ExpectQuery(`(?s)SELECT .+ FROM donations WHERE id=\?`).
		WillReturnRows(row)

	c, rec := staffCtx(t, 3)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.Complete(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRefusesForeignHospital(t *testing.T) {
	h, mock := newHospitalDonationHandler(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM donations WHERE id=\?`).
		WillReturnRows(testDonationRow(11, 7, 99, model.DonationScreening))

	c, rec := staffCtx(t, 3)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.Complete(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
