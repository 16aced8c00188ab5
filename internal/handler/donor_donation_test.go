package handler

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

var userCols = []string{
	"id", "name", "email", "password_hash", "phone", "role", "blood_group", "age", "weight_kg",
	"gender", "medical_history", "eligibility_status", "last_donation_date", "next_eligible_date",
	"hospital_id", "is_active", "is_verified", "is_hospital_verified", "created_at", "updated_at",
}

// donorRow builds a users result row for a donor with the given activity and
// eligibility state.
func donorRow(id uint64, active bool, eligibility string, lastDonation, nextEligible *time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	var last, next interface{}
	if lastDonation != nil {
		last = *lastDonation
	}
	if nextEligible != nil {
		next = *nextEligible
	}
	return sqlmock.NewRows(userCols).AddRow(
		id, "Asha", "asha@example.com", "$2a$04$hash", nil, model.RoleDonor, "A+", 28, 62.0,
		nil, nil, eligibility, last, next,
		nil, active, true, false, now, now,
	)
}

var testDonationCols = []string{
	"id", "donor_id", "hospital_id", "blood_group", "scheduled_date", "donation_date",
	"status", "hemoglobin", "blood_pressure", "weight_kg", "temperature", "pulse", "screening_passed",
	"screening_remarks", "lab_hiv", "lab_hepatitis_b", "lab_hepatitis_c", "lab_malaria", "lab_syphilis",
	"lab_tested_at", "deferral_reason", "verified_by", "notes", "created_at", "updated_at",
}

func testDonationRow(id, donorID, hospitalID uint64, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(testDonationCols).AddRow(
		id, donorID, hospitalID, "A+", now.Add(24*time.Hour), nil,
		status, nil, nil, nil, nil, nil, nil,
		nil, model.LabPending, model.LabPending, model.LabPending, model.LabPending, model.LabPending,
		nil, nil, nil, nil, now, now,
	)
}

func newDonorHandler(t *testing.T) (*DonorDonationHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDonorDonationHandler(
		repository.NewUserRepo(db),
		repository.NewHospitalRepo(db),
		repository.NewDonationRepo(db),
	), mock
}

func donorCtx(t *testing.T, method, body string, donorID uint64) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", donorID)
	c.Set("role", model.RoleDonor)
	c.Set("hospital_id", uint64(0))
	return c, rec
}

func TestScheduleRejectsInactiveDonor(t *testing.T) {
	h, mock := newDonorHandler(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE id=\?`).
		WithArgs(uint64(7)).
		WillReturnRows(donorRow(7, false, model.EligibilityEligible, nil, nil))

	when := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	c, rec := donorCtx(t, http.MethodPost, `{"hospital_id":3,"scheduled_date":"`+when+`"}`, 7)

	require.NoError(t, h.Schedule(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRejectsTemporarilyIneligibleDonor(t *testing.T) {
	h, mock := newDonorHandler(t)

	last := time.Now().UTC().Add(-30 * 24 * time.Hour)
	next := model.NextEligibleDate(last)
	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE id=\?`).
		WillReturnRows(donorRow(7, true, model.EligibilityTemporary, &last, &next))

	// A date past next_eligible_date still does not help while the donor's
	// status has not returned to Eligible.
	when := next.Add(24 * time.Hour).Format(time.RFC3339)
	c, rec := donorCtx(t, http.MethodPost, `{"hospital_id":3,"scheduled_date":"`+when+`"}`, 7)

	require.NoError(t, h.Schedule(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRejectsDeferredDonor(t *testing.T) {
	h, mock := newDonorHandler(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE id=\?`).
		WillReturnRows(donorRow(7, true, model.EligibilityDeferred, nil, nil))

	when := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	c, rec := donorCtx(t, http.MethodPost, `{"hospital_id":3,"scheduled_date":"`+when+`"}`, 7)

	require.NoError(t, h.Schedule(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRescheduleRejectsDateBeforeEligibility(t *testing.T) {
	h, mock := newDonorHandler(t)

	last := time.Now().UTC().Add(-30 * 24 * time.Hour)
	next := model.NextEligibleDate(last)
	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE id=\?`).
		WillReturnRows(donorRow(7, true, model.EligibilityTemporary, &last, &next))

	// +5 days is well inside the 90-day window; no donations UPDATE may run.
	when := time.Now().UTC().Add(5 * 24 * time.Hour).Format(time.RFC3339)
	c, rec := donorCtx(t, http.MethodPost, `{"scheduled_date":"`+when+`"}`, 7)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.Reschedule(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleAllowsDateAtEligibility(t *testing.T) {
	h, mock := newDonorHandler(t)

	last := time.Now().UTC().Add(-80 * 24 * time.Hour)
	next := model.NextEligibleDate(last)
	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE id=\?`).
		WillReturnRows(donorRow(7, true, model.EligibilityTemporary, &last, &next))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET scheduled_date=?`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)SELECT .+ FROM donations WHERE id=\?`).
		WillReturnRows(testDonationRow(11, 7, 3, model.DonationScheduled))

	when := next.Add(24 * time.Hour).Format(time.RFC3339)
	c, rec := donorCtx(t, http.MethodPost, `{"scheduled_date":"`+when+`"}`, 7)
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.Reschedule(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
