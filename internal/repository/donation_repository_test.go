package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

var donationCols = []string{
	"id", "donor_id", "hospital_id", "blood_group", "scheduled_date", "donation_date",
	"status", "hemoglobin", "blood_pressure", "weight_kg", "temperature", "pulse", "screening_passed",
	"screening_remarks", "lab_hiv", "lab_hepatitis_b", "lab_hepatitis_c", "lab_malaria", "lab_syphilis",
	"lab_tested_at", "deferral_reason", "verified_by", "notes", "created_at", "updated_at",
}

// donationRow builds a full result row for the given status with nullable
// fields empty.
func donationRow(id, donorID, hospitalID uint64, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(donationCols).AddRow(
		id, donorID, hospitalID, "A+", now.Add(24*time.Hour), nil,
		status, nil, nil, nil, nil, nil, nil,
		nil, model.LabPending, model.LabPending, model.LabPending, model.LabPending, model.LabPending,
		nil, nil, nil, nil, now, now,
	)
}

func newDonationRepo(t *testing.T) (*DonationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDonationRepo(db), mock
}

func TestDonationCreateDuplicateActiveBooking(t *testing.T) {
	repo, mock := newDonationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO donations`)).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry '7-1' for key 'uniq_donor_active_booking'"))

	_, err := repo.Create(context.Background(), 7, 3, "A+", time.Now().Add(48*time.Hour))
	assert.ErrorIs(t, err, ErrActiveBookingExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationCancelSuccess(t *testing.T) {
	repo, mock := newDonationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, booking_slot=NULL`)).
		WithArgs(model.DonationCancelled, uint64(11), uint64(7), model.DonationScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)SELECT .+ FROM donations WHERE id=\?`).
		WithArgs(uint64(11)).
		WillReturnRows(donationRow(11, 7, 3, model.DonationCancelled))

	d, err := repo.Cancel(context.Background(), 11, 7)
	require.NoError(t, err)
	assert.Equal(t, model.DonationCancelled, d.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationCancelWrongDonorIsForbidden(t *testing.T) {
	repo, mock := newDonationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, booking_slot=NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT donor_id, hospital_id, status, scheduled_date FROM donations WHERE id=?`)).
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"donor_id", "hospital_id", "status", "scheduled_date"}).
			AddRow(99, 3, model.DonationScheduled, time.Now().Add(24*time.Hour)))

	_, err := repo.Cancel(context.Background(), 11, 7)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDonationCancelMissingRowIsNotFound(t *testing.T) {
	repo, mock := newDonationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, booking_slot=NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT donor_id, hospital_id, status, scheduled_date FROM donations WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"donor_id", "hospital_id", "status", "scheduled_date"}))

	_, err := repo.Cancel(context.Background(), 404, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDonationCancelPastDateIsInvalidState(t *testing.T) {
	repo, mock := newDonationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, booking_slot=NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT donor_id, hospital_id, status, scheduled_date FROM donations WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"donor_id", "hospital_id", "status", "scheduled_date"}).
			AddRow(7, 3, model.DonationScheduled, time.Now().Add(-24*time.Hour)))

	_, err := repo.Cancel(context.Background(), 11, 7)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDonationCancelRaceIsConflict(t *testing.T) {
	repo, mock := newDonationRepo(t)

	// Everything about the row looks cancellable, so losing the conditional
	// update can only mean a concurrent writer got there first.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, booking_slot=NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT donor_id, hospital_id, status, scheduled_date FROM donations WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"donor_id", "hospital_id", "status", "scheduled_date"}).
			AddRow(7, 3, model.DonationScheduled, time.Now().Add(24*time.Hour)))

	_, err := repo.Cancel(context.Background(), 11, 7)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRecordScreeningFailedMovesToDeferred(t *testing.T) {
	repo, mock := newDonationRepo(t)

	reason := "Low hemoglobin"
	s := model.Screening{Hemoglobin: 10.2, BloodPressure: "120/80", WeightKg: 60, Temperature: 36.6, Pulse: 72, Passed: false, Remarks: &reason}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, booking_slot=NULL, hemoglobin=?`)).
		WithArgs(model.DonationDeferred, 10.2, "120/80", 60.0, 36.6, uint16(72), false, &reason, &reason, uint64(21),
			uint64(11), uint64(3), model.DonationScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)SELECT .+ FROM donations WHERE id=\?`).
		WillReturnRows(donationRow(11, 7, 3, model.DonationDeferred))

	d, err := repo.RecordScreening(context.Background(), 11, 3, 21, s, &reason)
	require.NoError(t, err)
	assert.Equal(t, model.DonationDeferred, d.Status)
}

func TestCompleteAlreadyCompletedIsConflict(t *testing.T) {
	repo, mock := newDonationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, donation_date=?`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hospital_id, status, screening_passed FROM donations WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"hospital_id", "status", "screening_passed"}).
			AddRow(3, model.DonationCompleted, true))

	_, err := repo.Complete(context.Background(), 11, 3, time.Now())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCompleteWithoutScreeningIsInvalidState(t *testing.T) {
	repo, mock := newDonationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET status=?, donation_date=?`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hospital_id, status, screening_passed FROM donations WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"hospital_id", "status", "screening_passed"}).
			AddRow(3, model.DonationScheduled, nil))

	_, err := repo.Complete(context.Background(), 11, 3, time.Now())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFinalizeLabTestsPositiveDefers(t *testing.T) {
	repo, mock := newDonationRepo(t)

	lt := model.LabTests{
		HIV: model.LabNegative, HepatitisB: model.LabPositive, HepatitisC: model.LabNegative,
		Malaria: model.LabNegative, Syphilis: model.LabNegative,
	}
	testedAt := time.Now().UTC()

	deferredRow := donationRow(11, 7, 3, model.DonationDeferred)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET lab_hiv=?`)).
		WithArgs(lt.HIV, lt.HepatitisB, lt.HepatitisC, lt.Malaria, lt.Syphilis,
			testedAt, model.DonationDeferred, model.DeferralReasonLabPositive,
			uint64(11), uint64(3), model.DonationCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)SELECT .+ FROM donations WHERE id=\?`).WillReturnRows(deferredRow)

	d, err := repo.FinalizeLabTests(context.Background(), 11, 3, lt, testedAt)
	require.NoError(t, err)
	assert.Equal(t, model.DonationDeferred, d.Status)
}

func TestFinalizeLabTestsSecondSubmissionIsConflict(t *testing.T) {
	repo, mock := newDonationRepo(t)

	lt := model.LabTests{
		HIV: model.LabNegative, HepatitisB: model.LabNegative, HepatitisC: model.LabNegative,
		Malaria: model.LabNegative, Syphilis: model.LabNegative,
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET lab_hiv=?`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hospital_id, status, lab_tested_at FROM donations WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"hospital_id", "status", "lab_tested_at"}).
			AddRow(3, model.DonationCompleted, time.Now().UTC()))

	_, err := repo.FinalizeLabTests(context.Background(), 11, 3, lt, time.Now())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFinalizeLabTestsWrongHospitalIsForbidden(t *testing.T) {
	repo, mock := newDonationRepo(t)

	lt := model.LabTests{
		HIV: model.LabNegative, HepatitisB: model.LabNegative, HepatitisC: model.LabNegative,
		Malaria: model.LabNegative, Syphilis: model.LabNegative,
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donations SET lab_hiv=?`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hospital_id, status, lab_tested_at FROM donations WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"hospital_id", "status", "lab_tested_at"}).
			AddRow(99, model.DonationCompleted, nil))

	_, err := repo.FinalizeLabTests(context.Background(), 11, 3, lt, time.Now())
	assert.ErrorIs(t, err, ErrForbidden)
}
