package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

func newHospitalRepo(t *testing.T) (*HospitalRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHospitalRepo(db), mock
}

func TestHospitalCreateDuplicateLicense(t *testing.T) {
	repo, mock := newHospitalRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO hospitals`)).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'LIC-9' for key 'hospitals.license_number'"))

	_, err := repo.Create(context.Background(), NewHospitalParams{
		Name: "City Hospital", Type: "Hospital", LicenseNumber: "LIC-9", Country: "India",
		DocumentName: "license.pdf", DocumentURL: "https://files.example.com/license.pdf",
	})
	assert.ErrorIs(t, err, ErrLicenseExists)
}

func TestHospitalApprove(t *testing.T) {
	repo, mock := newHospitalRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE hospitals SET verification_status=?, is_active=1`)).
		WithArgs(model.VerificationApproved, uint64(1), uint64(3), model.VerificationApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Approve(context.Background(), 3, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHospitalApproveAlreadyApproved(t *testing.T) {
	repo, mock := newHospitalRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE hospitals SET verification_status=?, is_active=1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT verification_status FROM hospitals WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"verification_status"}).AddRow(model.VerificationApproved))

	err := repo.Approve(context.Background(), 3, 1)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestHospitalApproveUnknown(t *testing.T) {
	repo, mock := newHospitalRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE hospitals SET verification_status=?, is_active=1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT verification_status FROM hospitals WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"verification_status"}))

	err := repo.Approve(context.Background(), 404, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHospitalUpdateByOwnerFrozenWhenApproved(t *testing.T) {
	repo, mock := newHospitalRepo(t)

	name := "Renamed Hospital"
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE hospitals SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT verification_status FROM hospitals WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"verification_status"}).AddRow(model.VerificationApproved))

	err := repo.UpdateByOwner(context.Background(), 3, UpdatableFields{Name: &name})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestHospitalUpdateByOwnerNoopIsSuccess(t *testing.T) {
	repo, mock := newHospitalRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE hospitals SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT verification_status FROM hospitals WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"verification_status"}).AddRow(model.VerificationPending))

	assert.NoError(t, repo.UpdateByOwner(context.Background(), 3, UpdatableFields{}))
}

func TestHospitalResubmitOnlyFromRejected(t *testing.T) {
	repo, mock := newHospitalRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE hospitals SET verification_status=?, rejection_reason=NULL`)).
		WithArgs(model.VerificationPending, uint64(3), model.VerificationRejected).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT verification_status FROM hospitals WHERE id=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"verification_status"}).AddRow(model.VerificationPending))

	err := repo.Resubmit(context.Background(), 3)
	assert.ErrorIs(t, err, ErrInvalidState)
}
