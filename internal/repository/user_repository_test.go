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

func newUserRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(db), mock
}

func TestUserCreateNormalizesEmailAndReturnsID(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("Asha", "asha@example.com", sqlmock.AnyArg(), nil, model.RoleDonor,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil,
			"482913", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	bg := "O+"
	age := uint8(28)
	weight := 62.0
	id, err := repo.Create(context.Background(), NewUserParams{
		Name: "Asha", Email: "  Asha@Example.COM ", Password: "secret-pass",
		Role: model.RoleDonor, BloodGroup: &bg, Age: &age, WeightKg: &weight,
		OTPCode: "482913", OTPExpiresAt: time.Now().Add(10 * time.Minute),
	}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'asha@example.com' for key 'users.email'"))

	_, err := repo.Create(context.Background(), NewUserParams{
		Name: "Asha", Email: "asha@example.com", Password: "secret-pass", Role: model.RolePatient,
		OTPCode: "482913", OTPExpiresAt: time.Now().Add(10 * time.Minute),
	}, 4)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestVerifyOTPSuccess(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_verified=1`)).
		WithArgs("asha@example.com", "482913").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.VerifyOTP(context.Background(), "Asha@Example.com", "482913"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPUnknownEmail(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_verified=1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT is_verified, otp_code, otp_expires_at FROM users WHERE email=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"is_verified", "otp_code", "otp_expires_at"}))

	err := repo.VerifyOTP(context.Background(), "nobody@example.com", "482913")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyOTPAlreadyVerified(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_verified=1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT is_verified, otp_code, otp_expires_at FROM users WHERE email=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"is_verified", "otp_code", "otp_expires_at"}).
			AddRow(true, nil, nil))

	err := repo.VerifyOTP(context.Background(), "asha@example.com", "482913")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestVerifyOTPWrongOrExpiredCode(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_verified=1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT is_verified, otp_code, otp_expires_at FROM users WHERE email=?`)).
		WillReturnRows(sqlmock.NewRows([]string{"is_verified", "otp_code", "otp_expires_at"}).
			AddRow(false, "999999", time.Now().Add(5*time.Minute)))

	err := repo.VerifyOTP(context.Background(), "asha@example.com", "482913")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAdvanceDonorEligibility(t *testing.T) {
	repo, mock := newUserRepo(t)

	donatedAt := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET last_donation_date=?, next_eligible_date=?, eligibility_status=?`)).
		WithArgs(donatedAt, model.NextEligibleDate(donatedAt), model.EligibilityTemporary, uint64(7), model.RoleDonor).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.AdvanceDonorEligibility(context.Background(), 7, donatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceDonorEligibilityUnknownDonor(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET last_donation_date=?`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AdvanceDonorEligibility(context.Background(), 404, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkHospitalAlreadyLinked(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET hospital_id=?`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.LinkHospital(context.Background(), 7, 3)
	assert.ErrorIs(t, err, ErrConflict)
}
