package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/utils"
)

// UserRepo provides data access to the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, name, email, password_hash, phone, role, blood_group, age, weight_kg,
	gender, medical_history, eligibility_status, last_donation_date, next_eligible_date,
	hospital_id, is_active, is_verified, is_hospital_verified, created_at, updated_at`

// NewUserParams carries everything needed to register an account. Donor-only
// fields may be nil for other roles; validation happens in the handler layer.
type NewUserParams struct {
	Name           string
	Email          string
	Password       string
	Phone          *string
	Role           string
	BloodGroup     *string
	Age            *uint8
	WeightKg       *float64
	Gender         *string
	MedicalHistory *string
	OTPCode        string
	OTPExpiresAt   time.Time
}

// Create inserts an unverified user with a pending email verification code
// and returns the new ID. Duplicate emails surface as ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, p NewUserParams, bcryptCost int) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	hash, err := utils.HashPassword(p.Password, bcryptCost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, phone, role, blood_group, age, weight_kg,
		    gender, medical_history, is_verified, otp_code, otp_expires_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,0,?,?)`,
		p.Name, email, hash, p.Phone, p.Role, p.BloodGroup, p.Age, p.WeightKg,
		p.Gender, p.MedicalHistory, p.OTPCode, p.OTPExpiresAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=? LIMIT 1`, email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=? LIMIT 1`, id))
}

// VerifyOTP marks the account verified when the supplied code matches and has
// not expired. The conditional UPDATE makes verification single-shot: a
// second attempt, a wrong code or an expired code all match nothing, and the
// diagnostic read distinguishes the cases.
func (r *UserRepo) VerifyOTP(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET is_verified=1, otp_code=NULL, otp_expires_at=NULL
		 WHERE email=? AND is_verified=0 AND otp_code=? AND otp_expires_at > UTC_TIMESTAMP()`,
		email, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var verified bool
	var storedCode sql.NullString
	var expires sql.NullTime
	err = r.DB.QueryRowContext(ctx,
		`SELECT is_verified, otp_code, otp_expires_at FROM users WHERE email=? LIMIT 1`,
		email).Scan(&verified, &storedCode, &expires)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if verified {
		return ErrInvalidState
	}
	return ErrConflict
}

// ResetOTP stores a fresh verification code for an unverified account.
func (r *UserRepo) ResetOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET otp_code=?, otp_expires_at=? WHERE email=? AND is_verified=0`,
		code, expiresAt.UTC(), email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var verified bool
	err = r.DB.QueryRowContext(ctx, `SELECT is_verified FROM users WHERE email=? LIMIT 1`, email).Scan(&verified)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidState // already verified
}

// UpdatePassword replaces the password hash after the handler has verified
// the current password.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID uint64, newHash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=? WHERE id=?`, newHash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkHospital attaches a hospital profile to a hospital-role account that
// does not have one yet.
func (r *UserRepo) LinkHospital(ctx context.Context, userID, hospitalID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET hospital_id=? WHERE id=? AND role=? AND hospital_id IS NULL`,
		hospitalID, userID, model.RoleHospital)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// AdvanceDonorEligibility records a completed donation on the donor: bumps
// last_donation_date, computes next_eligible_date and parks eligibility at
// Temporarily Not Eligible. The WHERE clause pins the donor role so a stale
// or wrong id cannot touch another account. This is phase (a) of donation
// completion; it is idempotent for the same donatedAt and safe to retry.
func (r *UserRepo) AdvanceDonorEligibility(ctx context.Context, donorID uint64, donatedAt time.Time) error {
	next := model.NextEligibleDate(donatedAt)
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET last_donation_date=?, next_eligible_date=?, eligibility_status=?
		 WHERE id=? AND role=?`,
		donatedAt.UTC(), next, model.EligibilityTemporary, donorID, model.RoleDonor)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeferDonor marks a donor medically deferred after a failed screening or a
// positive lab result.
func (r *UserRepo) DeferDonor(ctx context.Context, donorID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET eligibility_status=? WHERE id=? AND role=?`,
		model.EligibilityDeferred, donorID, model.RoleDonor)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetHospitalVerified cascades the hospital verification flag onto every
// account linked to the hospital. Called from approve/reject.
func (r *UserRepo) SetHospitalVerified(ctx context.Context, hospitalID uint64, verified bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET is_hospital_verified=? WHERE hospital_id=?`, verified, hospitalID)
	return err
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	var phone, bloodGroup, gender, history sql.NullString
	var age sql.NullInt16
	var weight sql.NullFloat64
	var lastDonation, nextEligible sql.NullTime
	var hospitalID sql.NullInt64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &phone, &u.Role,
		&bloodGroup, &age, &weight, &gender, &history, &u.EligibilityStatus,
		&lastDonation, &nextEligible, &hospitalID, &u.IsActive, &u.IsVerified,
		&u.IsHospitalVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if phone.Valid {
		u.Phone = &phone.String
	}
	if bloodGroup.Valid {
		u.BloodGroup = &bloodGroup.String
	}
	if age.Valid {
		v := uint8(age.Int16)
		u.Age = &v
	}
	if weight.Valid {
		u.WeightKg = &weight.Float64
	}
	if gender.Valid {
		u.Gender = &gender.String
	}
	if history.Valid {
		u.MedicalHistory = &history.String
	}
	if lastDonation.Valid {
		t := lastDonation.Time
		u.LastDonationDate = &t
	}
	if nextEligible.Valid {
		t := nextEligible.Time
		u.NextEligibleDate = &t
	}
	if hospitalID.Valid {
		id := uint64(hospitalID.Int64)
		u.HospitalID = &id
	}
	return u, nil
}

// isDuplicateKey reports whether err is a MySQL duplicate-key violation
// (error 1062).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
