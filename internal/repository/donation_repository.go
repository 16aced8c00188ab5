package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

// DonationRepo implements the donation lifecycle. Each transition is one
// conditional UPDATE whose WHERE clause carries the expected current status
// (plus ownership for donor-scoped operations); when RowsAffected is zero a
// second, unconditional read classifies the failure. No transition ever
// re-enters a prior state, and no in-process lock is held: the database's
// single-row atomicity is the only coordination primitive, so any number of
// stateless server processes can run these concurrently.
type DonationRepo struct{ DB *sql.DB }

func NewDonationRepo(db *sql.DB) *DonationRepo { return &DonationRepo{DB: db} }

const donationColumns = `id, donor_id, hospital_id, blood_group, scheduled_date, donation_date,
	status, hemoglobin, blood_pressure, weight_kg, temperature, pulse, screening_passed,
	screening_remarks, lab_hiv, lab_hepatitis_b, lab_hepatitis_c, lab_malaria, lab_syphilis,
	lab_tested_at, deferral_reason, verified_by, notes, created_at, updated_at`

// Create books a donation slot. The caller (handler) has already checked the
// donor's eligibility and the hospital's approval; the booking_slot unique
// index is the last line of defence against two concurrent bookings by the
// same donor, surfacing the loser as ErrActiveBookingExists.
func (r *DonationRepo) Create(ctx context.Context, donorID, hospitalID uint64, bloodGroup string, scheduledDate time.Time) (model.Donation, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO donations (donor_id, hospital_id, blood_group, scheduled_date, status, booking_slot)
		 VALUES (?,?,?,?,?,1)`,
		donorID, hospitalID, bloodGroup, scheduledDate.UTC(), model.DonationScheduled)
	if err != nil {
		if isDuplicateKey(err) {
			return model.Donation{}, ErrActiveBookingExists
		}
		return model.Donation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Donation{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a donation without any ownership check; callers are
// responsible for authorization.
func (r *DonationRepo) GetByID(ctx context.Context, id uint64) (model.Donation, error) {
	d, err := r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE id=? LIMIT 1`, id))
	if err == sql.ErrNoRows {
		return model.Donation{}, ErrNotFound
	}
	return d, err
}

// Cancel sets a Scheduled, future-dated donation to Cancelled. Donor-scoped:
// the WHERE clause pins the owning donor, so another user's id simply matches
// nothing and the diagnosis reports Forbidden.
func (r *DonationRepo) Cancel(ctx context.Context, donationID, donorID uint64) (model.Donation, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE donations SET status=?, booking_slot=NULL
		 WHERE id=? AND donor_id=? AND status=? AND scheduled_date > UTC_TIMESTAMP()`,
		model.DonationCancelled, donationID, donorID, model.DonationScheduled)
	if err != nil {
		return model.Donation{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Donation{}, r.diagnose(ctx, donationID, donorID, 0, model.DonationScheduled, true)
	}
	return r.GetByID(ctx, donationID)
}

// Reschedule moves a Scheduled donation to a new future date. The
// next-eligible-date check happens in the handler, which holds the donor row;
// the conditional update still guards status and ownership.
func (r *DonationRepo) Reschedule(ctx context.Context, donationID, donorID uint64, newDate time.Time) (model.Donation, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE donations SET scheduled_date=?
		 WHERE id=? AND donor_id=? AND status=?`,
		newDate.UTC(), donationID, donorID, model.DonationScheduled)
	if err != nil {
		return model.Donation{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Donation{}, r.diagnose(ctx, donationID, donorID, 0, model.DonationScheduled, false)
	}
	return r.GetByID(ctx, donationID)
}

// RecordScreening writes the vitals snapshot exactly once, moving the
// donation Scheduled -> Screening when passed or Scheduled -> Deferred when
// failed (deferralReason required by the handler). Hospital-scoped: the WHERE
// clause pins the owning hospital. The booking slot is released either way:
// the donor is no longer "booked" once they are in the chair.
func (r *DonationRepo) RecordScreening(ctx context.Context, donationID, hospitalID, staffID uint64, s model.Screening, deferralReason *string) (model.Donation, error) {
	next := model.DonationScreening
	if !s.Passed {
		next = model.DonationDeferred
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE donations SET status=?, booking_slot=NULL, hemoglobin=?, blood_pressure=?, weight_kg=?,
		    temperature=?, pulse=?, screening_passed=?, screening_remarks=?, deferral_reason=?, verified_by=?
		 WHERE id=? AND hospital_id=? AND status=?`,
		next, s.Hemoglobin, s.BloodPressure, s.WeightKg,
		s.Temperature, s.Pulse, s.Passed, s.Remarks, deferralReason, staffID,
		donationID, hospitalID, model.DonationScheduled)
	if err != nil {
		return model.Donation{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Donation{}, r.diagnose(ctx, donationID, 0, hospitalID, model.DonationScheduled, false)
	}
	return r.GetByID(ctx, donationID)
}

// Complete is phase (b) of donation completion: the conditional transition
// Screening -> Completed. Phase (a), advancing the donor's eligibility, must
// already have succeeded in UserRepo.AdvanceDonorEligibility. The filter
// repeats status=Screening AND screening_passed=1, so a concurrent duplicate
// Complete loses the race and is reported as a conflict rather than silently
// double-applied. If phase (a) ran and (b) loses, the donor's eligibility is
// advanced without the donation marked Completed; that write is idempotent
// and safe to retry, which is the accepted partial outcome.
func (r *DonationRepo) Complete(ctx context.Context, donationID, hospitalID uint64, donatedAt time.Time) (model.Donation, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE donations SET status=?, donation_date=?
		 WHERE id=? AND hospital_id=? AND status=? AND screening_passed=1`,
		model.DonationCompleted, donatedAt.UTC(), donationID, hospitalID, model.DonationScreening)
	if err != nil {
		return model.Donation{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Donation{}, r.diagnoseComplete(ctx, donationID, hospitalID)
	}
	return r.GetByID(ctx, donationID)
}

// FinalizeLabTests records the five pathogen results and tested_at in one
// conditional update whose filter includes lab_tested_at IS NULL, making
// finalization single-shot. Any Positive result defers the donation with the
// fixed reason; all Negative leaves it Completed.
func (r *DonationRepo) FinalizeLabTests(ctx context.Context, donationID, hospitalID uint64, lt model.LabTests, testedAt time.Time) (model.Donation, error) {
	final := lt.FinalStatus()
	var reason *string
	if final == model.DonationDeferred {
		s := model.DeferralReasonLabPositive
		reason = &s
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE donations SET lab_hiv=?, lab_hepatitis_b=?, lab_hepatitis_c=?, lab_malaria=?,
		    lab_syphilis=?, lab_tested_at=?, status=?, deferral_reason=COALESCE(?, deferral_reason)
		 WHERE id=? AND hospital_id=? AND status=? AND lab_tested_at IS NULL`,
		lt.HIV, lt.HepatitisB, lt.HepatitisC, lt.Malaria,
		lt.Syphilis, testedAt.UTC(), final, reason,
		donationID, hospitalID, model.DonationCompleted)
	if err != nil {
		return model.Donation{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Donation{}, r.diagnoseLabTests(ctx, donationID, hospitalID)
	}
	return r.GetByID(ctx, donationID)
}

// DonationFilter narrows list queries.
type DonationFilter struct {
	Status   string
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// ListByDonor returns a donor's donations, newest first.
func (r *DonationRepo) ListByDonor(ctx context.Context, donorID uint64, f DonationFilter) ([]model.Donation, error) {
	q := `SELECT ` + donationColumns + ` FROM donations WHERE donor_id=?`
	args := []interface{}{donorID}
	if f.Status != "" {
		q += ` AND status=?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)
	return r.list(ctx, q, args...)
}

// ListByHospital returns a hospital's donations with optional status and
// scheduled-date range filters, newest first.
func (r *DonationRepo) ListByHospital(ctx context.Context, hospitalID uint64, f DonationFilter) ([]model.Donation, error) {
	q := `SELECT ` + donationColumns + ` FROM donations WHERE hospital_id=?`
	args := []interface{}{hospitalID}
	if f.Status != "" {
		q += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.FromDate != nil {
		q += ` AND scheduled_date >= ?`
		args = append(args, f.FromDate.UTC())
	}
	if f.ToDate != nil {
		q += ` AND scheduled_date <= ?`
		args = append(args, f.ToDate.UTC())
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)
	return r.list(ctx, q, args...)
}

// diagnose classifies a failed donor- or hospital-scoped conditional update.
// It never mutates: one read, one precise error. ownerID/hospitalID of zero
// means "not checked". checkDate additionally reports InvalidState for
// past-dated Scheduled records (the cancel path).
func (r *DonationRepo) diagnose(ctx context.Context, donationID, donorID, hospitalID uint64, wantStatus string, checkDate bool) error {
	var gotDonor, gotHospital uint64
	var gotStatus string
	var scheduled time.Time
	err := r.DB.QueryRowContext(ctx,
		`SELECT donor_id, hospital_id, status, scheduled_date FROM donations WHERE id=? LIMIT 1`,
		donationID).Scan(&gotDonor, &gotHospital, &gotStatus, &scheduled)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if donorID != 0 && gotDonor != donorID {
		return ErrForbidden
	}
	if hospitalID != 0 && gotHospital != hospitalID {
		return ErrForbidden
	}
	if gotStatus != wantStatus {
		return ErrInvalidState
	}
	if checkDate && !scheduled.After(time.Now().UTC()) {
		return ErrInvalidState
	}
	// Status and ownership looked right, so the conditional update lost a
	// race with a concurrent writer.
	return ErrConflict
}

func (r *DonationRepo) diagnoseComplete(ctx context.Context, donationID, hospitalID uint64) error {
	var gotHospital uint64
	var gotStatus string
	var passed sql.NullBool
	err := r.DB.QueryRowContext(ctx,
		`SELECT hospital_id, status, screening_passed FROM donations WHERE id=? LIMIT 1`,
		donationID).Scan(&gotHospital, &gotStatus, &passed)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if gotHospital != hospitalID {
		return ErrForbidden
	}
	if gotStatus == model.DonationCompleted {
		return ErrConflict // a concurrent Complete already won
	}
	if gotStatus != model.DonationScreening || !passed.Valid || !passed.Bool {
		return ErrInvalidState
	}
	return ErrConflict
}

func (r *DonationRepo) diagnoseLabTests(ctx context.Context, donationID, hospitalID uint64) error {
	var gotHospital uint64
	var gotStatus string
	var testedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT hospital_id, status, lab_tested_at FROM donations WHERE id=? LIMIT 1`,
		donationID).Scan(&gotHospital, &gotStatus, &testedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if gotHospital != hospitalID {
		return ErrForbidden
	}
	if testedAt.Valid {
		return ErrConflict // results already recorded
	}
	if gotStatus != model.DonationCompleted {
		return ErrInvalidState
	}
	return ErrConflict
}

func (r *DonationRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Donation, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Donation, 0)
	for rows.Next() {
		d, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DonationRepo) scanOne(row rowScanner) (model.Donation, error) {
	var d model.Donation
	var donationDate, testedAt sql.NullTime
	var hb, weight, temp sql.NullFloat64
	var bp, remarks, deferral, notes sql.NullString
	var pulse sql.NullInt32
	var passed sql.NullBool
	var verifiedBy sql.NullInt64
	err := row.Scan(&d.ID, &d.DonorID, &d.HospitalID, &d.BloodGroup, &d.ScheduledDate, &donationDate,
		&d.Status, &hb, &bp, &weight, &temp, &pulse, &passed,
		&remarks, &d.LabTests.HIV, &d.LabTests.HepatitisB, &d.LabTests.HepatitisC,
		&d.LabTests.Malaria, &d.LabTests.Syphilis,
		&testedAt, &deferral, &verifiedBy, &notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return model.Donation{}, err
	}
	if donationDate.Valid {
		t := donationDate.Time
		d.DonationDate = &t
	}
	if testedAt.Valid {
		t := testedAt.Time
		d.LabTests.TestedAt = &t
	}
	if passed.Valid {
		s := model.Screening{
			Hemoglobin:    hb.Float64,
			BloodPressure: bp.String,
			WeightKg:      weight.Float64,
			Temperature:   temp.Float64,
			Pulse:         uint16(pulse.Int32),
			Passed:        passed.Bool,
		}
		if remarks.Valid {
			s.Remarks = &remarks.String
		}
		d.Screening = &s
	}
	assignString(&d.DeferralReason, deferral)
	assignString(&d.Notes, notes)
	if verifiedBy.Valid {
		id := uint64(verifiedBy.Int64)
		d.VerifiedBy = &id
	}
	return d, nil
}
