package repository

import (
	"context"
	"database/sql"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

// HospitalRepo provides data access to the hospitals table and implements the
// admin verification workflow. Approve and reject are conditional updates
// keyed on the current verification status so redundant or racing calls fail
// cleanly instead of re-firing side effects.
type HospitalRepo struct{ DB *sql.DB }

func NewHospitalRepo(db *sql.DB) *HospitalRepo { return &HospitalRepo{DB: db} }

const hospitalColumns = `id, name, type, license_number, street, city, state, pincode, country,
	contact_name, contact_designation, phone, verification_status, verified_by, verified_at,
	rejection_reason, is_active, storage_capacity, has_component_separation,
	document_name, document_url, created_at, updated_at`

// NewHospitalParams carries the fields a hospital-role user submits when
// registering their facility.
type NewHospitalParams struct {
	Name                   string
	Type                   string
	LicenseNumber          string
	Street                 *string
	City                   *string
	State                  *string
	Pincode                *string
	Country                string
	ContactName            *string
	ContactDesignation     *string
	Phone                  *string
	StorageCapacity        *uint32
	HasComponentSeparation bool
	DocumentName           string
	DocumentURL            string
}

// Create inserts a Pending, inactive hospital profile. A duplicate license
// number surfaces as ErrLicenseExists.
func (r *HospitalRepo) Create(ctx context.Context, p NewHospitalParams) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO hospitals (name, type, license_number, street, city, state, pincode, country,
		    contact_name, contact_designation, phone, storage_capacity, has_component_separation,
		    document_name, document_url, verification_status, is_active)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0)`,
		p.Name, p.Type, p.LicenseNumber, p.Street, p.City, p.State, p.Pincode, p.Country,
		p.ContactName, p.ContactDesignation, p.Phone, p.StorageCapacity, p.HasComponentSeparation,
		p.DocumentName, p.DocumentURL, model.VerificationPending)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrLicenseExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a hospital by id. Missing rows surface as ErrNotFound.
func (r *HospitalRepo) GetByID(ctx context.Context, id uint64) (model.Hospital, error) {
	h, err := r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+hospitalColumns+` FROM hospitals WHERE id=? LIMIT 1`, id))
	if err == sql.ErrNoRows {
		return model.Hospital{}, ErrNotFound
	}
	return h, err
}

// Approve transitions a hospital to Approved and activates it. The update is
// conditioned on not already being Approved; when nothing matches, the
// diagnostic read separates "absent" from "already approved".
func (r *HospitalRepo) Approve(ctx context.Context, hospitalID, adminID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE hospitals SET verification_status=?, is_active=1, verified_by=?, verified_at=UTC_TIMESTAMP(),
		    rejection_reason=NULL
		 WHERE id=? AND verification_status<>?`,
		model.VerificationApproved, adminID, hospitalID, model.VerificationApproved)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return r.diagnoseVerification(ctx, hospitalID)
}

// Reject transitions a hospital to Rejected with a reason and deactivates it,
// conditioned on not already being Rejected.
func (r *HospitalRepo) Reject(ctx context.Context, hospitalID, adminID uint64, reason string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE hospitals SET verification_status=?, is_active=0, verified_by=?, verified_at=UTC_TIMESTAMP(),
		    rejection_reason=?
		 WHERE id=? AND verification_status<>?`,
		model.VerificationRejected, adminID, reason, hospitalID, model.VerificationRejected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return r.diagnoseVerification(ctx, hospitalID)
}

func (r *HospitalRepo) diagnoseVerification(ctx context.Context, hospitalID uint64) error {
	var status string
	err := r.DB.QueryRowContext(ctx,
		`SELECT verification_status FROM hospitals WHERE id=? LIMIT 1`, hospitalID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidState // already in the target state
}

// UpdatableFields is the subset of profile fields an owner may edit while the
// hospital is not yet Approved.
type UpdatableFields struct {
	Name                   *string
	Street                 *string
	City                   *string
	State                  *string
	Pincode                *string
	Phone                  *string
	ContactName            *string
	ContactDesignation     *string
	StorageCapacity        *uint32
	HasComponentSeparation *bool
	DocumentName           *string
	DocumentURL            *string
}

// UpdateByOwner applies owner edits, conditioned on the hospital not being
// Approved: approved profiles are frozen until an admin intervenes.
func (r *HospitalRepo) UpdateByOwner(ctx context.Context, hospitalID uint64, f UpdatableFields) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE hospitals SET
		    name=COALESCE(?, name), street=COALESCE(?, street), city=COALESCE(?, city),
		    state=COALESCE(?, state), pincode=COALESCE(?, pincode), phone=COALESCE(?, phone),
		    contact_name=COALESCE(?, contact_name), contact_designation=COALESCE(?, contact_designation),
		    storage_capacity=COALESCE(?, storage_capacity),
		    has_component_separation=COALESCE(?, has_component_separation),
		    document_name=COALESCE(?, document_name), document_url=COALESCE(?, document_url)
		 WHERE id=? AND verification_status<>?`,
		f.Name, f.Street, f.City, f.State, f.Pincode, f.Phone,
		f.ContactName, f.ContactDesignation, f.StorageCapacity, f.HasComponentSeparation,
		f.DocumentName, f.DocumentURL, hospitalID, model.VerificationApproved)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var status string
	err = r.DB.QueryRowContext(ctx,
		`SELECT verification_status FROM hospitals WHERE id=? LIMIT 1`, hospitalID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == model.VerificationApproved {
		return ErrInvalidState
	}
	// Row matched but nothing changed (all fields nil); treat as success.
	return nil
}

// Resubmit returns a Rejected hospital to Pending after owner edits. Only the
// Rejected -> Pending edge exists; resubmitting a Pending or Approved profile
// is an invalid state.
func (r *HospitalRepo) Resubmit(ctx context.Context, hospitalID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE hospitals SET verification_status=?, rejection_reason=NULL, verified_by=NULL, verified_at=NULL
		 WHERE id=? AND verification_status=?`,
		model.VerificationPending, hospitalID, model.VerificationRejected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var status string
	err = r.DB.QueryRowContext(ctx,
		`SELECT verification_status FROM hospitals WHERE id=? LIMIT 1`, hospitalID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidState
}

// ListByStatus returns hospitals filtered by verification status (empty means
// all), newest first, paginated.
func (r *HospitalRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]model.Hospital, error) {
	q := `SELECT ` + hospitalColumns + ` FROM hospitals`
	args := []interface{}{}
	if status != "" {
		q += ` WHERE verification_status=?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ListApproved returns active, approved hospitals for the public directory.
func (r *HospitalRepo) ListApproved(ctx context.Context) ([]model.Hospital, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+hospitalColumns+` FROM hospitals
		 WHERE verification_status=? AND is_active=1 ORDER BY name`,
		model.VerificationApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

type rowScanner interface{ Scan(dest ...interface{}) error }

func (r *HospitalRepo) scanOne(row rowScanner) (model.Hospital, error) {
	var h model.Hospital
	var street, city, state, pincode, contactName, contactDesig, phone, reason, docName, docURL sql.NullString
	var verifiedBy sql.NullInt64
	var verifiedAt sql.NullTime
	var capacity sql.NullInt64
	err := row.Scan(&h.ID, &h.Name, &h.Type, &h.LicenseNumber, &street, &city, &state, &pincode,
		&h.Country, &contactName, &contactDesig, &phone, &h.VerificationStatus, &verifiedBy,
		&verifiedAt, &reason, &h.IsActive, &capacity, &h.HasComponentSeparation,
		&docName, &docURL, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return model.Hospital{}, err
	}
	assignString(&h.Street, street)
	assignString(&h.City, city)
	assignString(&h.State, state)
	assignString(&h.Pincode, pincode)
	assignString(&h.ContactName, contactName)
	assignString(&h.ContactDesignation, contactDesig)
	assignString(&h.Phone, phone)
	assignString(&h.RejectionReason, reason)
	assignString(&h.DocumentName, docName)
	assignString(&h.DocumentURL, docURL)
	if verifiedBy.Valid {
		id := uint64(verifiedBy.Int64)
		h.VerifiedBy = &id
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		h.VerifiedAt = &t
	}
	if capacity.Valid {
		c := uint32(capacity.Int64)
		h.StorageCapacity = &c
	}
	return h, nil
}

func (r *HospitalRepo) scanMany(rows *sql.Rows) ([]model.Hospital, error) {
	out := make([]model.Hospital, 0)
	for rows.Next() {
		h, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func assignString(dst **string, v sql.NullString) {
	if v.Valid {
		s := v.String
		*dst = &s
	}
}
