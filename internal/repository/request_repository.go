package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

// RequestRepo provides data access to patient blood requests. Approval,
// rejection and issuing are conditional updates on the current status.
type RequestRepo struct{ DB *sql.DB }

func NewRequestRepo(db *sql.DB) *RequestRepo { return &RequestRepo{DB: db} }

const requestColumns = `id, patient_id, hospital_id, blood_group, component_type, units_required,
	urgency, required_date, diagnosis, status, approved_by, approval_date, rejection_reason,
	transfer_id, notes, created_at, updated_at`

// NewRequestParams carries a patient's submission.
type NewRequestParams struct {
	PatientID     uint64
	HospitalID    uint64
	BloodGroup    string
	ComponentType string
	UnitsRequired uint32
	Urgency       string
	RequiredDate  *time.Time
	Diagnosis     *string
}

// Create inserts a Pending request.
func (r *RequestRepo) Create(ctx context.Context, p NewRequestParams) (model.Request, error) {
	var requiredDate interface{}
	if p.RequiredDate != nil {
		requiredDate = p.RequiredDate.UTC()
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO requests (patient_id, hospital_id, blood_group, component_type, units_required,
		    urgency, required_date, diagnosis, status)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		p.PatientID, p.HospitalID, p.BloodGroup, p.ComponentType, p.UnitsRequired,
		p.Urgency, requiredDate, p.Diagnosis, model.RequestPending)
	if err != nil {
		return model.Request{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Request{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches one request.
func (r *RequestRepo) GetByID(ctx context.Context, id uint64) (model.Request, error) {
	req, err := r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id=? LIMIT 1`, id))
	if err == sql.ErrNoRows {
		return model.Request{}, ErrNotFound
	}
	return req, err
}

// SetStatusFrom transitions a request from an expected status to a new one,
// recording the approver when provided. RowsAffected==0 is classified by a
// diagnostic read.
func (r *RequestRepo) SetStatusFrom(ctx context.Context, requestID uint64, fromStatus, toStatus string, approvedBy *uint64, rejectionReason *string) (model.Request, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE requests SET status=?,
		    approved_by=COALESCE(?, approved_by),
		    approval_date=CASE WHEN ? IS NULL THEN approval_date ELSE UTC_TIMESTAMP() END,
		    rejection_reason=COALESCE(?, rejection_reason)
		 WHERE id=? AND status=?`,
		toStatus, approvedBy, approvedBy, rejectionReason, requestID, fromStatus)
	if err != nil {
		return model.Request{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Request{}, r.diagnose(ctx, requestID, fromStatus)
	}
	return r.GetByID(ctx, requestID)
}

// CancelByPatient cancels the patient's own Pending request. Ownership is
// part of the filter; the diagnosis separates not-owner from wrong-state.
func (r *RequestRepo) CancelByPatient(ctx context.Context, requestID, patientID uint64) (model.Request, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE requests SET status=? WHERE id=? AND patient_id=? AND status=?`,
		model.RequestCancelled, requestID, patientID, model.RequestPending)
	if err != nil {
		return model.Request{}, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return r.GetByID(ctx, requestID)
	}
	var gotPatient uint64
	var gotStatus string
	err = r.DB.QueryRowContext(ctx,
		`SELECT patient_id, status FROM requests WHERE id=? LIMIT 1`, requestID).
		Scan(&gotPatient, &gotStatus)
	if err == sql.ErrNoRows {
		return model.Request{}, ErrNotFound
	}
	if err != nil {
		return model.Request{}, err
	}
	if gotPatient != patientID {
		return model.Request{}, ErrForbidden
	}
	if gotStatus != model.RequestPending {
		return model.Request{}, ErrInvalidState
	}
	return model.Request{}, ErrConflict
}

// AttachTransfer links an outbound transfer to a request.
func (r *RequestRepo) AttachTransfer(ctx context.Context, requestID, transferID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE requests SET transfer_id=? WHERE id=?`, transferID, requestID)
	return err
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	Status string
	Limit  int
	Offset int
}

// ListByPatient returns a patient's requests, newest first.
func (r *RequestRepo) ListByPatient(ctx context.Context, patientID uint64, f RequestFilter) ([]model.Request, error) {
	q := `SELECT ` + requestColumns + ` FROM requests WHERE patient_id=?`
	args := []interface{}{patientID}
	if f.Status != "" {
		q += ` AND status=?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)
	return r.list(ctx, q, args...)
}

// ListByHospital returns a hospital's inbound requests, most urgent and
// newest first.
func (r *RequestRepo) ListByHospital(ctx context.Context, hospitalID uint64, f RequestFilter) ([]model.Request, error) {
	q := `SELECT ` + requestColumns + ` FROM requests WHERE hospital_id=?`
	args := []interface{}{hospitalID}
	if f.Status != "" {
		q += ` AND status=?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY FIELD(urgency,'Emergency','Urgent','Normal'), created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)
	return r.list(ctx, q, args...)
}

func (r *RequestRepo) diagnose(ctx context.Context, requestID uint64, wantStatus string) error {
	var gotStatus string
	err := r.DB.QueryRowContext(ctx,
		`SELECT status FROM requests WHERE id=? LIMIT 1`, requestID).Scan(&gotStatus)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if gotStatus != wantStatus {
		return ErrInvalidState
	}
	return ErrConflict
}

func (r *RequestRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Request, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Request, 0)
	for rows.Next() {
		req, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *RequestRepo) scanOne(row rowScanner) (model.Request, error) {
	var req model.Request
	var requiredDate, approvalDate sql.NullTime
	var diagnosis, reason, notes sql.NullString
	var approvedBy, transferID sql.NullInt64
	err := row.Scan(&req.ID, &req.PatientID, &req.HospitalID, &req.BloodGroup, &req.ComponentType,
		&req.UnitsRequired, &req.Urgency, &requiredDate, &diagnosis, &req.Status,
		&approvedBy, &approvalDate, &reason, &transferID, &notes, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return model.Request{}, err
	}
	if requiredDate.Valid {
		t := requiredDate.Time
		req.RequiredDate = &t
	}
	if approvalDate.Valid {
		t := approvalDate.Time
		req.ApprovalDate = &t
	}
	assignString(&req.Diagnosis, diagnosis)
	assignString(&req.RejectionReason, reason)
	assignString(&req.Notes, notes)
	if approvedBy.Valid {
		id := uint64(approvedBy.Int64)
		req.ApprovedBy = &id
	}
	if transferID.Valid {
		id := uint64(transferID.Int64)
		req.TransferID = &id
	}
	return req, nil
}
