package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

// TransferRepo provides data access to inter-hospital transfers. Status moves
// along Pending Approval -> Approved -> Dispatched -> In Transit -> Delivered
// -> Completed, each edge a conditional update on the expected current state.
type TransferRepo struct{ DB *sql.DB }

func NewTransferRepo(db *sql.DB) *TransferRepo { return &TransferRepo{DB: db} }

const transferColumns = `id, from_hospital_id, to_hospital_id, request_id, transport_mode,
	tracking_number, status, approved_by, dispatch_date, delivery_date, issues_reported,
	notes, created_at, updated_at`

// NewTransferParams carries a transfer submission.
type NewTransferParams struct {
	FromHospitalID uint64
	ToHospitalID   uint64
	RequestID      *uint64
	TransportMode  *string
	Notes          *string
}

// Create inserts a Pending Approval transfer with a fresh tracking number.
func (r *TransferRepo) Create(ctx context.Context, p NewTransferParams) (model.Transfer, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO transfers (from_hospital_id, to_hospital_id, request_id, transport_mode,
		    tracking_number, status, notes)
		 VALUES (?,?,?,?,?,?,?)`,
		p.FromHospitalID, p.ToHospitalID, p.RequestID, p.TransportMode,
		uuid.NewString(), model.TransferPendingApproval, p.Notes)
	if err != nil {
		return model.Transfer{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Transfer{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches one transfer.
func (r *TransferRepo) GetByID(ctx context.Context, id uint64) (model.Transfer, error) {
	t, err := r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id=? LIMIT 1`, id))
	if err == sql.ErrNoRows {
		return model.Transfer{}, ErrNotFound
	}
	return t, err
}

// SetStatusFrom transitions a transfer between two expected states,
// recording approver, dispatch or delivery timestamps as relevant.
func (r *TransferRepo) SetStatusFrom(ctx context.Context, transferID uint64, fromStatus, toStatus string, actorID *uint64) (model.Transfer, error) {
	q := `UPDATE transfers SET status=?`
	args := []interface{}{toStatus}
	switch toStatus {
	case model.TransferApproved:
		q += `, approved_by=?`
		args = append(args, actorID)
	case model.TransferDispatched:
		q += `, dispatch_date=UTC_TIMESTAMP()`
	case model.TransferDelivered:
		q += `, delivery_date=UTC_TIMESTAMP()`
	}
	q += ` WHERE id=? AND status=?`
	args = append(args, transferID, fromStatus)
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return model.Transfer{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Transfer{}, r.diagnose(ctx, transferID, fromStatus)
	}
	return r.GetByID(ctx, transferID)
}

// ReportIssue appends a problem note to an in-flight transfer.
func (r *TransferRepo) ReportIssue(ctx context.Context, transferID uint64, issue string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE transfers SET issues_reported=? WHERE id=?`, issue, transferID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByHospital returns transfers where the hospital is sender or receiver,
// newest first.
func (r *TransferRepo) ListByHospital(ctx context.Context, hospitalID uint64, limit, offset int) ([]model.Transfer, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE from_hospital_id=? OR to_hospital_id=?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		hospitalID, hospitalID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Transfer, 0)
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TransferRepo) diagnose(ctx context.Context, transferID uint64, wantStatus string) error {
	var gotStatus string
	err := r.DB.QueryRowContext(ctx,
		`SELECT status FROM transfers WHERE id=? LIMIT 1`, transferID).Scan(&gotStatus)
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

func (r *TransferRepo) scanOne(row rowScanner) (model.Transfer, error) {
	var t model.Transfer
	var requestID, approvedBy sql.NullInt64
	var mode, issues, notes sql.NullString
	var dispatch, delivery sql.NullTime
	err := row.Scan(&t.ID, &t.FromHospitalID, &t.ToHospitalID, &requestID, &mode,
		&t.TrackingNumber, &t.Status, &approvedBy, &dispatch, &delivery, &issues,
		&notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Transfer{}, err
	}
	if requestID.Valid {
		id := uint64(requestID.Int64)
		t.RequestID = &id
	}
	if approvedBy.Valid {
		id := uint64(approvedBy.Int64)
		t.ApprovedBy = &id
	}
	assignString(&t.TransportMode, mode)
	assignString(&t.IssuesReported, issues)
	assignString(&t.Notes, notes)
	if dispatch.Valid {
		d := dispatch.Time
		t.DispatchDate = &d
	}
	if delivery.Valid {
		d := delivery.Time
		t.DeliveryDate = &d
	}
	return t, nil
}
