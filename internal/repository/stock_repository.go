package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifeflow/blood-donation-service/internal/model"
)

// StockRepo provides data access to the blood_stock ledger. Unit status
// changes follow the same conditional-update discipline as donations: the
// WHERE clause carries the expected current status, so two workers reserving
// or issuing the same unit cannot both win.
type StockRepo struct{ DB *sql.DB }

func NewStockRepo(db *sql.DB) *StockRepo { return &StockRepo{DB: db} }

const stockColumns = `id, unit_number, hospital_id, donation_id, blood_group, component_type,
	quantity, expiry_date, status, request_id, transfer_id, parent_unit_id,
	is_component_separated, screening_passed, notes, created_at, updated_at`

// CreateFromDonation inserts one Available whole blood unit for a completed
// donation. Unit numbers are UUIDs so they stay unique across hospitals.
func (r *StockRepo) CreateFromDonation(ctx context.Context, d model.Donation) (model.BloodStock, error) {
	expiry := d.DonationDate.UTC().Add(model.WholeBloodShelfLifeDays * 24 * time.Hour)
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO blood_stock (unit_number, hospital_id, donation_id, blood_group, component_type,
		    quantity, expiry_date, status)
		 VALUES (?,?,?,?,?,1,?,?)`,
		uuid.NewString(), d.HospitalID, d.ID, d.BloodGroup, model.ComponentWholeBlood,
		expiry, model.StockAvailable)
	if err != nil {
		return model.BloodStock{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.BloodStock{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches one stock unit.
func (r *StockRepo) GetByID(ctx context.Context, id uint64) (model.BloodStock, error) {
	u, err := r.scanOne(r.DB.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM blood_stock WHERE id=? LIMIT 1`, id))
	if err == sql.ErrNoRows {
		return model.BloodStock{}, ErrNotFound
	}
	return u, err
}

// StockFilter narrows hospital stock listings.
type StockFilter struct {
	BloodGroup    string
	ComponentType string
	Status        string
	Limit         int
	Offset        int
}

// ListByHospital returns a hospital's stock units, soonest expiry first.
func (r *StockRepo) ListByHospital(ctx context.Context, hospitalID uint64, f StockFilter) ([]model.BloodStock, error) {
	q := `SELECT ` + stockColumns + ` FROM blood_stock WHERE hospital_id=?`
	args := []interface{}{hospitalID}
	if f.BloodGroup != "" {
		q += ` AND blood_group=?`
		args = append(args, f.BloodGroup)
	}
	if f.ComponentType != "" {
		q += ` AND component_type=?`
		args = append(args, f.ComponentType)
	}
	if f.Status != "" {
		q += ` AND status=?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY expiry_date ASC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// DiscardByDonation marks every unit derived from a donation as Discarded
// with a failed screening flag. Called when lab tests come back positive.
// Units already issued or in transit are left alone; that gap is reported to
// the caller through the returned count so the handler can flag it.
func (r *StockRepo) DiscardByDonation(ctx context.Context, donationID uint64, note string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE blood_stock SET status=?, screening_passed=0, notes=?
		 WHERE donation_id=? AND status IN (?,?)`,
		model.StockDiscarded, note, donationID, model.StockAvailable, model.StockReserved)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireSweep transitions every Available unit past its expiry to Expired and
// returns how many were swept. One conditional bulk update; concurrent sweeps
// simply split the rows between them.
func (r *StockRepo) ExpireSweep(ctx context.Context, hospitalID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE blood_stock SET status=?
		 WHERE hospital_id=? AND status=? AND expiry_date < UTC_TIMESTAMP()`,
		model.StockExpired, hospitalID, model.StockAvailable)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReserveUnits reserves up to n Available, unexpired units matching the
// request's group and component, oldest expiry first, and stamps them with
// the request id. It returns the ids actually reserved, which may be fewer
// than n when stock is short. Each row is taken by its own conditional
// update, so concurrent approvals never double-reserve a unit.
func (r *StockRepo) ReserveUnits(ctx context.Context, hospitalID uint64, bloodGroup, component string, n uint32, requestID uint64) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id FROM blood_stock
		 WHERE hospital_id=? AND blood_group=? AND component_type=? AND status=?
		   AND expiry_date > UTC_TIMESTAMP()
		 ORDER BY expiry_date ASC LIMIT ?`,
		hospitalID, bloodGroup, component, model.StockAvailable, n)
	if err != nil {
		return nil, err
	}
	candidates := make([]uint64, 0, n)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	reserved := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		res, err := r.DB.ExecContext(ctx,
			`UPDATE blood_stock SET status=?, request_id=? WHERE id=? AND status=?`,
			model.StockReserved, requestID, id, model.StockAvailable)
		if err != nil {
			return reserved, err
		}
		if cnt, _ := res.RowsAffected(); cnt > 0 {
			reserved = append(reserved, id)
		}
		// A zero-row update means a concurrent reservation took the unit;
		// skip it and keep going.
	}
	return reserved, nil
}

// CountReservedByRequest returns how many units are currently held Reserved
// for the given request.
func (r *StockRepo) CountReservedByRequest(ctx context.Context, requestID uint64) (uint32, error) {
	var n uint32
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blood_stock WHERE request_id=? AND status=?`,
		requestID, model.StockReserved).Scan(&n)
	return n, err
}

// ReleaseByRequest returns a request's Reserved units to Available, used when
// a request is cancelled after approval.
func (r *StockRepo) ReleaseByRequest(ctx context.Context, requestID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE blood_stock SET status=?, request_id=NULL WHERE request_id=? AND status=?`,
		model.StockAvailable, requestID, model.StockReserved)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IssueByRequest moves a request's Reserved units to Issued.
func (r *StockRepo) IssueByRequest(ctx context.Context, requestID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE blood_stock SET status=? WHERE request_id=? AND status=?`,
		model.StockIssued, requestID, model.StockReserved)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkInTransit stamps units with a transfer id and moves them Reserved/
// Available -> In Transit for dispatch.
func (r *StockRepo) MarkInTransit(ctx context.Context, unitIDs []uint64, transferID uint64) (int64, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE blood_stock SET status=?, transfer_id=? WHERE id IN (` +
		placeholders(len(unitIDs)) + `) AND status IN (?,?)`
	args := []interface{}{model.StockInTransit, transferID}
	for _, id := range unitIDs {
		args = append(args, id)
	}
	args = append(args, model.StockAvailable, model.StockReserved)
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeliverByTransfer lands a transfer's In Transit units at the destination
// hospital as Available.
func (r *StockRepo) DeliverByTransfer(ctx context.Context, transferID, toHospitalID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE blood_stock SET hospital_id=?, status=? WHERE transfer_id=? AND status=?`,
		toHospitalID, model.StockAvailable, transferID, model.StockInTransit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SeparateComponents splits one Available whole blood unit into RBC, plasma
// and platelet children and marks the parent Processed. The parent update is
// the conditional gate: once it flips to Processed no second separation can
// match, so the children are only ever inserted by the winner.
func (r *StockRepo) SeparateComponents(ctx context.Context, unitID, hospitalID uint64) ([]model.BloodStock, error) {
	parent, err := r.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if parent.HospitalID != hospitalID {
		return nil, ErrForbidden
	}
	if parent.ComponentType != model.ComponentWholeBlood {
		return nil, ErrInvalidState
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE blood_stock SET status=?, is_component_separated=1
		 WHERE id=? AND status=? AND component_type=?`,
		model.StockProcessed, unitID, model.StockAvailable, model.ComponentWholeBlood)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if parent.Status == model.StockProcessed {
			return nil, ErrConflict
		}
		return nil, ErrInvalidState
	}
	now := time.Now().UTC()
	children := make([]model.BloodStock, 0, 3)
	for _, component := range []string{model.ComponentRBC, model.ComponentPlasma, model.ComponentPlatelets} {
		expiry := now.Add(time.Duration(model.ComponentShelfLifeDays(component)) * 24 * time.Hour)
		ins, err := r.DB.ExecContext(ctx,
			`INSERT INTO blood_stock (unit_number, hospital_id, donation_id, blood_group, component_type,
			    quantity, expiry_date, status, parent_unit_id)
			 VALUES (?,?,?,?,?,1,?,?,?)`,
			uuid.NewString(), parent.HospitalID, parent.DonationID, parent.BloodGroup, component,
			expiry, model.StockAvailable, unitID)
		if err != nil {
			return children, err
		}
		id, err := ins.LastInsertId()
		if err != nil {
			return children, err
		}
		child, err := r.GetByID(ctx, uint64(id))
		if err != nil {
			return children, err
		}
		children = append(children, child)
	}
	return children, nil
}

func (r *StockRepo) scanOne(row rowScanner) (model.BloodStock, error) {
	var u model.BloodStock
	var requestID, transferID, parentID sql.NullInt64
	var notes sql.NullString
	err := row.Scan(&u.ID, &u.UnitNumber, &u.HospitalID, &u.DonationID, &u.BloodGroup,
		&u.ComponentType, &u.Quantity, &u.ExpiryDate, &u.Status, &requestID, &transferID,
		&parentID, &u.IsComponentSeparated, &u.ScreeningPassed, &notes, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.BloodStock{}, err
	}
	if requestID.Valid {
		id := uint64(requestID.Int64)
		u.RequestID = &id
	}
	if transferID.Valid {
		id := uint64(transferID.Int64)
		u.TransferID = &id
	}
	if parentID.Valid {
		id := uint64(parentID.Int64)
		u.ParentUnitID = &id
	}
	assignString(&u.Notes, notes)
	return u, nil
}

func (r *StockRepo) scanMany(rows *sql.Rows) ([]model.BloodStock, error) {
	out := make([]model.BloodStock, 0)
	for rows.Next() {
		u, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// placeholders returns "?,?,...,?" with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
