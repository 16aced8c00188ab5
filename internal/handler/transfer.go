package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/middleware"
	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// TransferHandler serves inter-hospital stock transfers. The receiving
// hospital opens a transfer, the sending hospital approves and dispatches it,
// and the receiver confirms delivery.
type TransferHandler struct {
	Hospitals *repository.HospitalRepo
	Requests  *repository.RequestRepo
	Transfers *repository.TransferRepo
	Stock     *repository.StockRepo
}

func NewTransferHandler(h *repository.HospitalRepo, r *repository.RequestRepo, t *repository.TransferRepo, s *repository.StockRepo) *TransferHandler {
	return &TransferHandler{Hospitals: h, Requests: r, Transfers: t, Stock: s}
}

type createTransferReq struct {
	FromHospitalID uint64  `json:"from_hospital_id"`
	RequestID      *uint64 `json:"request_id"`
	TransportMode  *string `json:"transport_mode"`
	Notes          *string `json:"notes"`
}

type dispatchReq struct {
	UnitIDs []uint64 `json:"unit_ids"`
}

type reportIssueReq struct {
	Issue string `json:"issue"`
}

// Create opens a transfer asking another approved hospital to send units
// here. Optionally binds a Transfer Required patient request.
func (h *TransferHandler) Create(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}

	var req createTransferReq
	if err := c.Bind(&req); err != nil || req.FromHospitalID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "from_hospital_id required"})
	}
	if req.FromHospitalID == cl.HospitalID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot transfer from your own hospital"})
	}
	if req.TransportMode != nil && !model.ValidTransportMode(*req.TransportMode) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid transport mode"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	source, err := h.Hospitals.GetByID(ctx, req.FromHospitalID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "source hospital not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if source.VerificationStatus != model.VerificationApproved {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "source hospital is not verified"})
	}

	if req.RequestID != nil {
		pr, err := h.Requests.GetByID(ctx, *req.RequestID)
		if err != nil {
			return writeRepoError(c, err, "query failed")
		}
		if pr.HospitalID != cl.HospitalID {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "request belongs to another hospital"})
		}
		if pr.Status != model.RequestTransferRequired {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "request is not marked Transfer Required"})
		}
	}

	t, err := h.Transfers.Create(ctx, repository.NewTransferParams{
		FromHospitalID: req.FromHospitalID,
		ToHospitalID:   cl.HospitalID,
		RequestID:      req.RequestID,
		TransportMode:  req.TransportMode,
		Notes:          req.Notes,
	})
	if err != nil {
		return writeRepoError(c, err, "transfer creation failed")
	}
	if req.RequestID != nil {
		if err := h.Requests.AttachTransfer(ctx, *req.RequestID, t.ID); err != nil {
			c.Logger().Errorf("attach transfer %d to request %d failed: %v", t.ID, *req.RequestID, err)
		}
	}
	return c.JSON(http.StatusCreated, transferView(t))
}

// List returns transfers where the caller's hospital is sender or receiver.
func (h *TransferHandler) List(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	ts, err := h.Transfers.ListByHospital(ctx, cl.HospitalID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(ts))
	for _, t := range ts {
		out = append(out, transferView(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"transfers": out, "count": len(out)})
}

// Get returns one transfer visible to the caller's hospital.
func (h *TransferHandler) Get(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.FromHospitalID != cl.HospitalID && t.ToHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, transferView(t))
}

// Approve accepts an inbound transfer. Sender-side action.
func (h *TransferHandler) Approve(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.FromHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the sending hospital can approve"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Transfers.SetStatusFrom(ctx, t.ID, model.TransferPendingApproval, model.TransferApproved, &cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "approve failed")
	}
	return c.JSON(http.StatusOK, transferView(out))
}

// Dispatch sends the named units on their way. Sender-side action: the units
// must be Available at the sending hospital and move to In Transit.
func (h *TransferHandler) Dispatch(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.FromHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the sending hospital can dispatch"})
	}

	var req dispatchReq
	if err := c.Bind(&req); err != nil || len(req.UnitIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unit_ids required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Transfers.SetStatusFrom(ctx, t.ID, model.TransferApproved, model.TransferDispatched, &cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "dispatch failed")
	}
	moved, err := h.Stock.MarkInTransit(ctx, req.UnitIDs, t.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "marking units in transit failed"})
	}
	if moved == 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "none of the named units were available"})
	}
	return c.JSON(http.StatusOK, echo.Map{"transfer": transferView(out), "units_in_transit": moved})
}

// MarkInTransit advances a dispatched transfer to In Transit once the
// courier picks it up. Either side may record it.
func (h *TransferHandler) MarkInTransit(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.FromHospitalID != cl.HospitalID && t.ToHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Transfers.SetStatusFrom(ctx, t.ID, model.TransferDispatched, model.TransferInTransit, &cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "update failed")
	}
	return c.JSON(http.StatusOK, transferView(out))
}

// Deliver confirms arrival. Receiver-side action: the in-transit units move
// onto the receiving hospital's shelf as Available.
func (h *TransferHandler) Deliver(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.ToHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the receiving hospital can confirm delivery"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Transfers.SetStatusFrom(ctx, t.ID, model.TransferInTransit, model.TransferDelivered, &cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "delivery failed")
	}
	received, err := h.Stock.DeliverByTransfer(ctx, t.ID, cl.HospitalID)
	if err != nil {
		c.Logger().Errorf("moving delivered units failed for transfer %d: %v", t.ID, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transfer": transferView(out), "units_received": received})
}

// Complete closes out a delivered transfer.
func (h *TransferHandler) Complete(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.ToHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the receiving hospital can complete"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Transfers.SetStatusFrom(ctx, t.ID, model.TransferDelivered, model.TransferCompleted, &cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "complete failed")
	}
	return c.JSON(http.StatusOK, transferView(out))
}

// Cancel withdraws a transfer that has not been dispatched. Either side.
func (h *TransferHandler) Cancel(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.FromHospitalID != cl.HospitalID && t.ToHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if t.Status != model.TransferPendingApproval && t.Status != model.TransferApproved {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "only undispatched transfers can be cancelled"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Transfers.SetStatusFrom(ctx, t.ID, t.Status, model.TransferCancelled, &cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "cancel failed")
	}
	return c.JSON(http.StatusOK, transferView(out))
}

// ReportIssue attaches a problem note (spoilage, delay, loss) to a transfer.
func (h *TransferHandler) ReportIssue(c echo.Context) error {
	cl, t, errResp := h.load(c)
	if errResp != nil {
		return errResp
	}
	if t.FromHospitalID != cl.HospitalID && t.ToHospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req reportIssueReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Issue) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "issue required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Transfers.ReportIssue(ctx, t.ID, strings.TrimSpace(req.Issue)); err != nil {
		return writeRepoError(c, err, "report failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "issue recorded"})
}

// load resolves the caller and the transfer from the path. The returned
// error, when set, is an HTTPError the handler should return as-is.
func (h *TransferHandler) load(c echo.Context) (middleware.Caller, model.Transfer, error) {
	cl, err := caller(c)
	if err != nil {
		return cl, model.Transfer{}, err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return cl, model.Transfer{}, echo.NewHTTPError(http.StatusBadRequest, "invalid transfer id")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	t, err := h.Transfers.GetByID(ctx, id)
	if err != nil {
		return cl, model.Transfer{}, repoHTTPError(err, "query failed")
	}
	return cl, t, nil
}

func transferView(t model.Transfer) echo.Map {
	v := echo.Map{
		"id":               t.ID,
		"from_hospital_id": t.FromHospitalID,
		"to_hospital_id":   t.ToHospitalID,
		"tracking_number":  t.TrackingNumber,
		"status":           t.Status,
		"created_at":       t.CreatedAt,
		"updated_at":       t.UpdatedAt,
	}
	if t.RequestID != nil {
		v["request_id"] = t.RequestID
	}
	if t.TransportMode != nil {
		v["transport_mode"] = t.TransportMode
	}
	if t.ApprovedBy != nil {
		v["approved_by"] = t.ApprovedBy
	}
	if t.DispatchDate != nil {
		v["dispatch_date"] = t.DispatchDate
	}
	if t.DeliveryDate != nil {
		v["delivery_date"] = t.DeliveryDate
	}
	if t.IssuesReported != nil {
		v["issues_reported"] = t.IssuesReported
	}
	if t.Notes != nil {
		v["notes"] = t.Notes
	}
	return v
}
