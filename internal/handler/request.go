package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// RequestHandler serves patient blood requests on both sides: patients file
// and track them, hospital staff review and fulfil them.
type RequestHandler struct {
	Hospitals *repository.HospitalRepo
	Requests  *repository.RequestRepo
	Stock     *repository.StockRepo
}

func NewRequestHandler(h *repository.HospitalRepo, r *repository.RequestRepo, s *repository.StockRepo) *RequestHandler {
	return &RequestHandler{Hospitals: h, Requests: r, Stock: s}
}

type createRequestReq struct {
	HospitalID    uint64  `json:"hospital_id"`
	BloodGroup    string  `json:"blood_group"`
	ComponentType string  `json:"component_type"`
	UnitsRequired uint32  `json:"units_required"`
	Urgency       string  `json:"urgency"`
	RequiredDate  string  `json:"required_date"`
	Diagnosis     *string `json:"diagnosis"`
}

type rejectRequestReq struct {
	Reason string `json:"reason"`
}

type approveRequestReq struct {
	// Fallback state when the hospital cannot reserve enough stock.
	Fallback string `json:"fallback"`
}

// Create files a request against an approved hospital. Defaults: whole blood,
// one unit, normal urgency.
func (h *RequestHandler) Create(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}

	var req createRequestReq
	if err := c.Bind(&req); err != nil || req.HospitalID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hospital_id required"})
	}
	if !model.ValidBloodGroup(req.BloodGroup) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid blood group"})
	}
	if req.ComponentType == "" {
		req.ComponentType = model.ComponentWholeBlood
	}
	if !model.ValidComponentType(req.ComponentType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid component type"})
	}
	if req.UnitsRequired == 0 {
		req.UnitsRequired = 1
	}
	if req.UnitsRequired > 20 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "units_required out of range"})
	}
	if req.Urgency == "" {
		req.Urgency = model.UrgencyNormal
	}
	if !model.ValidUrgency(req.Urgency) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid urgency"})
	}

	p := repository.NewRequestParams{
		PatientID:     cl.UserID,
		HospitalID:    req.HospitalID,
		BloodGroup:    req.BloodGroup,
		ComponentType: req.ComponentType,
		UnitsRequired: req.UnitsRequired,
		Urgency:       req.Urgency,
		Diagnosis:     req.Diagnosis,
	}
	if req.RequiredDate != "" {
		t, err := parseDate(req.RequiredDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid required_date"})
		}
		p.RequiredDate = &t
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hosp, err := h.Hospitals.GetByID(ctx, req.HospitalID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "hospital not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if hosp.VerificationStatus != model.VerificationApproved || !hosp.IsActive {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "hospital is not accepting requests"})
	}

	out, err := h.Requests.Create(ctx, p)
	if err != nil {
		return writeRepoError(c, err, "request failed")
	}
	return c.JSON(http.StatusCreated, requestView(out))
}

// ListMine returns the patient's requests, newest first.
func (h *RequestHandler) ListMine(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	rs, err := h.Requests.ListByPatient(ctx, cl.UserID, repository.RequestFilter{
		Status: c.QueryParam("status"), Limit: limit, Offset: offset,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": requestViews(rs), "count": len(rs)})
}

// Cancel lets the patient withdraw a request that is not yet completed.
// Reserved units go back to the shelf.
func (h *RequestHandler) Cancel(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Requests.CancelByPatient(ctx, id, cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "cancel failed")
	}
	if _, err := h.Stock.ReleaseByRequest(ctx, id); err != nil {
		c.Logger().Errorf("release reserved units failed for request %d: %v", id, err)
	}
	return c.JSON(http.StatusOK, requestView(out))
}

// ListForHospital returns the hospital's inbound requests, most urgent first.
func (h *RequestHandler) ListForHospital(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	rs, err := h.Requests.ListByHospital(ctx, cl.HospitalID, repository.RequestFilter{
		Status: c.QueryParam("status"), Limit: limit, Offset: offset,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": requestViews(rs), "count": len(rs)})
}

// Approve reviews a Pending request. When enough matching stock exists it is
// reserved and the request goes straight to Ready for Issue; otherwise the
// request parks in the fallback state (Awaiting Donor by default, or
// Transfer Required when the hospital plans to source units elsewhere).
func (h *RequestHandler) Approve(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}

	var req approveRequestReq
	_ = c.Bind(&req)
	fallback := req.Fallback
	if fallback == "" {
		fallback = model.RequestAwaitingDonor
	}
	if fallback != model.RequestAwaitingDonor && fallback != model.RequestTransferRequired {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "fallback must be Awaiting Donor or Transfer Required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	target, err := h.Requests.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if target.HospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if target.Status != model.RequestPending {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "only pending requests can be approved"})
	}

	reserved, err := h.Stock.ReserveUnits(ctx, cl.HospitalID, target.BloodGroup, target.ComponentType, target.UnitsRequired, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation failed"})
	}

	toStatus := model.RequestReadyForIssue
	if uint32(len(reserved)) < target.UnitsRequired {
		// Partial reservations stay held so the request completes as soon as
		// the shortfall arrives.
		toStatus = fallback
	}

	out, err := h.Requests.SetStatusFrom(ctx, id, model.RequestPending, toStatus, &cl.UserID, nil)
	if err != nil {
		if _, relErr := h.Stock.ReleaseByRequest(ctx, id); relErr != nil {
			c.Logger().Errorf("release after failed approve for request %d: %v", id, relErr)
		}
		return writeRepoError(c, err, "approve failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"request": requestView(out), "units_reserved": len(reserved)})
}

// Fulfill retries reservation for a request parked in Awaiting Donor or
// Transfer Required after new stock has arrived.
func (h *RequestHandler) Fulfill(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	target, err := h.Requests.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if target.HospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if target.Status != model.RequestAwaitingDonor && target.Status != model.RequestTransferRequired {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "request is not awaiting fulfilment"})
	}

	// Count units already held for this request before topping up.
	heldCount, err := h.Stock.CountReservedByRequest(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	missing := uint32(0)
	if heldCount < target.UnitsRequired {
		missing = target.UnitsRequired - heldCount
	}
	reserved, err := h.Stock.ReserveUnits(ctx, cl.HospitalID, target.BloodGroup, target.ComponentType, missing, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation failed"})
	}
	if heldCount+uint32(len(reserved)) < target.UnitsRequired {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":          "still not enough stock",
			"units_reserved": heldCount + uint32(len(reserved)),
			"units_required": target.UnitsRequired,
		})
	}

	out, err := h.Requests.SetStatusFrom(ctx, id, target.Status, model.RequestReadyForIssue, &cl.UserID, nil)
	if err != nil {
		return writeRepoError(c, err, "fulfil failed")
	}
	return c.JSON(http.StatusOK, requestView(out))
}

// Reject declines a Pending request with a reason.
func (h *RequestHandler) Reject(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}

	var req rejectRequestReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	target, err := h.Requests.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if target.HospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	reason := strings.TrimSpace(req.Reason)
	out, err := h.Requests.SetStatusFrom(ctx, id, model.RequestPending, model.RequestRejected, &cl.UserID, &reason)
	if err != nil {
		return writeRepoError(c, err, "reject failed")
	}
	return c.JSON(http.StatusOK, requestView(out))
}

// Issue hands the reserved units to the patient and completes the request.
func (h *RequestHandler) Issue(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	target, err := h.Requests.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if target.HospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	out, err := h.Requests.SetStatusFrom(ctx, id, model.RequestReadyForIssue, model.RequestCompleted, &cl.UserID, nil)
	if err != nil {
		return writeRepoError(c, err, "issue failed")
	}
	issued, err := h.Stock.IssueByRequest(ctx, id)
	if err != nil {
		c.Logger().Errorf("issue stock failed for request %d: %v", id, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"request": requestView(out), "units_issued": issued})
}

func requestView(r model.Request) echo.Map {
	v := echo.Map{
		"id":             r.ID,
		"patient_id":     r.PatientID,
		"hospital_id":    r.HospitalID,
		"blood_group":    r.BloodGroup,
		"component_type": r.ComponentType,
		"units_required": r.UnitsRequired,
		"urgency":        r.Urgency,
		"status":         r.Status,
		"created_at":     r.CreatedAt,
		"updated_at":     r.UpdatedAt,
	}
	if r.RequiredDate != nil {
		v["required_date"] = r.RequiredDate
	}
	if r.Diagnosis != nil {
		v["diagnosis"] = r.Diagnosis
	}
	if r.ApprovedBy != nil {
		v["approved_by"] = r.ApprovedBy
		v["approval_date"] = r.ApprovalDate
	}
	if r.RejectionReason != nil {
		v["rejection_reason"] = r.RejectionReason
	}
	if r.TransferID != nil {
		v["transfer_id"] = r.TransferID
	}
	return v
}

func requestViews(rs []model.Request) []echo.Map {
	out := make([]echo.Map, 0, len(rs))
	for _, r := range rs {
		out = append(out, requestView(r))
	}
	return out
}
