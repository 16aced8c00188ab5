package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// AdminHospitalHandler serves the admin review queue for hospital profiles.
type AdminHospitalHandler struct {
	Users     *repository.UserRepo
	Hospitals *repository.HospitalRepo
	Donations *repository.DonationRepo
}

func NewAdminHospitalHandler(u *repository.UserRepo, h *repository.HospitalRepo, d *repository.DonationRepo) *AdminHospitalHandler {
	return &AdminHospitalHandler{Users: u, Hospitals: h, Donations: d}
}

type rejectHospitalReq struct {
	Reason string `json:"reason"`
}

// List returns hospitals filtered by verification status, Pending by default.
func (h *AdminHospitalHandler) List(c echo.Context) error {
	status := c.QueryParam("status")
	if status == "" {
		status = model.VerificationPending
	}
	switch status {
	case model.VerificationPending, model.VerificationApproved, model.VerificationRejected:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}
	limit, offset := pageParams(c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	hs, err := h.Hospitals.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(hs))
	for _, hosp := range hs {
		out = append(out, hospitalView(hosp, true))
	}
	return c.JSON(http.StatusOK, echo.Map{"hospitals": out, "count": len(out)})
}

// Get returns one hospital with its full review state.
func (h *AdminHospitalHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hospital id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hosp, err := h.Hospitals.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	return c.JSON(http.StatusOK, hospitalView(hosp, true))
}

// ListDonations returns a hospital's donations for admin oversight, with the
// same status filter donors and hospitals get.
func (h *AdminHospitalHandler) ListDonations(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hospital id"})
	}
	status := c.QueryParam("status")
	if status != "" && !model.ValidDonationStatus(status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}
	limit, offset := pageParams(c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Hospitals.GetByID(ctx, id); err != nil {
		return writeRepoError(c, err, "query failed")
	}
	ds, err := h.Donations.ListByHospital(ctx, id, repository.DonationFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(ds))
	for _, d := range ds {
		out = append(out, donationView(d))
	}
	return c.JSON(http.StatusOK, echo.Map{"donations": out, "count": len(out)})
}

// Approve verifies a hospital and cascades the verified flag onto its staff
// accounts.
func (h *AdminHospitalHandler) Approve(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hospital id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Hospitals.Approve(ctx, id, cl.UserID); err != nil {
		return writeRepoError(c, err, "approve failed")
	}
	if err := h.Users.SetHospitalVerified(ctx, id, true); err != nil {
		c.Logger().Errorf("verified flag cascade failed for hospital %d: %v", id, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.VerificationApproved})
}

// Reject declines a hospital's profile with a reason the owner can act on.
func (h *AdminHospitalHandler) Reject(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hospital id"})
	}

	var req rejectHospitalReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Hospitals.Reject(ctx, id, cl.UserID, strings.TrimSpace(req.Reason)); err != nil {
		return writeRepoError(c, err, "reject failed")
	}
	if err := h.Users.SetHospitalVerified(ctx, id, false); err != nil {
		c.Logger().Errorf("verified flag cascade failed for hospital %d: %v", id, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.VerificationRejected})
}
