package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// DonorDonationHandler serves the donor-facing side of the donation
// lifecycle: booking, cancelling, rescheduling and history.
type DonorDonationHandler struct {
	Users     *repository.UserRepo
	Hospitals *repository.HospitalRepo
	Donations *repository.DonationRepo
}

func NewDonorDonationHandler(u *repository.UserRepo, h *repository.HospitalRepo, d *repository.DonationRepo) *DonorDonationHandler {
	return &DonorDonationHandler{Users: u, Hospitals: h, Donations: d}
}

type scheduleDonationReq struct {
	HospitalID    uint64 `json:"hospital_id"`
	ScheduledDate string `json:"scheduled_date"`
}

type rescheduleReq struct {
	ScheduledDate string `json:"scheduled_date"`
}

// Schedule books a donation appointment. A donor may hold at most one active
// booking; eligibility gating uses the donor's next_eligible_date so a donor
// inside the 90-day window is told how long to wait.
func (h *DonorDonationHandler) Schedule(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}

	var req scheduleDonationReq
	if err := c.Bind(&req); err != nil || req.HospitalID == 0 || req.ScheduledDate == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hospital_id and scheduled_date required"})
	}
	when, err := parseDate(req.ScheduledDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid scheduled_date"})
	}
	if !when.After(time.Now().UTC()) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_date must be in the future"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	donor, err := h.Users.GetByID(ctx, cl.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !donor.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account is deactivated"})
	}
	if donor.BloodGroup == nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "donor profile has no blood group"})
	}
	if donor.EligibilityStatus == model.EligibilityDeferred {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "donor is medically deferred"})
	}
	if donor.EligibilityStatus != model.EligibilityEligible {
		resp := echo.Map{"error": "donor is not currently eligible to donate"}
		if donor.NextEligibleDate != nil {
			resp["next_eligible_date"] = donor.NextEligibleDate
		}
		if donor.LastDonationDate != nil {
			resp["days_until_eligible"] = model.DaysUntilEligible(*donor.LastDonationDate, time.Now().UTC())
		}
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	if donor.NextEligibleDate != nil && when.Before(*donor.NextEligibleDate) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":              "donor not yet eligible on the requested date",
			"next_eligible_date": donor.NextEligibleDate,
		})
	}

	hosp, err := h.Hospitals.GetByID(ctx, req.HospitalID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "hospital not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !hosp.AcceptsDonations() {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "hospital is not accepting donations"})
	}

	d, err := h.Donations.Create(ctx, cl.UserID, req.HospitalID, *donor.BloodGroup, when)
	if err != nil {
		return writeRepoError(c, err, "schedule failed")
	}
	return c.JSON(http.StatusCreated, donationView(d))
}

// Cancel withdraws the caller's Scheduled booking before its date, freeing
// the one-active-booking slot.
func (h *DonorDonationHandler) Cancel(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid donation id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	d, err := h.Donations.Cancel(ctx, id, cl.UserID)
	if err != nil {
		return writeRepoError(c, err, "cancel failed")
	}
	return c.JSON(http.StatusOK, donationView(d))
}

// Reschedule moves a Scheduled booking to a new future date at or past the
// donor's next eligible date.
func (h *DonorDonationHandler) Reschedule(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid donation id"})
	}

	var req rescheduleReq
	if err := c.Bind(&req); err != nil || req.ScheduledDate == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_date required"})
	}
	when, err := parseDate(req.ScheduledDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid scheduled_date"})
	}
	if !when.After(time.Now().UTC()) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_date must be in the future"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	donor, err := h.Users.GetByID(ctx, cl.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if donor.NextEligibleDate != nil && when.Before(*donor.NextEligibleDate) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":              "donor not yet eligible on the requested date",
			"next_eligible_date": donor.NextEligibleDate,
		})
	}

	d, err := h.Donations.Reschedule(ctx, id, cl.UserID, when)
	if err != nil {
		return writeRepoError(c, err, "reschedule failed")
	}
	return c.JSON(http.StatusOK, donationView(d))
}

// ListMine returns the caller's donation history, newest first.
func (h *DonorDonationHandler) ListMine(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	f := repository.DonationFilter{Status: c.QueryParam("status"), Limit: limit, Offset: offset}
	if f.Status != "" && !model.ValidDonationStatus(f.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	ds, err := h.Donations.ListByDonor(ctx, cl.UserID, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(ds))
	for _, d := range ds {
		out = append(out, donationView(d))
	}
	return c.JSON(http.StatusOK, echo.Map{"donations": out, "count": len(out)})
}

// Get returns one of the caller's donations.
func (h *DonorDonationHandler) Get(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid donation id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	d, err := h.Donations.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if d.DonorID != cl.UserID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, donationView(d))
}

// donationView shapes a donation for JSON responses. Lab results are
// included only once tested, so donors never see a half-filled panel.
func donationView(d model.Donation) echo.Map {
	v := echo.Map{
		"id":             d.ID,
		"donor_id":       d.DonorID,
		"hospital_id":    d.HospitalID,
		"blood_group":    d.BloodGroup,
		"scheduled_date": d.ScheduledDate,
		"status":         d.Status,
		"created_at":     d.CreatedAt,
		"updated_at":     d.UpdatedAt,
	}
	if d.DonationDate != nil {
		v["donation_date"] = d.DonationDate
	}
	if d.Screening != nil {
		v["screening"] = d.Screening
	}
	if d.LabTests.TestedAt != nil {
		v["lab_tests"] = d.LabTests
	}
	if d.DeferralReason != nil {
		v["deferral_reason"] = d.DeferralReason
	}
	if d.Notes != nil {
		v["notes"] = d.Notes
	}
	return v
}
