package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/queue"
	"github.com/lifeflow/blood-donation-service/internal/repository"
	queue_publisher "github.com/lifeflow/blood-donation-service/internal/service"
)

// HospitalDonationHandler serves the staff-facing side of the lifecycle:
// screening, collection and lab finalization.
type HospitalDonationHandler struct {
	Users     *repository.UserRepo
	Hospitals *repository.HospitalRepo
	Donations *repository.DonationRepo
	Stock     *repository.StockRepo
}

func NewHospitalDonationHandler(u *repository.UserRepo, h *repository.HospitalRepo, d *repository.DonationRepo, s *repository.StockRepo) *HospitalDonationHandler {
	return &HospitalDonationHandler{Users: u, Hospitals: h, Donations: d, Stock: s}
}

type screeningReq struct {
	Hemoglobin    float64 `json:"hemoglobin"`
	BloodPressure string  `json:"blood_pressure"`
	WeightKg      float64 `json:"weight_kg"`
	Temperature   float64 `json:"temperature"`
	Pulse         uint16  `json:"pulse"`
	Passed        bool    `json:"passed"`
	Remarks       *string `json:"remarks"`
}

type labTestsReq struct {
	HIV        string `json:"hiv"`
	HepatitisB string `json:"hepatitis_b"`
	HepatitisC string `json:"hepatitis_c"`
	Malaria    string `json:"malaria"`
	Syphilis   string `json:"syphilis"`
}

// List returns the hospital's donations with optional status and
// scheduled-date range filters.
func (h *HospitalDonationHandler) List(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	f := repository.DonationFilter{Status: c.QueryParam("status"), Limit: limit, Offset: offset}
	if f.Status != "" && !model.ValidDonationStatus(f.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}
	if s := c.QueryParam("from"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from date"})
		}
		f.FromDate = &t
	}
	if s := c.QueryParam("to"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to date"})
		}
		f.ToDate = &t
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	ds, err := h.Donations.ListByHospital(ctx, cl.HospitalID, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(ds))
	for _, d := range ds {
		out = append(out, donationView(d))
	}
	return c.JSON(http.StatusOK, echo.Map{"donations": out, "count": len(out)})
}

// Get returns one donation belonging to the caller's hospital.
func (h *HospitalDonationHandler) Get(c echo.Context) error {
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
	if d.HospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, donationView(d))
}

// RecordScreening writes the pre-donation vitals snapshot, moving the
// donation to Screening on a pass or Deferred on a fail. A failed screening
// requires remarks explaining the deferral, and the donor's eligibility is
// parked at Deferred.
func (h *HospitalDonationHandler) RecordScreening(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid donation id"})
	}

	var req screeningReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Hemoglobin <= 0 || req.Hemoglobin > 25 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hemoglobin out of range"})
	}
	if req.BloodPressure == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "blood_pressure required"})
	}
	if req.WeightKg < 30 || req.WeightKg > 300 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "weight_kg out of range"})
	}
	if req.Temperature < 30 || req.Temperature > 45 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "temperature out of range"})
	}
	if req.Pulse < 30 || req.Pulse > 250 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pulse out of range"})
	}
	var deferralReason *string
	if !req.Passed {
		if req.Remarks == nil || *req.Remarks == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "remarks required when screening fails"})
		}
		deferralReason = req.Remarks
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	s := model.Screening{
		Hemoglobin:    req.Hemoglobin,
		BloodPressure: req.BloodPressure,
		WeightKg:      req.WeightKg,
		Temperature:   req.Temperature,
		Pulse:         req.Pulse,
		Passed:        req.Passed,
		Remarks:       req.Remarks,
	}
	d, err := h.Donations.RecordScreening(ctx, id, cl.HospitalID, cl.UserID, s, deferralReason)
	if err != nil {
		return writeRepoError(c, err, "screening failed")
	}

	if d.Status == model.DonationDeferred {
		if err := h.Users.DeferDonor(ctx, d.DonorID); err != nil {
			c.Logger().Errorf("donor deferral failed for donation %d: %v", d.ID, err)
		}
		publishDeferred(d, *deferralReason)
	}
	return c.JSON(http.StatusOK, donationView(d))
}

// Complete records the collection itself. Two phases: the donor's eligibility
// window advances first, then the donation flips Screening -> Completed and a
// whole blood unit enters stock. If the second phase loses a race the donor
// row stays advanced, which is harmless: the donation did happen or is about
// to on retry.
func (h *HospitalDonationHandler) Complete(c echo.Context) error {
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

	existing, err := h.Donations.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if existing.HospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	// Phase (a) must not run unless the conditional transition in phase (b)
	// can still succeed: advancing eligibility for a donation that is not in
	// passed Screening would lock the donor out with no retry able to fix it.
	if existing.Status != model.DonationScreening || existing.Screening == nil || !existing.Screening.Passed {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "donation is not in passed screening"})
	}

	donatedAt := time.Now().UTC()
	if err := h.Users.AdvanceDonorEligibility(ctx, existing.DonorID, donatedAt); err != nil {
		return writeRepoError(c, err, "eligibility update failed")
	}

	d, err := h.Donations.Complete(ctx, id, cl.HospitalID, donatedAt)
	if err != nil {
		return writeRepoError(c, err, "complete failed")
	}

	unit, err := h.Stock.CreateFromDonation(ctx, d)
	if err != nil {
		// The donation is Completed; stock creation can be replayed from it.
		c.Logger().Errorf("stock unit creation failed for donation %d: %v", d.ID, err)
	}

	hosp, hErr := h.Hospitals.GetByID(ctx, d.HospitalID)
	go func(d model.Donation, unitNumber, hospitalName string) {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pubCancel()
		_ = queue_publisher.PublishDonationCompleted(pubCtx, queue.DonationCompletedEvent{
			DonationID:   d.ID,
			DonorID:      d.DonorID,
			HospitalID:   d.HospitalID,
			HospitalName: hospitalName,
			BloodGroup:   d.BloodGroup,
			UnitNumber:   unitNumber,
			DonatedAt:    donatedAt.Format(time.RFC3339),
			NextEligible: model.NextEligibleDate(donatedAt).Format("2006-01-02"),
		})
	}(d, unit.UnitNumber, hospitalNameOr(hosp, hErr))

	resp := donationView(d)
	if unit.ID != 0 {
		resp["stock_unit"] = echo.Map{"id": unit.ID, "unit_number": unit.UnitNumber, "expiry_date": unit.ExpiryDate}
	}
	return c.JSON(http.StatusOK, resp)
}

// FinalizeLabTests records the post-donation pathogen panel exactly once.
// Any positive result defers the donation and the donor and pulls the
// collected unit out of stock.
func (h *HospitalDonationHandler) FinalizeLabTests(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid donation id"})
	}

	var req labTestsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	for _, r := range []string{req.HIV, req.HepatitisB, req.HepatitisC, req.Malaria, req.Syphilis} {
		if !model.ValidLabResult(r) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "every result must be Negative or Positive"})
		}
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	lt := model.LabTests{
		HIV:        req.HIV,
		HepatitisB: req.HepatitisB,
		HepatitisC: req.HepatitisC,
		Malaria:    req.Malaria,
		Syphilis:   req.Syphilis,
	}
	d, err := h.Donations.FinalizeLabTests(ctx, id, cl.HospitalID, lt, time.Now().UTC())
	if err != nil {
		return writeRepoError(c, err, "lab finalization failed")
	}

	if d.Status == model.DonationDeferred {
		if err := h.Users.DeferDonor(ctx, d.DonorID); err != nil {
			c.Logger().Errorf("donor deferral failed for donation %d: %v", d.ID, err)
		}
		if _, err := h.Stock.DiscardByDonation(ctx, d.ID, model.DeferralReasonLabPositive); err != nil {
			c.Logger().Errorf("stock discard failed for donation %d: %v", d.ID, err)
		}
		publishDeferred(d, model.DeferralReasonLabPositive)
	}
	return c.JSON(http.StatusOK, donationView(d))
}

func publishDeferred(d model.Donation, reason string) {
	go func() {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pubCancel()
		_ = queue_publisher.PublishDonationDeferred(pubCtx, queue.DonationDeferredEvent{
			DonationID: d.ID,
			DonorID:    d.DonorID,
			HospitalID: d.HospitalID,
			Reason:     reason,
			DeferredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}

func hospitalNameOr(h model.Hospital, err error) string {
	if err != nil {
		return ""
	}
	return h.Name
}
