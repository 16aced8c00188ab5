package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// StockHandler serves the hospital's blood stock ledger.
type StockHandler struct {
	Hospitals *repository.HospitalRepo
	Stock     *repository.StockRepo
}

func NewStockHandler(h *repository.HospitalRepo, s *repository.StockRepo) *StockHandler {
	return &StockHandler{Hospitals: h, Stock: s}
}

// List returns the hospital's units, soonest expiry first, with optional
// blood group, component and status filters.
func (h *StockHandler) List(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	f := repository.StockFilter{
		BloodGroup:    c.QueryParam("blood_group"),
		ComponentType: c.QueryParam("component_type"),
		Status:        c.QueryParam("status"),
		Limit:         limit,
		Offset:        offset,
	}
	if f.BloodGroup != "" && !model.ValidBloodGroup(f.BloodGroup) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid blood group"})
	}
	if f.ComponentType != "" && !model.ValidComponentType(f.ComponentType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid component type"})
	}
	if f.Status != "" && !model.ValidStockStatus(f.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	units, err := h.Stock.ListByHospital(ctx, cl.HospitalID, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(units))
	for _, u := range units {
		out = append(out, stockView(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"units": out, "count": len(out)})
}

// Get returns one unit belonging to the caller's hospital.
func (h *StockHandler) Get(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid unit id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Stock.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if u.HospitalID != cl.HospitalID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, stockView(u))
}

// ExpireSweep retires every Available unit past its expiry date. Normally a
// scheduler calls this daily; exposing it lets staff run it on demand.
func (h *StockHandler) ExpireSweep(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	n, err := h.Stock.ExpireSweep(ctx, cl.HospitalID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}

// Separate splits a whole blood unit into RBC, plasma and platelet child
// units. Requires the component separation facility on the hospital profile;
// the parent moves to Processed and cannot be issued afterwards.
func (h *StockHandler) Separate(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid unit id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hosp, err := h.Hospitals.GetByID(ctx, cl.HospitalID)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	if !hosp.HasComponentSeparation {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "hospital has no component separation facility"})
	}

	children, err := h.Stock.SeparateComponents(ctx, id, cl.HospitalID)
	if err != nil {
		return writeRepoError(c, err, "separation failed")
	}
	out := make([]echo.Map, 0, len(children))
	for _, u := range children {
		out = append(out, stockView(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"components": out, "count": len(out)})
}

func stockView(u model.BloodStock) echo.Map {
	v := echo.Map{
		"id":             u.ID,
		"unit_number":    u.UnitNumber,
		"hospital_id":    u.HospitalID,
		"donation_id":    u.DonationID,
		"blood_group":    u.BloodGroup,
		"component_type": u.ComponentType,
		"quantity":       u.Quantity,
		"expiry_date":    u.ExpiryDate,
		"status":         u.Status,
	}
	if u.RequestID != nil {
		v["request_id"] = u.RequestID
	}
	if u.TransferID != nil {
		v["transfer_id"] = u.TransferID
	}
	if u.ParentUnitID != nil {
		v["parent_unit_id"] = u.ParentUnitID
	}
	if u.IsComponentSeparated {
		v["is_component_separated"] = true
	}
	if u.Notes != nil {
		v["notes"] = u.Notes
	}
	return v
}
