package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// HospitalProfileHandler serves hospital self-service: registering a profile,
// keeping it current, and resubmitting after rejection.
type HospitalProfileHandler struct {
	Users     *repository.UserRepo
	Hospitals *repository.HospitalRepo
}

func NewHospitalProfileHandler(u *repository.UserRepo, h *repository.HospitalRepo) *HospitalProfileHandler {
	return &HospitalProfileHandler{Users: u, Hospitals: h}
}

type registerHospitalReq struct {
	Name                   string  `json:"name"`
	Type                   string  `json:"type"`
	LicenseNumber          string  `json:"license_number"`
	Street                 *string `json:"street"`
	City                   *string `json:"city"`
	State                  *string `json:"state"`
	Pincode                *string `json:"pincode"`
	Country                string  `json:"country"`
	ContactName            *string `json:"contact_name"`
	ContactDesignation     *string `json:"contact_designation"`
	Phone                  *string `json:"phone"`
	StorageCapacity        *uint32 `json:"storage_capacity"`
	HasComponentSeparation bool    `json:"has_component_separation"`
	DocumentName           string  `json:"document_name"`
	DocumentURL            string  `json:"document_url"`
}

type updateHospitalReq struct {
	Name                   *string `json:"name"`
	Street                 *string `json:"street"`
	City                   *string `json:"city"`
	State                  *string `json:"state"`
	Pincode                *string `json:"pincode"`
	Phone                  *string `json:"phone"`
	ContactName            *string `json:"contact_name"`
	ContactDesignation     *string `json:"contact_designation"`
	StorageCapacity        *uint32 `json:"storage_capacity"`
	HasComponentSeparation *bool   `json:"has_component_separation"`
	DocumentName           *string `json:"document_name"`
	DocumentURL            *string `json:"document_url"`
}

// Register files a hospital profile for admin review and links it to the
// caller's account. One profile per account.
func (h *HospitalProfileHandler) Register(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	if cl.HospitalID != 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "account already has a hospital profile"})
	}

	var req registerHospitalReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	if req.Name == "" || req.LicenseNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and license_number required"})
	}
	if req.Type != model.HospitalTypeHospital && req.Type != model.HospitalTypeBloodBank {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be Hospital or Blood Bank"})
	}
	if req.DocumentName == "" || req.DocumentURL == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a license document is required"})
	}
	if req.Country == "" {
		req.Country = "India"
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	id, err := h.Hospitals.Create(ctx, repository.NewHospitalParams{
		Name:                   req.Name,
		Type:                   req.Type,
		LicenseNumber:          req.LicenseNumber,
		Street:                 req.Street,
		City:                   req.City,
		State:                  req.State,
		Pincode:                req.Pincode,
		Country:                req.Country,
		ContactName:            req.ContactName,
		ContactDesignation:     req.ContactDesignation,
		Phone:                  req.Phone,
		StorageCapacity:        req.StorageCapacity,
		HasComponentSeparation: req.HasComponentSeparation,
		DocumentName:           req.DocumentName,
		DocumentURL:            req.DocumentURL,
	})
	if err != nil {
		return writeRepoError(c, err, "hospital registration failed")
	}
	if err := h.Users.LinkHospital(ctx, cl.UserID, id); err != nil {
		return writeRepoError(c, err, "link failed")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"hospital_id": id,
		"status":      model.VerificationPending,
		"message":     "hospital registered, pending admin verification. Log in again to refresh your token.",
	})
}

// GetMine returns the caller's hospital profile.
func (h *HospitalProfileHandler) GetMine(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	if cl.HospitalID == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no hospital profile on file"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hosp, err := h.Hospitals.GetByID(ctx, cl.HospitalID)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	return c.JSON(http.StatusOK, hospitalView(hosp, true))
}

// Update edits the caller's profile. Approved profiles are frozen.
func (h *HospitalProfileHandler) Update(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	if cl.HospitalID == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no hospital profile on file"})
	}

	var req updateHospitalReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	err = h.Hospitals.UpdateByOwner(ctx, cl.HospitalID, repository.UpdatableFields{
		Name:                   req.Name,
		Street:                 req.Street,
		City:                   req.City,
		State:                  req.State,
		Pincode:                req.Pincode,
		Phone:                  req.Phone,
		ContactName:            req.ContactName,
		ContactDesignation:     req.ContactDesignation,
		StorageCapacity:        req.StorageCapacity,
		HasComponentSeparation: req.HasComponentSeparation,
		DocumentName:           req.DocumentName,
		DocumentURL:            req.DocumentURL,
	})
	if err != nil {
		return writeRepoError(c, err, "update failed")
	}

	hosp, err := h.Hospitals.GetByID(ctx, cl.HospitalID)
	if err != nil {
		return writeRepoError(c, err, "query failed")
	}
	return c.JSON(http.StatusOK, hospitalView(hosp, true))
}

// Resubmit puts a Rejected profile back in the review queue.
func (h *HospitalProfileHandler) Resubmit(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	if cl.HospitalID == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no hospital profile on file"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Hospitals.Resubmit(ctx, cl.HospitalID); err != nil {
		return writeRepoError(c, err, "resubmit failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.VerificationPending, "message": "resubmitted for review"})
}

// ListApproved is the public directory of verified hospitals. Sits behind the
// response cache.
func (h *HospitalProfileHandler) ListApproved(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	hs, err := h.Hospitals.ListApproved(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(hs))
	for _, hosp := range hs {
		out = append(out, hospitalView(hosp, false))
	}
	return c.JSON(http.StatusOK, echo.Map{"hospitals": out, "count": len(out)})
}

// hospitalView shapes a hospital for JSON. The owner view includes review
// state the public directory omits.
func hospitalView(h model.Hospital, owner bool) echo.Map {
	v := echo.Map{
		"id":                       h.ID,
		"name":                     h.Name,
		"type":                     h.Type,
		"city":                     h.City,
		"state":                    h.State,
		"country":                  h.Country,
		"phone":                    h.Phone,
		"has_component_separation": h.HasComponentSeparation,
	}
	if owner {
		v["license_number"] = h.LicenseNumber
		v["street"] = h.Street
		v["pincode"] = h.Pincode
		v["contact_name"] = h.ContactName
		v["contact_designation"] = h.ContactDesignation
		v["storage_capacity"] = h.StorageCapacity
		v["verification_status"] = h.VerificationStatus
		v["rejection_reason"] = h.RejectionReason
		v["is_active"] = h.IsActive
		v["document_name"] = h.DocumentName
		v["document_url"] = h.DocumentURL
		v["created_at"] = h.CreatedAt
	}
	return v
}
