package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// RequireVerifiedHospital gates hospital-staff routes behind an Approved
// hospital profile. The caller must be linked to a hospital and that hospital
// must have passed admin review. Runs after JWTAuth and RequireRole.
func RequireVerifiedHospital(hospitals *repository.HospitalRepo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, ok := CallerFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if caller.HospitalID == 0 {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "no hospital profile on file"})
			}
			h, err := hospitals.GetByID(c.Request().Context(), caller.HospitalID)
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "hospital profile not found"})
			}
			if h.VerificationStatus != model.VerificationApproved {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "hospital pending verification"})
			}
			return next(c)
		}
	}
}
