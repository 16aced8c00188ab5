package router

import (
	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/handler"
	"github.com/lifeflow/blood-donation-service/internal/middleware"
	"github.com/lifeflow/blood-donation-service/internal/model"
)

// RegisterAdmin registers the hospital verification review queue.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHospitalHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin/hospitals",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/donations", h.ListDonations)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}
