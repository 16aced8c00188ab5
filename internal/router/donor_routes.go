package router

import (
	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/handler"
	"github.com/lifeflow/blood-donation-service/internal/middleware"
	"github.com/lifeflow/blood-donation-service/internal/model"
)

// RegisterDonor registers donor-scoped endpoints under /v1/donations. All
// routes require a valid JWT and the donor role.
func RegisterDonor(e *echo.Echo, h *handler.DonorDonationHandler, jwtSecret string) {
	g := e.Group(
		"/v1/donations",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleDonor),
	)
	g.POST("", h.Schedule)
	g.GET("/my", h.ListMine)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/reschedule", h.Reschedule)
}
