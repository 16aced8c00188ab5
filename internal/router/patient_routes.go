package router

import (
	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/handler"
	"github.com/lifeflow/blood-donation-service/internal/middleware"
	"github.com/lifeflow/blood-donation-service/internal/model"
)

// RegisterPatient registers patient-scoped endpoints under /v1/requests.
func RegisterPatient(e *echo.Echo, h *handler.RequestHandler, jwtSecret string) {
	g := e.Group(
		"/v1/requests",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePatient),
	)
	g.POST("", h.Create)
	g.GET("/my", h.ListMine)
	g.POST("/:id/cancel", h.Cancel)
}
