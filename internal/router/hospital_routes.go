package router

import (
	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/handler"
	"github.com/lifeflow/blood-donation-service/internal/middleware"
	"github.com/lifeflow/blood-donation-service/internal/model"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// RegisterHospitalProfile registers profile self-service for hospital-role
// accounts. Registration and resubmission only need the role; they must work
// before the hospital is verified.
func RegisterHospitalProfile(e *echo.Echo, h *handler.HospitalProfileHandler, jwtSecret string) {
	g := e.Group(
		"/v1/hospital",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleHospital),
	)
	g.POST("/register", h.Register)
	g.GET("/profile", h.GetMine)
	g.PATCH("/profile", h.Update)
	g.POST("/resubmit", h.Resubmit)
}

// RegisterHospitalOps registers the staff-side operational endpoints:
// donation processing, the stock ledger, inbound patient requests and
// transfers. Everything here requires an Approved hospital.
func RegisterHospitalOps(e *echo.Echo, d *handler.HospitalDonationHandler, s *handler.StockHandler, r *handler.RequestHandler, t *handler.TransferHandler, hospitals *repository.HospitalRepo, jwtSecret string) {
	g := e.Group(
		"/v1/hospital",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleHospital),
		middleware.RequireVerifiedHospital(hospitals),
	)

	g.GET("/donations", d.List)
	g.GET("/donations/:id", d.Get)
	g.POST("/donations/:id/screening", d.RecordScreening)
	g.POST("/donations/:id/complete", d.Complete)
	g.POST("/donations/:id/lab-tests", d.FinalizeLabTests)

	g.GET("/stock", s.List)
	g.GET("/stock/:id", s.Get)
	g.POST("/stock/expire-sweep", s.ExpireSweep)
	g.POST("/stock/:id/separate", s.Separate)

	g.GET("/requests", r.ListForHospital)
	g.POST("/requests/:id/approve", r.Approve)
	g.POST("/requests/:id/reject", r.Reject)
	g.POST("/requests/:id/fulfill", r.Fulfill)
	g.POST("/requests/:id/issue", r.Issue)

	g.POST("/transfers", t.Create)
	g.GET("/transfers", t.List)
	g.GET("/transfers/:id", t.Get)
	g.POST("/transfers/:id/approve", t.Approve)
	g.POST("/transfers/:id/dispatch", t.Dispatch)
	g.POST("/transfers/:id/transit", t.MarkInTransit)
	g.POST("/transfers/:id/deliver", t.Deliver)
	g.POST("/transfers/:id/complete", t.Complete)
	g.POST("/transfers/:id/cancel", t.Cancel)
	g.POST("/transfers/:id/report-issue", t.ReportIssue)
}
