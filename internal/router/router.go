// Package router wires HTTP routes to handlers and middleware. Routes are
// grouped by audience: public, donor, patient, hospital staff and admin.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/lifeflow/blood-donation-service/internal/config"
	"github.com/lifeflow/blood-donation-service/internal/handler"
	"github.com/lifeflow/blood-donation-service/internal/middleware"
)

// RegisterRoutes registers unauthenticated routes: the health check and the
// public hospital directory. The directory sits behind the Redis response
// cache since it changes rarely and is read often.
func RegisterRoutes(e *echo.Echo, hp *handler.HospitalProfileHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	cached := middleware.NewRedisCache(cacheCfg, rdb)
	e.GET("/v1/hospitals", hp.ListApproved, cached)
}

// RegisterAuth registers session endpoints. Registration, verification and
// login are open; me, logout-all and change-password require a token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/verify-otp", a.VerifyOTP)
	g.POST("/resend-otp", a.ResendOTP)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout with a refresh token in the body needs no access token.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.POST("/logout", a.Logout)
	auth.POST("/change-password", a.ChangePassword)
}
