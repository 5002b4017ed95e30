package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/locator-validation/internal/handler"
	"github.com/iliyamo/locator-validation/internal/middleware"
)

// Roles allowed on the protected groups.
const (
	RoleDriver = "DRIVER"
	RoleAdmin  = "ADMIN"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterValidation registers the validation endpoints under /v1.  Every
// route requires a valid access token with the DRIVER or ADMIN role; the
// rate limiter runs after authentication so buckets are keyed per actor.
func RegisterValidation(e *echo.Echo, v *handler.ValidationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/validations")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(RoleDriver, RoleAdmin))

	g.POST("/locator", v.ValidateLocator, limiter)
	g.GET("", v.ListValidations)
}

// RegisterAdmin registers operator endpoints under /v1/admin.  ADMIN only.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(RoleAdmin))

	g.POST("/tickets", a.ImportTickets)
	g.DELETE("/consumptions", a.ResetLedger)
}
