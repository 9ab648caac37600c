package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// UseWebHosting installs the cross-cutting middleware: permissive CORS and
// HTTP metrics registered with reg.
func UseWebHosting(e *echo.Echo, reg prometheus.Registerer) {
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.PATCH, echo.POST, echo.DELETE},
		AllowHeaders: []string{"*"},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
}

// MapWebHosting serves the metrics scraped from gatherer and the health
// report of health.
func MapWebHosting(e *echo.Echo, gatherer prometheus.Gatherer, health *HealthChecks) {
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/health", echo.WrapHandler(health.Handler()))
}
