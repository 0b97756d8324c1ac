// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Facats/slotwatcherss/internal/config"
	"github.com/Facats/slotwatcherss/internal/handler"
	"github.com/Facats/slotwatcherss/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication:
// the health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// API bundles what RegisterAPI needs.  Redis may be nil, in which case
// rate limiting and the stats cache are disabled.
type API struct {
	Slots      *handler.SlotHandler
	Broadcasts *handler.BroadcastHandler
	Stats      *handler.StatsHandler
	JWTSecret  string
	Redis      *redis.Client
	RateLimit  config.RateLimitConfig
	StatsCache config.CacheConfig
}

// RegisterAPI registers the authenticated /v1 surface.  Slot commands
// are ADMIN only; the broadcast hook, slot queries and stats are also
// open to the BOT integration.
func RegisterAPI(e *echo.Echo, a API) {
	v1 := e.Group("/v1",
		middleware.JWTAuth(a.JWTSecret),
		middleware.RateLimit(a.RateLimit, a.Redis),
	)

	admin := middleware.RequireRole(middleware.RoleAdmin)
	either := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleBot)

	v1.POST("/slots", a.Slots.Grant, admin)
	v1.GET("/slots", a.Slots.List, admin)
	v1.GET("/slots/:holder_id", a.Slots.Query, either)
	v1.DELETE("/slots/:holder_id", a.Slots.Remove, admin)

	v1.DELETE("/admin/slots/:slot_id", a.Slots.Delete, admin)
	v1.POST("/admin/sweep", a.Slots.Sweep, admin)

	v1.POST("/broadcasts", a.Broadcasts.Attempt, either)
	v1.GET("/stats", a.Stats.Get, either, middleware.ResponseCache(a.StatsCache, a.Redis))
}
