// Package router registers the HTTP routes and binds middleware to
// route groups.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/dorm-residency/internal/config"
	"github.com/iliyamo/dorm-residency/internal/handler"
	"github.com/iliyamo/dorm-residency/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the unauthenticated browse endpoints.  They
// sit behind the Redis response cache when one is configured: the room
// listing is the hottest read in the system during registration week.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, rdb *redis.Client) {
	g := e.Group("/v1")
	if rdb != nil {
		g.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	}
	g.GET("/buildings", p.ListBuildings)
	g.GET("/buildings/:id/rooms", p.ListRoomsByBuilding)
}

// RegisterAuth registers the auth endpoints.  Register, login, refresh
// and logout need no session; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}
