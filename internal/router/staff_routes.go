package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/handler"
	"github.com/iliyamo/dorm-residency/internal/middleware"
	"github.com/iliyamo/dorm-residency/internal/model"
)

// RegisterStaff registers the review and assignment endpoints under
// /v1/staff.  MANAGER and ADMIN accounts share the same surface.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleManager, model.RoleAdmin),
	)
	g.GET("/registrations", h.List)
	g.POST("/registrations/:id/transition", h.Transition)
	g.POST("/registrations/assign-batch", h.AssignBatch)
	g.POST("/registrations/:id/cancel-award", h.CancelAward)
}
