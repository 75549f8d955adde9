package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/handler"
	"github.com/iliyamo/dorm-residency/internal/middleware"
	"github.com/iliyamo/dorm-residency/internal/model"
)

// RegisterStudent registers the student-scoped endpoints under /v1.
// All routes require a valid JWT with the STUDENT role.  Students file
// and manage their own registrations and pay their invoices through QR
// payment sessions.
func RegisterStudent(e *echo.Echo, s *handler.StudentHandler, p *handler.PaymentHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStudent),
	)
	g.POST("/registrations", s.Create)
	g.GET("/my-registrations", s.ListMine)
	g.POST("/registrations/:id/cancel", s.Cancel)
	g.POST("/registrations/:id/resubmit", s.Resubmit)

	g.GET("/my-invoices", p.MyInvoices)
	g.POST("/payments/qrcode/:invoiceID", p.QRInvoice)
	g.POST("/payments/qrcode/all", p.QRAll)
	g.GET("/payments/verify/:ref", p.Verify)
	g.POST("/payments/confirm", p.Confirm)
}
