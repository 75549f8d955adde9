package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/payment"
	"github.com/iliyamo/dorm-residency/internal/queue"
	"github.com/iliyamo/dorm-residency/internal/repository"
	"github.com/iliyamo/dorm-residency/internal/service"
)

// PaymentHandler exposes the payment session endpoints: issuing QR
// sessions, verifying a reference and confirming payment.
type PaymentHandler struct {
	Manager  *payment.Manager
	Students *repository.StudentRepo
	Invoices *repository.InvoiceRepo
}

func NewPaymentHandler(m *payment.Manager, s *repository.StudentRepo, inv *repository.InvoiceRepo) *PaymentHandler {
	return &PaymentHandler{Manager: m, Students: s, Invoices: inv}
}

type sessionView struct {
	Reference   string   `json:"reference"`
	Status      string   `json:"status"`
	AmountVND   int64    `json:"amount_vnd"`
	InvoiceIDs  []uint64 `json:"invoice_ids"`
	ExpiresAt   string   `json:"expires_at"`
	QRPayload   string   `json:"qr_payload,omitempty"`
	ConfirmedAt string   `json:"confirmed_at,omitempty"`
}

func toSessionView(s *model.PaymentSession, withQR bool) sessionView {
	v := sessionView{
		Reference:  s.Reference,
		Status:     string(s.Status),
		AmountVND:  s.Amount,
		InvoiceIDs: s.InvoiceIDs,
		ExpiresAt:  s.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if withQR && s.Status == model.SessionActive {
		v.QRPayload = s.QRPayload()
	}
	if s.ConfirmedAt != nil {
		v.ConfirmedAt = s.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return v
}

// QRInvoice issues a payment session for one invoice and returns its
// QR payload.
func (h *PaymentHandler) QRInvoice(c echo.Context) error {
	invoiceID, err := pathID(c, "invoiceID")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice id"})
	}
	return h.issue(c, &invoiceID)
}

// QRAll issues one payment session covering every unpaid invoice of the
// current student.
func (h *PaymentHandler) QRAll(c echo.Context) error {
	return h.issue(c, nil)
}

func (h *PaymentHandler) issue(c echo.Context, invoiceID *uint64) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}
	session, err := h.Manager.Issue(ctx, payment.Subject{StudentID: student.ID, InvoiceID: invoiceID})
	if err != nil {
		if errors.Is(err, payment.ErrNothingToPay) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return writeRepoError(c, err)
	}
	return c.JSON(http.StatusCreated, toSessionView(session, true))
}

// Verify resolves a session reference.  An ACTIVE session past its TTL
// is expired here and now and reported as 410.
func (h *PaymentHandler) Verify(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("ref"))
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reference required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}
	session, err := h.Manager.Verify(ctx, ref)
	if err != nil {
		return writeRepoError(c, err)
	}
	if session.StudentID != student.ID {
		return writeRepoError(c, repository.ErrForbidden)
	}
	return c.JSON(http.StatusOK, toSessionView(session, true))
}

type confirmReq struct {
	Reference string `json:"reference"`
}

// Confirm settles a session exactly once: invoices go PAID and, when
// nothing is left unpaid, the student's AWAITING_PAYMENT registration
// completes.  A duplicate confirm gets 409, a late one 410.
func (h *PaymentHandler) Confirm(c echo.Context) error {
	var req confirmReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Reference) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reference required"})
	}
	ref := strings.TrimSpace(req.Reference)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}
	session, err := h.Manager.Verify(ctx, ref)
	if err != nil {
		return writeRepoError(c, err)
	}
	if session.StudentID != student.ID {
		return writeRepoError(c, repository.ErrForbidden)
	}

	conf, err := h.Manager.Confirm(ctx, ref)
	if err != nil {
		return writeRepoError(c, err)
	}

	ev := queue.PaymentConfirmedEvent{
		Reference:     conf.Session.Reference,
		StudentID:     conf.Session.StudentID,
		AmountVND:     conf.Session.Amount,
		InvoiceIDs:    conf.PaidInvoiceIDs,
		CompletedRegs: conf.CompletedRegs,
		ConfirmedAt:   conf.Session.ConfirmedAt.UTC().Format(time.RFC3339),
	}
	if err := service.PublishPaymentConfirmed(ctx, ev); err != nil {
		log.Printf("queue: publish payment confirmed: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"session":                 toSessionView(conf.Session, false),
		"paid_invoice_ids":        conf.PaidInvoiceIDs,
		"completed_registrations": conf.CompletedRegs,
	})
}

// MyInvoices lists the current student's invoices so the client can
// pick what to pay.
func (h *PaymentHandler) MyInvoices(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}
	invoices, err := h.Invoices.ListByStudent(ctx, student.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(invoices))
	for _, inv := range invoices {
		row := echo.Map{
			"id":         inv.ID,
			"kind":       inv.Kind,
			"amount_vnd": inv.Amount,
			"status":     inv.Status,
			"due_date":   inv.DueDate.UTC().Format("2006-01-02"),
		}
		if inv.RegistrationID != nil {
			row["registration_id"] = *inv.RegistrationID
		}
		out = append(out, row)
	}
	return c.JSON(http.StatusOK, echo.Map{"invoices": out})
}
