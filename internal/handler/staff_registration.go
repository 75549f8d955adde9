package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/config"
	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/queue"
	"github.com/iliyamo/dorm-residency/internal/repository"
	"github.com/iliyamo/dorm-residency/internal/service"
)

// StaffHandler serves the review and assignment endpoints used by
// MANAGER and ADMIN accounts.
type StaffHandler struct {
	Cfg           config.Config
	Registrations *repository.RegistrationRepo
	Students      *repository.StudentRepo
	Rooms         *repository.RoomRepo
	Invoices      *repository.InvoiceRepo
}

func NewStaffHandler(cfg config.Config, reg *repository.RegistrationRepo, s *repository.StudentRepo, rooms *repository.RoomRepo, inv *repository.InvoiceRepo) *StaffHandler {
	return &StaffHandler{Cfg: cfg, Registrations: reg, Students: s, Rooms: rooms, Invoices: inv}
}

type transitionReq struct {
	Action string `json:"action"` // APPROVE | REJECT | RETURN
	Note   string `json:"note"`
}

// List returns the registrations of the active semester filtered by
// status (default PENDING, the review queue).
func (h *StaffHandler) List(c echo.Context) error {
	status := model.Status(strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))))
	if status == "" {
		status = model.StatusPending
	}
	semester := strings.TrimSpace(c.QueryParam("semester"))
	if semester == "" {
		semester = h.Cfg.Semester
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	regs, err := h.Registrations.ListByStatus(ctx, semester, status)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]registrationView, 0, len(regs))
	for _, r := range regs {
		out = append(out, toRegistrationView(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"registrations": out})
}

// Transition applies a staff review action to one registration.  On
// APPROVE the assignment engine runs inline for that candidate: when a
// room is found the registration lands in AWAITING_PAYMENT with the
// room and a fee invoice attached; when no room fits the registration
// stays PENDING and the failure reason is written to admin_note.
func (h *StaffHandler) Transition(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid registration id"})
	}
	var req transitionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	action := model.Action(strings.ToUpper(strings.TrimSpace(req.Action)))
	if !action.StaffAction() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "action must be APPROVE, REJECT or RETURN"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	reg, err := h.Registrations.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err)
	}
	next, err := model.NextStatus(reg.Status, action)
	if err != nil {
		return writeRepoError(c, err)
	}

	if action == model.ActionApprove {
		return h.approve(ctx, c, reg)
	}

	if err := h.Registrations.Transition(ctx, reg.ID, reg.Status, next, req.Note); err != nil {
		return writeRepoError(c, err)
	}
	h.publishDecided(ctx, reg, string(action), string(next), req.Note)
	reg.Status = next
	reg.AdminNote = req.Note
	return c.JSON(http.StatusOK, toRegistrationView(*reg))
}

// approve runs the inline allocation for a single approved candidate.
func (h *StaffHandler) approve(ctx context.Context, c echo.Context, reg *model.Registration) error {
	student, err := h.Students.GetByID(ctx, reg.StudentID)
	if err != nil {
		return writeRepoError(c, err)
	}
	cand := candidateFromRow(repository.CandidateRow{Registration: *reg, Gender: student.Gender})

	out, inv, err := h.allocateOne(ctx, cand)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "allocation failed"})
	}
	if !out.Assigned {
		if out.Reason == reasonNotPending {
			return writeRepoError(c, repository.ErrStaleStatus)
		}
		if err := h.Registrations.SetAdminNote(ctx, reg.ID, out.Reason); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "record failure reason failed"})
		}
		h.publishDecided(ctx, reg, string(model.ActionApprove), string(model.StatusPending), out.Reason)
		return c.JSON(http.StatusOK, echo.Map{
			"assigned": false,
			"status":   model.StatusPending,
			"reason":   out.Reason,
		})
	}

	room, err := h.Rooms.GetByID(ctx, out.RoomID)
	if err == nil {
		publishAssigned(ctx, cand, out, inv, room.BuildingID)
	}
	h.publishDecided(ctx, reg, string(model.ActionApprove), string(model.StatusAwaitingPayment), "room assigned")
	return c.JSON(http.StatusOK, echo.Map{
		"assigned":   true,
		"status":     model.StatusAwaitingPayment,
		"room_id":    out.RoomID,
		"invoice_id": inv.ID,
		"amount_vnd": inv.Amount,
	})
}

// CancelAward revokes an AWAITING_PAYMENT award: the registration is
// cancelled, the room slot released and the unpaid fee invoice removed,
// atomically.
func (h *StaffHandler) CancelAward(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid registration id"})
	}
	var req transitionReq
	_ = c.Bind(&req) // note is optional

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	reg, err := h.Registrations.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err)
	}
	if reg.Status != model.StatusAwaitingPayment || reg.AssignedRoomID == nil {
		return writeRepoError(c, model.ErrInvalidTransition)
	}
	roomID := *reg.AssignedRoomID

	tx, err := h.Registrations.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	note := req.Note
	if note == "" {
		note = "award cancelled by staff"
	}
	if err := h.Registrations.RevokeAwardTx(ctx, tx, reg.ID, note); err != nil {
		return writeRepoError(c, err)
	}
	if err := h.Rooms.DecrementOccupantsTx(ctx, tx, roomID); err != nil {
		return writeRepoError(c, err)
	}
	if err := h.Invoices.DeleteUnpaidByRegistrationTx(ctx, tx, reg.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "void invoice failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	h.publishDecided(ctx, reg, string(model.ActionCancel), string(model.StatusCancelled), note)
	reg.Status = model.StatusCancelled
	reg.AdminNote = note
	reg.AssignedRoomID = nil
	return c.JSON(http.StatusOK, toRegistrationView(*reg))
}

// publishDecided emits the decision notification, fire-and-forget.
func (h *StaffHandler) publishDecided(ctx context.Context, reg *model.Registration, action, newStatus, note string) {
	ev := queue.RegistrationDecidedEvent{
		RegistrationID: reg.ID,
		StudentID:      reg.StudentID,
		Semester:       reg.Semester,
		Action:         action,
		NewStatus:      newStatus,
		Note:           note,
		DecidedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := service.PublishRegistrationDecided(ctx, ev); err != nil {
		log.Printf("queue: publish registration decided: %v", err)
	}
}
