package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/config"
	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/repository"
)

// StudentHandler serves the student-facing registration endpoints.
type StudentHandler struct {
	Cfg           config.Config
	Students      *repository.StudentRepo
	Buildings     *repository.BuildingRepo
	Registrations *repository.RegistrationRepo
}

func NewStudentHandler(cfg config.Config, s *repository.StudentRepo, b *repository.BuildingRepo, r *repository.RegistrationRepo) *StudentHandler {
	return &StudentHandler{Cfg: cfg, Students: s, Buildings: b, Registrations: r}
}

type registrationIntentReq struct {
	Type                string  `json:"registration_type"` // NORMAL | PRIORITY | RENEWAL
	DesiredBuildingID   *uint64 `json:"desired_building_id"`
	PriorityCategory    string  `json:"priority_category"`
	PriorityDescription string  `json:"priority_description"`
	EvidenceFile        *string `json:"evidence_file"`
}

type registrationView struct {
	ID                  uint64  `json:"id"`
	Semester            string  `json:"semester"`
	Type                string  `json:"registration_type"`
	Status              string  `json:"status"`
	DesiredBuildingID   *uint64 `json:"desired_building_id,omitempty"`
	PriorityCategory    string  `json:"priority_category"`
	PriorityDescription string  `json:"priority_description,omitempty"`
	EvidenceFile        *string `json:"evidence_file,omitempty"`
	AdminNote           string  `json:"admin_note,omitempty"`
	AssignedRoomID      *uint64 `json:"assigned_room_id,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

func toRegistrationView(r model.Registration) registrationView {
	return registrationView{
		ID:                  r.ID,
		Semester:            r.Semester,
		Type:                string(r.Type),
		Status:              string(r.Status),
		DesiredBuildingID:   r.DesiredBuildingID,
		PriorityCategory:    string(r.PriorityCategory),
		PriorityDescription: r.PriorityDescription,
		EvidenceFile:        r.EvidenceFile,
		AdminNote:           r.AdminNote,
		AssignedRoomID:      r.AssignedRoomID,
		CreatedAt:           r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:           r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// intentFromReq normalizes a request body into registration intent
// fields and validates the type/category coupling.
func (h *StudentHandler) intentFromReq(ctx context.Context, req registrationIntentReq, reg *model.Registration) error {
	reg.Type = model.RegistrationType(strings.ToUpper(strings.TrimSpace(req.Type)))
	reg.DesiredBuildingID = req.DesiredBuildingID
	reg.PriorityCategory = model.PriorityCategory(strings.ToUpper(strings.TrimSpace(req.PriorityCategory)))
	if reg.PriorityCategory == "" {
		reg.PriorityCategory = model.CategoryNone
	}
	reg.PriorityDescription = strings.TrimSpace(req.PriorityDescription)
	reg.EvidenceFile = req.EvidenceFile
	if err := reg.ValidateIntent(); err != nil {
		return err
	}
	if reg.DesiredBuildingID != nil {
		if _, err := h.Buildings.GetByID(ctx, *reg.DesiredBuildingID); err != nil {
			return errors.New("desired building does not exist")
		}
	}
	return nil
}

// Create files a new registration for the active semester.  One open
// registration per student per semester.
func (h *StudentHandler) Create(c echo.Context) error {
	var req registrationIntentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}

	// Reject a second open application for the same semester.
	existing, err := h.Registrations.ListByStudent(ctx, student.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	for _, r := range existing {
		if r.Semester == h.Cfg.Semester && !r.Status.Terminal() {
			return c.JSON(http.StatusConflict, echo.Map{"error": "an open registration already exists for this semester"})
		}
	}

	reg := &model.Registration{
		StudentID: student.ID,
		Semester:  h.Cfg.Semester,
		Status:    model.StatusPending,
	}
	if err := h.intentFromReq(ctx, req, reg); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Registrations.Create(ctx, reg); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create registration failed"})
	}
	return c.JSON(http.StatusCreated, toRegistrationView(*reg))
}

// ListMine returns every registration of the current student, newest
// first.
func (h *StudentHandler) ListMine(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}
	regs, err := h.Registrations.ListByStudent(ctx, student.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]registrationView, 0, len(regs))
	for _, r := range regs {
		out = append(out, toRegistrationView(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"registrations": out})
}

// Cancel withdraws a PENDING registration.  Awards in AWAITING_PAYMENT
// are only cancellable by staff because a room slot has to be released.
func (h *StudentHandler) Cancel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid registration id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}
	reg, err := h.Registrations.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err)
	}
	if reg.StudentID != student.ID {
		return writeRepoError(c, repository.ErrForbidden)
	}
	if reg.Status != model.StatusPending {
		return writeRepoError(c, model.ErrInvalidTransition)
	}
	next, err := model.NextStatus(reg.Status, model.ActionCancel)
	if err != nil {
		return writeRepoError(c, err)
	}
	if err := h.Registrations.Transition(ctx, reg.ID, reg.Status, next, "cancelled by student"); err != nil {
		return writeRepoError(c, err)
	}
	reg.Status = next
	return c.JSON(http.StatusOK, toRegistrationView(*reg))
}

// Resubmit applies a corrected application to a RETURN registration and
// moves it back to PENDING.
func (h *StudentHandler) Resubmit(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid registration id"})
	}
	var req registrationIntentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	student, err := currentStudent(ctx, h.Students, c)
	if err != nil {
		return writeRepoError(c, err)
	}
	reg, err := h.Registrations.GetByID(ctx, id)
	if err != nil {
		return writeRepoError(c, err)
	}
	if reg.StudentID != student.ID {
		return writeRepoError(c, repository.ErrForbidden)
	}
	if _, err := model.NextStatus(reg.Status, model.ActionResubmit); err != nil {
		return writeRepoError(c, err)
	}
	if err := h.intentFromReq(ctx, req, reg); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Registrations.Resubmit(ctx, reg); err != nil {
		return writeRepoError(c, err)
	}
	reg.Status = model.StatusPending
	reg.AdminNote = ""
	return c.JSON(http.StatusOK, toRegistrationView(*reg))
}
