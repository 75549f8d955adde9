// Package handler contains the HTTP handlers.  Handlers orchestrate
// repositories and services; business rules live below them.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/repository"
)

// dbTimeout bounds every database round-trip made from a handler.
const dbTimeout = 5 * time.Second

// getUserID extracts the authenticated user's id placed in the echo
// context by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses the named path parameter as an unsigned id.
func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// currentStudent resolves the student profile behind the authenticated
// user.  Staff accounts have no profile and get ErrStudentNotFound.
func currentStudent(ctx context.Context, students *repository.StudentRepo, c echo.Context) (*model.Student, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, err
	}
	return students.GetByUserID(ctx, uid)
}

// writeRepoError maps the repository and domain sentinel errors onto
// HTTP statuses.  Anything unrecognized becomes a 500.
func writeRepoError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, repository.ErrStaleStatus),
		errors.Is(err, repository.ErrSessionAlreadyConfirmed),
		errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrRegistrationNotFound),
		errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrBuildingNotFound),
		errors.Is(err, repository.ErrStudentNotFound),
		errors.Is(err, repository.ErrInvoiceNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrSessionExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
