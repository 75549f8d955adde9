package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/repository"
)

// PublicHandler serves the unauthenticated browse endpoints.  These sit
// behind the response cache, so payloads carry no per-user data.
type PublicHandler struct {
	Buildings *repository.BuildingRepo
	Rooms     *repository.RoomRepo
}

func NewPublicHandler(b *repository.BuildingRepo, r *repository.RoomRepo) *PublicHandler {
	return &PublicHandler{Buildings: b, Rooms: r}
}

type buildingView struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	GenderPolicy string `json:"gender_policy"`
}

type roomView struct {
	ID           uint64 `json:"id"`
	BuildingID   uint64 `json:"building_id"`
	Name         string `json:"name"`
	Capacity     uint32 `json:"capacity"`
	FreeSlots    uint32 `json:"free_slots"`
	GenderPolicy string `json:"gender_policy"`
	Status       string `json:"status"`
	MonthlyFee   int64  `json:"monthly_fee_vnd"`
}

func toRoomView(r model.Room) roomView {
	return roomView{
		ID:           r.ID,
		BuildingID:   r.BuildingID,
		Name:         r.Name,
		Capacity:     r.Capacity,
		FreeSlots:    r.FreeSlots(),
		GenderPolicy: string(r.GenderPolicy),
		Status:       string(r.Status),
		MonthlyFee:   r.MonthlyFee,
	}
}

// ListBuildings returns every building.
func (h *PublicHandler) ListBuildings(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	buildings, err := h.Buildings.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]buildingView, 0, len(buildings))
	for _, b := range buildings {
		out = append(out, buildingView{ID: b.ID, Name: b.Name, GenderPolicy: string(b.GenderPolicy)})
	}
	return c.JSON(http.StatusOK, echo.Map{"buildings": out})
}

// ListRoomsByBuilding returns the rooms of one building with their
// remaining capacity.
func (h *PublicHandler) ListRoomsByBuilding(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid building id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if _, err := h.Buildings.GetByID(ctx, id); err != nil {
		return writeRepoError(c, err)
	}
	rooms, err := h.Rooms.ListByBuilding(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, toRoomView(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"rooms": out})
}
