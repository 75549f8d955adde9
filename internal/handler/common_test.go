package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dorm-residency/internal/allocation"
	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/repository"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestGetUserIDAcceptsJWTNumericTypes(t *testing.T) {
	// The JWT middleware stores the sub claim as float64; other code
	// paths may store native integers.
	for _, v := range []interface{}{uint64(42), int(42), int64(42), float64(42), "42"} {
		c, _ := newTestContext(t)
		c.Set("user_id", v)
		got, err := getUserID(c)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), got)
	}
}

func TestGetUserIDRejectsMissingOrGarbage(t *testing.T) {
	c, _ := newTestContext(t)
	_, err := getUserID(c)
	assert.Error(t, err)

	c, _ = newTestContext(t)
	c.Set("user_id", "not-a-number")
	_, err = getUserID(c)
	assert.Error(t, err)
}

func TestWriteRepoErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrInvalidTransition, http.StatusConflict},
		{repository.ErrStaleStatus, http.StatusConflict},
		{repository.ErrSessionAlreadyConfirmed, http.StatusConflict},
		{repository.ErrConflict, http.StatusConflict},
		{repository.ErrRegistrationNotFound, http.StatusNotFound},
		{repository.ErrInvoiceNotFound, http.StatusNotFound},
		{repository.ErrSessionNotFound, http.StatusNotFound},
		{repository.ErrStudentNotFound, http.StatusNotFound},
		{repository.ErrSessionExpired, http.StatusGone},
		{repository.ErrForbidden, http.StatusForbidden},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, rec := newTestContext(t)
		require.NoError(t, writeRepoError(c, tc.err))
		assert.Equal(t, tc.want, rec.Code, "error %v", tc.err)
	}
}

func TestSnapshotFromRoomsMirrorsInventory(t *testing.T) {
	rooms := []model.Room{
		{ID: 1, BuildingID: 10, Capacity: 4, CurrentOccupants: 3, GenderPolicy: model.GenderMale, MonthlyFee: 400000},
		{ID: 2, BuildingID: 10, Capacity: 2, CurrentOccupants: 0, GenderPolicy: model.GenderMixed, MonthlyFee: 550000},
	}
	snap := snapshotFromRooms(rooms)
	require.Len(t, snap.Rooms, 2)
	assert.Equal(t, uint64(1), snap.Rooms[0].ID)
	assert.Equal(t, uint32(1), snap.Rooms[0].FreeSlots())
	assert.Equal(t, model.GenderMixed, snap.Rooms[1].GenderPolicy)
	assert.Equal(t, int64(550000), snap.Rooms[1].MonthlyFee)
}

func TestCandidateFromRowCarriesPriorityIntent(t *testing.T) {
	created := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	building := uint64(7)
	row := repository.CandidateRow{
		Registration: model.Registration{
			ID:                11,
			StudentID:         5,
			Type:              model.TypePriority,
			PriorityCategory:  model.CategoryDisability,
			DesiredBuildingID: &building,
			CreatedAt:         created,
		},
		Gender: model.GenderFemale,
	}
	cand := candidateFromRow(row)
	assert.Equal(t, uint64(11), cand.RegistrationID)
	assert.Equal(t, model.GenderFemale, cand.Gender)
	require.NotNil(t, cand.DesiredBuildingID)
	assert.Equal(t, building, *cand.DesiredBuildingID)
	assert.Equal(t, 30, allocation.Weight(cand.Type, cand.PriorityCategory))
	assert.True(t, cand.CreatedAt.Equal(created))
}
