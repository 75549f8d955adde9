package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dorm-residency/internal/model"
)

func room(id, building uint64, capacity, occupants uint32, gp model.GenderPolicy) *RoomState {
	return &RoomState{ID: id, BuildingID: building, Capacity: capacity, Occupants: occupants, GenderPolicy: gp, MonthlyFee: 500000}
}

func candidate(regID uint64, gender model.GenderPolicy) Candidate {
	return Candidate{
		RegistrationID: regID,
		StudentID:      regID,
		Gender:         gender,
		Type:           model.TypeNormal,
		CreatedAt:      time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(regID) * time.Minute),
	}
}

// Scenario: capacity 2, one occupant, MIXED room; a compatible student
// must land there and fill the room.
func TestAssignOneFillsRoom(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{room(1, 1, 2, 1, model.GenderMixed)}}
	out := AssignOne(candidate(10, model.GenderMale), snap)

	require.True(t, out.Assigned)
	assert.Equal(t, uint64(1), out.RoomID)
	assert.Equal(t, uint32(2), snap.Rooms[0].Occupants)
	assert.Equal(t, uint32(0), snap.Rooms[0].FreeSlots())
}

// Scenario: the same room now full; the next registration for that
// building fails with the capacity reason.
func TestAssignOneNoCapacity(t *testing.T) {
	b := uint64(1)
	snap := &Snapshot{Rooms: []*RoomState{room(1, b, 2, 2, model.GenderMixed)}}
	c := candidate(11, model.GenderMale)
	c.DesiredBuildingID = &b

	out := AssignOne(c, snap)
	require.False(t, out.Assigned)
	assert.Equal(t, ReasonNoCapacity, out.Reason)
}

func TestAssignOneNoMatchingRoom(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{room(1, 1, 4, 0, model.GenderFemale)}}
	out := AssignOne(candidate(12, model.GenderMale), snap)

	require.False(t, out.Assigned)
	assert.Equal(t, ReasonNoMatchingRoom, out.Reason)
}

func TestAssignOneDesiredBuildingBeatsOtherBuildings(t *testing.T) {
	want := uint64(2)
	snap := &Snapshot{Rooms: []*RoomState{
		room(1, 1, 4, 3, model.GenderMixed), // tighter fit, wrong building
		room(2, 2, 4, 0, model.GenderMixed),
	}}
	c := candidate(13, model.GenderFemale)
	c.DesiredBuildingID = &want

	out := AssignOne(c, snap)
	require.True(t, out.Assigned)
	assert.Equal(t, uint64(2), out.RoomID)
}

func TestTightestFitPacking(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{
		room(1, 1, 4, 0, model.GenderMixed), // 4 free
		room(2, 1, 4, 3, model.GenderMixed), // 1 free: tightest
		room(3, 1, 4, 2, model.GenderMixed), // 2 free
	}}
	out := AssignOne(candidate(14, model.GenderMale), snap)
	require.True(t, out.Assigned)
	assert.Equal(t, uint64(2), out.RoomID)
}

func TestTightestFitTieBreaksByLowestRoomID(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{
		room(7, 1, 4, 2, model.GenderMixed),
		room(4, 1, 4, 2, model.GenderMixed),
	}}
	out := AssignOne(candidate(15, model.GenderFemale), snap)
	require.True(t, out.Assigned)
	assert.Equal(t, uint64(4), out.RoomID)
}

// A disability-priority registration created after a normal one still
// gets the last slot in the same batch.
func TestPriorityServedFirst(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{room(1, 1, 2, 1, model.GenderMixed)}}
	normal := candidate(1, model.GenderMale)
	prio := Candidate{
		RegistrationID:   2,
		StudentID:        2,
		Gender:           model.GenderMale,
		Type:             model.TypePriority,
		PriorityCategory: model.CategoryDisability,
		CreatedAt:        normal.CreatedAt.Add(time.Hour),
	}

	outcomes := RunBatch([]Candidate{normal, prio}, snap)
	require.Len(t, outcomes, 2)
	assert.Equal(t, uint64(2), outcomes[0].RegistrationID)
	assert.True(t, outcomes[0].Assigned)
	assert.Equal(t, uint64(1), outcomes[1].RegistrationID)
	assert.False(t, outcomes[1].Assigned)
	assert.Equal(t, ReasonNoCapacity, outcomes[1].Reason)
}

// Later candidates in a batch must see occupancy bumped by earlier
// ones: two students fit a 2-slot room, the third does not.
func TestBatchSeesInBatchOccupancy(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{room(1, 1, 2, 0, model.GenderMixed)}}
	outcomes := RunBatch([]Candidate{
		candidate(1, model.GenderMale),
		candidate(2, model.GenderMale),
		candidate(3, model.GenderMale),
	}, snap)

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Assigned)
	assert.True(t, outcomes[1].Assigned)
	assert.False(t, outcomes[2].Assigned)
	assert.Equal(t, uint32(2), snap.Rooms[0].Occupants)
}

// Occupancy never exceeds capacity no matter how many candidates are
// thrown at a fixed room pool.
func TestEngineNeverOverfills(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{
		room(1, 1, 3, 1, model.GenderMale),
		room(2, 1, 2, 0, model.GenderMixed),
		room(3, 2, 4, 4, model.GenderFemale),
		room(4, 2, 6, 5, model.GenderFemale),
	}}
	var cs []Candidate
	for i := uint64(1); i <= 40; i++ {
		g := model.GenderMale
		if i%2 == 0 {
			g = model.GenderFemale
		}
		cs = append(cs, candidate(i, g))
	}
	RunBatch(cs, snap)
	for _, r := range snap.Rooms {
		assert.LessOrEqual(t, r.Occupants, r.Capacity, "room %d", r.ID)
	}
}

// The engine is deterministic: identical inputs produce identical
// outcome lists on every run.
func TestRunBatchDeterministic(t *testing.T) {
	build := func() (*Snapshot, []Candidate) {
		snap := &Snapshot{Rooms: []*RoomState{
			room(1, 1, 2, 0, model.GenderMixed),
			room(2, 1, 3, 1, model.GenderMale),
			room(3, 2, 2, 0, model.GenderFemale),
		}}
		cs := []Candidate{
			candidate(5, model.GenderMale),
			candidate(1, model.GenderFemale),
			{RegistrationID: 7, StudentID: 7, Gender: model.GenderMale, Type: model.TypeRenewal,
				CreatedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)},
			candidate(2, model.GenderMale),
		}
		return snap, cs
	}

	snapA, csA := build()
	first := RunBatch(csA, snapA)
	for i := 0; i < 5; i++ {
		snapB, csB := build()
		assert.Equal(t, first, RunBatch(csB, snapB))
	}
}

func TestSnapshotClone(t *testing.T) {
	snap := &Snapshot{Rooms: []*RoomState{room(1, 1, 2, 0, model.GenderMixed)}}
	cl := snap.Clone()
	cl.Rooms[0].Occupants = 2
	assert.Equal(t, uint32(0), snap.Rooms[0].Occupants)
}
