package model

import "time"

// GenderPolicy restricts who may live in a room or building.  MIXED
// rooms accept any student.
type GenderPolicy string

const (
	GenderMale   GenderPolicy = "MALE"
	GenderFemale GenderPolicy = "FEMALE"
	GenderMixed  GenderPolicy = "MIXED"
)

// RoomStatus is a derived cache of the occupancy/capacity comparison.
// It is recomputed inside every statement that changes occupancy and is
// never written on its own, so it cannot desync from the counters.
type RoomStatus string

const (
	RoomAvailable RoomStatus = "AVAILABLE"
	RoomFull      RoomStatus = "FULL"
)

// Building groups rooms and carries a default gender policy used when
// seeding rooms.  Corresponds to a row in the `buildings` table.
type Building struct {
	ID           uint64       // buildings.id
	Name         string       // buildings.name
	GenderPolicy GenderPolicy // buildings.gender_policy
	CreatedAt    time.Time    // buildings.created_at
	UpdatedAt    time.Time    // buildings.updated_at
}

// Room is a dorm room with a fixed capacity.  The subsystem treats the
// room inventory as read-only except for the occupancy counter, which
// only ever moves through the conditional increment in the repository.
//
// Invariant: CurrentOccupants <= Capacity at all times.
type Room struct {
	ID               uint64       // rooms.id
	BuildingID       uint64       // rooms.building_id
	Name             string       // rooms.name
	Capacity         uint32       // rooms.capacity
	CurrentOccupants uint32       // rooms.current_occupants
	GenderPolicy     GenderPolicy // rooms.gender_policy
	Status           RoomStatus   // rooms.status (derived)
	MonthlyFee       int64        // rooms.monthly_fee_vnd
	CreatedAt        time.Time    // rooms.created_at
	UpdatedAt        time.Time    // rooms.updated_at
}

// FreeSlots returns the remaining capacity of the room.
func (r *Room) FreeSlots() uint32 {
	if r.CurrentOccupants >= r.Capacity {
		return 0
	}
	return r.Capacity - r.CurrentOccupants
}

// Accepts reports whether the room's gender policy admits a student of
// the given gender.
func (r *Room) Accepts(gender GenderPolicy) bool {
	return r.GenderPolicy == GenderMixed || r.GenderPolicy == gender
}
