package allocation

import (
	"time"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// Candidate is one registration competing for a room in a batch run.
// It carries just the fields the engine needs; the full registration
// row stays in the repository layer.
type Candidate struct {
	RegistrationID    uint64
	StudentID         uint64
	Gender            model.GenderPolicy
	DesiredBuildingID *uint64
	Type              model.RegistrationType
	PriorityCategory  model.PriorityCategory
	CreatedAt         time.Time
}

// RoomState is the engine's mutable view of one room.  Occupants is
// incremented in-memory as the batch progresses so later candidates see
// rooms filled by earlier ones.
type RoomState struct {
	ID           uint64
	BuildingID   uint64
	Capacity     uint32
	Occupants    uint32
	GenderPolicy model.GenderPolicy
	MonthlyFee   int64
}

// FreeSlots returns the remaining capacity of the room state.
func (r *RoomState) FreeSlots() uint32 {
	if r.Occupants >= r.Capacity {
		return 0
	}
	return r.Capacity - r.Occupants
}

// Snapshot is an explicit in-memory copy of the room inventory taken at
// the start of a batch run.  The engine owns it for the duration of the
// run; nothing else mutates it.
type Snapshot struct {
	Rooms []*RoomState
}

// Clone deep-copies the snapshot.  Used when a capacity race forces a
// single-candidate retry against fresh state.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{Rooms: make([]*RoomState, len(s.Rooms))}
	for i, r := range s.Rooms {
		cp := *r
		out.Rooms[i] = &cp
	}
	return out
}

// Failure reasons surfaced to staff in admin_note and batch results.
const (
	ReasonNoMatchingRoom = "no room matching gender/building constraints"
	ReasonNoCapacity     = "no capacity remaining"
)

// Outcome is the per-registration result of a batch run.  It is a
// tagged variant: Assigned carries a room, Failed carries a reason.
type Outcome struct {
	RegistrationID uint64 `json:"registration_id"`
	Assigned       bool   `json:"assigned"`
	RoomID         uint64 `json:"room_id,omitempty"`
	MonthlyFee     int64  `json:"-"`
	Reason         string `json:"reason,omitempty"`
}

func assigned(regID uint64, room *RoomState) Outcome {
	return Outcome{RegistrationID: regID, Assigned: true, RoomID: room.ID, MonthlyFee: room.MonthlyFee}
}

func failed(regID uint64, reason string) Outcome {
	return Outcome{RegistrationID: regID, Reason: reason}
}

// RunBatch assigns rooms to candidates against the given snapshot.
// Candidates are ordered by the priority classifier; each one gets the
// tightest-fitting eligible room (fewest free slots, lowest room id on
// ties).  The snapshot's occupancy is bumped immediately after each
// assignment, which is why batch order matters.  The returned slice is
// index-aligned with the sorted candidate order.
func RunBatch(candidates []Candidate, snap *Snapshot) []Outcome {
	SortCandidates(candidates)
	outcomes := make([]Outcome, 0, len(candidates))
	for _, c := range candidates {
		outcomes = append(outcomes, assignOne(c, snap))
	}
	return outcomes
}

// AssignOne places a single candidate against the snapshot.  Used for
// inline allocation on approval and for capacity-race retries.
func AssignOne(c Candidate, snap *Snapshot) Outcome {
	return assignOne(c, snap)
}

func assignOne(c Candidate, snap *Snapshot) Outcome {
	var best *RoomState
	matchedConstraints := false
	for _, room := range snap.Rooms {
		if room.GenderPolicy != model.GenderMixed && room.GenderPolicy != c.Gender {
			continue
		}
		if c.DesiredBuildingID != nil && room.BuildingID != *c.DesiredBuildingID {
			continue
		}
		matchedConstraints = true
		if room.FreeSlots() == 0 {
			continue
		}
		if best == nil || tighter(room, best) {
			best = room
		}
	}
	if best == nil {
		if matchedConstraints {
			return failed(c.RegistrationID, ReasonNoCapacity)
		}
		return failed(c.RegistrationID, ReasonNoMatchingRoom)
	}
	best.Occupants++
	return assigned(c.RegistrationID, best)
}

// tighter reports whether a should be preferred over b under the
// tightest-fit rule: fewer free slots first, lower id on equal slots.
func tighter(a, b *RoomState) bool {
	if a.FreeSlots() != b.FreeSlots() {
		return a.FreeSlots() < b.FreeSlots()
	}
	return a.ID < b.ID
}
