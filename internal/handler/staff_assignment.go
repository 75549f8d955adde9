package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dorm-residency/internal/allocation"
	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/queue"
	"github.com/iliyamo/dorm-residency/internal/repository"
	"github.com/iliyamo/dorm-residency/internal/service"
)

// invoiceDueDays is how long a student has to pay a room-fee invoice.
const invoiceDueDays = 7

// reasonNotPending marks a candidate that left PENDING while a batch
// was running.  Unlike the engine's reasons it is never written to
// admin_note.
const reasonNotPending = "registration no longer pending"

// snapshotFromRooms builds the engine's room snapshot from the current
// inventory.  ListAll orders by id, so snapshots are reproducible.
func snapshotFromRooms(rooms []model.Room) *allocation.Snapshot {
	snap := &allocation.Snapshot{Rooms: make([]*allocation.RoomState, 0, len(rooms))}
	for _, r := range rooms {
		snap.Rooms = append(snap.Rooms, &allocation.RoomState{
			ID:           r.ID,
			BuildingID:   r.BuildingID,
			Capacity:     r.Capacity,
			Occupants:    r.CurrentOccupants,
			GenderPolicy: r.GenderPolicy,
			MonthlyFee:   r.MonthlyFee,
		})
	}
	return snap
}

// candidateFromRow converts a repository candidate row into the
// engine's candidate shape.
func candidateFromRow(row repository.CandidateRow) allocation.Candidate {
	return allocation.Candidate{
		RegistrationID:    row.Registration.ID,
		StudentID:         row.Registration.StudentID,
		Gender:            row.Gender,
		DesiredBuildingID: row.Registration.DesiredBuildingID,
		Type:              row.Registration.Type,
		PriorityCategory:  row.Registration.PriorityCategory,
		CreatedAt:         row.Registration.CreatedAt,
	}
}

// persistAward commits one assignment: CAS occupancy increment, the
// PENDING→AWAITING_PAYMENT flip with the room attached, and the
// room-fee invoice, all in one transaction.  ErrCapacityRace comes back
// when the room filled up between snapshot and commit.
func (h *StaffHandler) persistAward(ctx context.Context, cand allocation.Candidate, out allocation.Outcome) (*model.Invoice, error) {
	tx, err := h.Registrations.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := h.Rooms.IncrementOccupantsTx(ctx, tx, out.RoomID); err != nil {
		return nil, err
	}
	if err := h.Registrations.AwardRoomTx(ctx, tx, cand.RegistrationID, model.StatusPending, out.RoomID, "room assigned"); err != nil {
		return nil, err
	}
	regID := cand.RegistrationID
	inv := &model.Invoice{
		StudentID:      cand.StudentID,
		RegistrationID: &regID,
		Kind:           model.InvoiceRoomFee,
		Amount:         out.MonthlyFee,
		Status:         model.InvoiceUnpaid,
		DueDate:        time.Now().UTC().AddDate(0, 0, invoiceDueDays),
	}
	if err := h.Invoices.CreateTx(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return inv, nil
}

// allocateOne runs the engine for a single candidate against a fresh
// snapshot and persists the result.  A capacity race is retried once
// against re-loaded state; a second failure is reported as a failed
// outcome rather than an error.
func (h *StaffHandler) allocateOne(ctx context.Context, cand allocation.Candidate) (allocation.Outcome, *model.Invoice, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rooms, err := h.Rooms.ListAll(ctx)
		if err != nil {
			return allocation.Outcome{}, nil, err
		}
		out := allocation.AssignOne(cand, snapshotFromRooms(rooms))
		if !out.Assigned {
			return out, nil, nil
		}
		inv, err := h.persistAward(ctx, cand, out)
		if err == nil {
			return out, inv, nil
		}
		if errors.Is(err, repository.ErrCapacityRace) {
			continue
		}
		if errors.Is(err, repository.ErrStaleStatus) {
			return allocation.Outcome{RegistrationID: cand.RegistrationID, Reason: reasonNotPending}, nil, nil
		}
		return allocation.Outcome{}, nil, err
	}
	return allocation.Outcome{
		RegistrationID: cand.RegistrationID,
		Reason:         allocation.ReasonNoCapacity,
	}, nil, nil
}

// publishAssigned emits the room-assigned notification.  Delivery is
// fire-and-forget; a broker outage must not fail the request.
func publishAssigned(ctx context.Context, cand allocation.Candidate, out allocation.Outcome, inv *model.Invoice, buildingID uint64) {
	ev := queue.RoomAssignedEvent{
		RegistrationID: cand.RegistrationID,
		StudentID:      cand.StudentID,
		RoomID:         out.RoomID,
		BuildingID:     buildingID,
		InvoiceID:      inv.ID,
		AmountVND:      inv.Amount,
		AssignedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := service.PublishRoomAssigned(ctx, ev); err != nil {
		log.Printf("queue: publish room assigned: %v", err)
	}
}

type batchResp struct {
	Assigned int                  `json:"assigned"`
	Failed   int                  `json:"failed"`
	Outcomes []allocation.Outcome `json:"outcomes"`
}

// AssignBatch runs the assignment engine over every PENDING
// registration of the active semester.  The engine plans against one
// snapshot; each planned assignment is then committed in its own
// transaction so one capacity race cannot poison the whole batch.
func (h *StaffHandler) AssignBatch(c echo.Context) error {
	// Batch runs scan every candidate; give them more room than a
	// single-row handler.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	rows, err := h.Registrations.ListCandidates(ctx, h.Cfg.Semester, model.StatusPending)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load candidates failed"})
	}
	rooms, err := h.Rooms.ListAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load rooms failed"})
	}

	candidates := make([]allocation.Candidate, 0, len(rows))
	byID := make(map[uint64]allocation.Candidate, len(rows))
	buildingOf := make(map[uint64]uint64, len(rooms))
	for _, row := range rows {
		cand := candidateFromRow(row)
		candidates = append(candidates, cand)
		byID[cand.RegistrationID] = cand
	}
	for _, r := range rooms {
		buildingOf[r.ID] = r.BuildingID
	}

	planned := allocation.RunBatch(candidates, snapshotFromRooms(rooms))

	resp := batchResp{Outcomes: make([]allocation.Outcome, 0, len(planned))}
	for _, out := range planned {
		cand := byID[out.RegistrationID]
		final := out
		if out.Assigned {
			inv, err := h.persistAward(ctx, cand, out)
			switch {
			case err == nil:
				publishAssigned(ctx, cand, out, inv, buildingOf[out.RoomID])
			case errors.Is(err, repository.ErrCapacityRace):
				// The planned room filled outside this batch; replan
				// this one candidate against live state.
				final, inv, err = h.allocateOne(ctx, cand)
				if err != nil {
					return c.JSON(http.StatusInternalServerError, echo.Map{"error": "persist assignment failed"})
				}
				if final.Assigned {
					publishAssigned(ctx, cand, final, inv, buildingOf[final.RoomID])
				}
			case errors.Is(err, repository.ErrStaleStatus):
				// The registration left PENDING mid-batch (student
				// cancel or a concurrent approval); skip it.
				final = allocation.Outcome{RegistrationID: cand.RegistrationID, Reason: reasonNotPending}
			default:
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "persist assignment failed"})
			}
		}
		// Allocation failures are recorded on the registration so staff
		// and the student can see why; a registration that left PENDING
		// mid-batch keeps whatever note its own transition wrote.
		if !final.Assigned && final.Reason != reasonNotPending {
			if err := h.Registrations.SetAdminNote(ctx, cand.RegistrationID, final.Reason); err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "record failure reason failed"})
			}
		}
		if final.Assigned {
			resp.Assigned++
		} else {
			resp.Failed++
		}
		resp.Outcomes = append(resp.Outcomes, final)
	}
	return c.JSON(http.StatusOK, resp)
}
