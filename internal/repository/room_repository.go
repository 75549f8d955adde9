package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// RoomRepo provides read access to the room inventory plus the one
// mutation this subsystem owns: the conditional occupancy increment.
// The increment is the load-bearing invariant of the allocation engine:
// `current_occupants + 1` is only ever applied when it still fits under
// capacity, and the derived status column is recomputed in the same
// statement so it can never desync from the counters.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = `id, building_id, name, capacity, current_occupants,
       gender_policy, status, monthly_fee_vnd, created_at, updated_at`

func scanRoom(row interface {
	Scan(dest ...interface{}) error
}) (*model.Room, error) {
	var rm model.Room
	err := row.Scan(
		&rm.ID, &rm.BuildingID, &rm.Name, &rm.Capacity, &rm.CurrentOccupants,
		&rm.GenderPolicy, &rm.Status, &rm.MonthlyFee, &rm.CreatedAt, &rm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

// GetByID loads one room or returns ErrRoomNotFound.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	rm, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	return rm, err
}

// ListByBuilding returns all rooms of a building ordered by name, for
// the public browse endpoints.
func (r *RoomRepo) ListByBuilding(ctx context.Context, buildingID uint64) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE building_id = ? ORDER BY name ASC, id ASC`,
		buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Room{}
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

// ListAll returns the whole inventory ordered by id.  The assignment
// engine builds its snapshot from this; ordering by id keeps snapshot
// construction deterministic.
func (r *RoomRepo) ListAll(ctx context.Context) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Room{}
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

// IncrementOccupantsTx performs the compare-and-swap occupancy bump
// inside the per-registration allocation transaction.  Zero affected
// rows means the room filled up since the snapshot was taken; the
// caller receives ErrCapacityRace and retries once with fresh state.
func (r *RoomRepo) IncrementOccupantsTx(ctx context.Context, tx *sql.Tx, roomID uint64) error {
	const q = `UPDATE rooms
	           SET current_occupants = current_occupants + 1,
	               status = IF(current_occupants + 1 >= capacity, 'FULL', 'AVAILABLE'),
	               updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND current_occupants < capacity`
	res, err := tx.ExecContext(ctx, q, roomID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCapacityRace
	}
	return nil
}

// DecrementOccupantsTx releases a slot when an awarded registration is
// cancelled before payment.  Guarded against going below zero; the
// derived status is recomputed in the same statement.
func (r *RoomRepo) DecrementOccupantsTx(ctx context.Context, tx *sql.Tx, roomID uint64) error {
	const q = `UPDATE rooms
	           SET current_occupants = current_occupants - 1,
	               status = 'AVAILABLE',
	               updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND current_occupants > 0`
	res, err := tx.ExecContext(ctx, q, roomID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
