package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// BuildingRepo reads the building directory.  Buildings are managed by
// a separate admin surface; this subsystem only lists and resolves them.
type BuildingRepo struct {
	db *sql.DB
}

// NewBuildingRepo returns a BuildingRepo bound to the given database.
func NewBuildingRepo(db *sql.DB) *BuildingRepo { return &BuildingRepo{db: db} }

// List returns all buildings ordered by name.
func (r *BuildingRepo) List(ctx context.Context) ([]model.Building, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, gender_policy, created_at, updated_at FROM buildings ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Building{}
	for rows.Next() {
		var b model.Building
		if err := rows.Scan(&b.ID, &b.Name, &b.GenderPolicy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetByID loads one building or returns ErrBuildingNotFound.
func (r *BuildingRepo) GetByID(ctx context.Context, id uint64) (*model.Building, error) {
	var b model.Building
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, gender_policy, created_at, updated_at FROM buildings WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.GenderPolicy, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBuildingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
