package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// StudentRepo manages the student directory read model.  Profiles are
// created once at account registration and resolved everywhere else.
type StudentRepo struct {
	db *sql.DB
}

// NewStudentRepo returns a StudentRepo bound to the given database.
func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{db: db} }

const studentColumns = `id, user_id, student_code, full_name, gender, created_at, updated_at`

// Create inserts a student profile at account registration time.  The
// enrollment system remains the source of truth for the directory; this
// insert only links a login account to its profile.
func (r *StudentRepo) Create(ctx context.Context, s *model.Student) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO students (user_id, student_code, full_name, gender, created_at, updated_at)
		 VALUES (?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`,
		s.UserID, s.StudentCode, s.FullName, s.Gender)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetByID loads one student or returns ErrStudentNotFound.
func (r *StudentRepo) GetByID(ctx context.Context, id uint64) (*model.Student, error) {
	var s model.Student
	err := r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = ?`, id).
		Scan(&s.ID, &s.UserID, &s.StudentCode, &s.FullName, &s.Gender, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByUserID resolves the student profile linked to a login account.
// Returns ErrStudentNotFound when the account has no student profile,
// which is the case for staff users.
func (r *StudentRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Student, error) {
	var s model.Student
	err := r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE user_id = ?`, userID).
		Scan(&s.ID, &s.UserID, &s.StudentCode, &s.FullName, &s.Gender, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
