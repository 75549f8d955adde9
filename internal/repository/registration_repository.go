package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// RegistrationRepo provides persistence for residency registrations.
// Status changes go through conditional UPDATEs keyed on the expected
// current status so that two concurrent actors can never both apply a
// transition; the loser observes zero affected rows and receives
// ErrStaleStatus.  All timestamps are stored in UTC.
type RegistrationRepo struct {
	db *sql.DB
}

// NewRegistrationRepo returns a RegistrationRepo bound to the database.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// spanning several repositories.
func (r *RegistrationRepo) DB() *sql.DB { return r.db }

const registrationColumns = `id, student_id, semester, registration_type, status,
       desired_building_id, priority_category, priority_description, evidence_file,
       admin_note, assigned_room_id, created_at, updated_at`

func scanRegistration(row interface {
	Scan(dest ...interface{}) error
}) (*model.Registration, error) {
	var (
		reg      model.Registration
		building sql.NullInt64
		evidence sql.NullString
		room     sql.NullInt64
	)
	err := row.Scan(
		&reg.ID, &reg.StudentID, &reg.Semester, &reg.Type, &reg.Status,
		&building, &reg.PriorityCategory, &reg.PriorityDescription, &evidence,
		&reg.AdminNote, &room, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if building.Valid {
		b := uint64(building.Int64)
		reg.DesiredBuildingID = &b
	}
	if evidence.Valid {
		e := evidence.String
		reg.EvidenceFile = &e
	}
	if room.Valid {
		id := uint64(room.Int64)
		reg.AssignedRoomID = &id
	}
	return &reg, nil
}

// Create inserts a new registration in PENDING status and reads the row
// back to populate generated fields.
func (r *RegistrationRepo) Create(ctx context.Context, reg *model.Registration) error {
	const q = `INSERT INTO registrations
	           (student_id, semester, registration_type, status, desired_building_id,
	            priority_category, priority_description, evidence_file, admin_note)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, '')`
	var building interface{}
	if reg.DesiredBuildingID != nil {
		building = *reg.DesiredBuildingID
	}
	var evidence interface{}
	if reg.EvidenceFile != nil {
		evidence = *reg.EvidenceFile
	}
	cat := reg.PriorityCategory
	if cat == "" {
		cat = model.CategoryNone
	}
	res, err := r.db.ExecContext(ctx, q,
		reg.StudentID, reg.Semester, reg.Type, model.StatusPending, building,
		cat, reg.PriorityDescription, evidence)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*reg = *fresh
	return nil
}

// GetByID loads one registration or returns ErrRegistrationNotFound.
func (r *RegistrationRepo) GetByID(ctx context.Context, id uint64) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	return reg, err
}

// ListByStudent returns all registrations of one student, newest first.
func (r *RegistrationRepo) ListByStudent(ctx context.Context, studentID uint64) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE student_id = ? ORDER BY created_at DESC, id DESC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// ListByStatus returns registrations of a semester in the given status,
// oldest first so staff review queues are first come, first served.
func (r *RegistrationRepo) ListByStatus(ctx context.Context, semester string, status model.Status) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE semester = ? AND status = ? ORDER BY created_at ASC, id ASC`,
		semester, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

func collectRegistrations(rows *sql.Rows) ([]model.Registration, error) {
	out := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

// CandidateRow joins a registration with the gender of its student, the
// exact shape the assignment engine needs for one candidate.
type CandidateRow struct {
	Registration model.Registration
	Gender       model.GenderPolicy
}

// ListCandidates returns the registrations of a semester in the given
// status together with each student's gender.
func (r *RegistrationRepo) ListCandidates(ctx context.Context, semester string, status model.Status) ([]CandidateRow, error) {
	const q = `SELECT r.id, r.student_id, r.semester, r.registration_type, r.status,
	                  r.desired_building_id, r.priority_category, r.priority_description, r.evidence_file,
	                  r.admin_note, r.assigned_room_id, r.created_at, r.updated_at,
	                  s.gender
	           FROM registrations r
	           JOIN students s ON s.id = r.student_id
	           WHERE r.semester = ? AND r.status = ?
	           ORDER BY r.created_at ASC, r.id ASC`
	rows, err := r.db.QueryContext(ctx, q, semester, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CandidateRow{}
	for rows.Next() {
		var (
			reg      model.Registration
			building sql.NullInt64
			evidence sql.NullString
			room     sql.NullInt64
			gender   model.GenderPolicy
		)
		err := rows.Scan(
			&reg.ID, &reg.StudentID, &reg.Semester, &reg.Type, &reg.Status,
			&building, &reg.PriorityCategory, &reg.PriorityDescription, &evidence,
			&reg.AdminNote, &room, &reg.CreatedAt, &reg.UpdatedAt, &gender,
		)
		if err != nil {
			return nil, err
		}
		if building.Valid {
			b := uint64(building.Int64)
			reg.DesiredBuildingID = &b
		}
		if evidence.Valid {
			e := evidence.String
			reg.EvidenceFile = &e
		}
		if room.Valid {
			id := uint64(room.Int64)
			reg.AssignedRoomID = &id
		}
		out = append(out, CandidateRow{Registration: reg, Gender: gender})
	}
	return out, rows.Err()
}

// Transition applies a status change keyed on the expected current
// status.  The admin note is replaced, never appended.  Zero affected
// rows means another actor moved the registration first.
func (r *RegistrationRepo) Transition(ctx context.Context, id uint64, from, to model.Status, note string) error {
	return transitionExec(ctx, r.db, id, from, to, note)
}

// TransitionTx is Transition inside an existing transaction.
func (r *RegistrationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.Status, note string) error {
	return transitionExec(ctx, tx, id, from, to, note)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func transitionExec(ctx context.Context, ex execer, id uint64, from, to model.Status, note string) error {
	const q = `UPDATE registrations
	           SET status = ?, admin_note = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	res, err := ex.ExecContext(ctx, q, to, note, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// AwardRoomTx moves a registration from the expected status to
// AWAITING_PAYMENT and records the assigned room, conditionally on the
// status not having moved.  Runs inside the per-registration allocation
// transaction together with the room-occupancy increment.
func (r *RegistrationRepo) AwardRoomTx(ctx context.Context, tx *sql.Tx, id uint64, from model.Status, roomID uint64, note string) error {
	const q = `UPDATE registrations
	           SET status = ?, assigned_room_id = ?, admin_note = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.StatusAwaitingPayment, roomID, note, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// RevokeAwardTx clears the assigned room while cancelling an
// AWAITING_PAYMENT registration (staff override before payment).
func (r *RegistrationRepo) RevokeAwardTx(ctx context.Context, tx *sql.Tx, id uint64, note string) error {
	const q = `UPDATE registrations
	           SET status = ?, assigned_room_id = NULL, admin_note = ?, updated_at = UTC_TIMESTAMP()
	           WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.StatusCancelled, note, id, model.StatusAwaitingPayment)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// Resubmit applies a corrected application and moves it back to
// PENDING in one statement.  The status guard keeps a concurrent staff
// rejection from being overwritten; zero rows affected means the
// registration left RETURN and the caller gets ErrStaleStatus.
func (r *RegistrationRepo) Resubmit(ctx context.Context, reg *model.Registration) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE registrations
		 SET registration_type = ?, desired_building_id = ?, priority_category = ?,
		     priority_description = ?, evidence_file = ?,
		     status = ?, admin_note = '', updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND student_id = ? AND status = ?`,
		reg.Type, reg.DesiredBuildingID, reg.PriorityCategory,
		reg.PriorityDescription, reg.EvidenceFile,
		model.StatusPending, reg.ID, reg.StudentID, model.StatusReturn)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// SetAdminNote stores an allocation failure reason on a registration
// whose status does not change (the candidate stays PENDING).
func (r *RegistrationRepo) SetAdminNote(ctx context.Context, id uint64, note string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE registrations SET admin_note = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		note, id)
	return err
}

// CompleteSettled flips to COMPLETED every AWAITING_PAYMENT
// registration of the student that is tied to one of the just-paid
// invoices and has no outstanding invoices of its own left.  Scoping by
// the paid invoices keeps a concurrent award in another semester
// untouched.  It returns the IDs of the registrations it completed.
// Called by the payment manager after marking invoices paid.
func (r *RegistrationRepo) CompleteSettled(ctx context.Context, studentID uint64, invoiceIDs []uint64) ([]uint64, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(invoiceIDs)), ",")
	args := make([]interface{}, 0, len(invoiceIDs)+2)
	args = append(args, studentID, model.StatusAwaitingPayment)
	for _, id := range invoiceIDs {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT r.id FROM registrations r
		 WHERE r.student_id = ? AND r.status = ?
		   AND r.id IN (SELECT i.registration_id FROM invoices i
		                WHERE i.id IN (`+placeholders+`) AND i.registration_id IS NOT NULL)
		   AND NOT EXISTS (SELECT 1 FROM invoices o
		                   WHERE o.registration_id = r.id AND o.status IN ('UNPAID','OVERDUE'))
		 FOR UPDATE`,
		args...)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if scanErr := rows.Scan(&id); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		_ = tx.Rollback()
		return nil, nil
	}

	idPlaceholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	updArgs := make([]interface{}, 0, len(ids)+2)
	updArgs = append(updArgs, model.StatusCompleted, model.StatusAwaitingPayment)
	for _, id := range ids {
		updArgs = append(updArgs, id)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE registrations SET status = ?, updated_at = UTC_TIMESTAMP()
		 WHERE status = ? AND id IN (`+idPlaceholders+`)`,
		updArgs...); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return ids, nil
}
