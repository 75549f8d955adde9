package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// InvoiceRepo persists invoices.  Room-fee invoices are created inside
// the allocation transaction; marking invoices paid happens during
// payment confirmation and only ever flips outstanding rows.
type InvoiceRepo struct {
	db *sql.DB
}

// NewInvoiceRepo returns an InvoiceRepo bound to the given database.
func NewInvoiceRepo(db *sql.DB) *InvoiceRepo { return &InvoiceRepo{db: db} }

const invoiceColumns = `id, student_id, registration_id, kind, amount_vnd, status,
       due_date, paid_at, created_at, updated_at`

func scanInvoice(row interface {
	Scan(dest ...interface{}) error
}) (*model.Invoice, error) {
	var (
		inv    model.Invoice
		regID  sql.NullInt64
		paidAt sql.NullTime
	)
	err := row.Scan(
		&inv.ID, &inv.StudentID, &regID, &inv.Kind, &inv.Amount, &inv.Status,
		&inv.DueDate, &paidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if regID.Valid {
		id := uint64(regID.Int64)
		inv.RegistrationID = &id
	}
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	return &inv, nil
}

// CreateTx inserts an invoice within an existing transaction and
// populates the generated ID.  Used by the allocation flow so the
// room-fee invoice commits atomically with the room award.
func (r *InvoiceRepo) CreateTx(ctx context.Context, tx *sql.Tx, inv *model.Invoice) error {
	const q = `INSERT INTO invoices (student_id, registration_id, kind, amount_vnd, status, due_date)
	           VALUES (?, ?, ?, ?, ?, ?)`
	var regID interface{}
	if inv.RegistrationID != nil {
		regID = *inv.RegistrationID
	}
	res, err := tx.ExecContext(ctx, q,
		inv.StudentID, regID, inv.Kind, inv.Amount, model.InvoiceUnpaid,
		inv.DueDate.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = uint64(id)
	inv.Status = model.InvoiceUnpaid
	return nil
}

// DeleteUnpaidByRegistrationTx removes the outstanding room-fee
// invoice of a registration whose award is being revoked.  Paid
// invoices are kept for the books.
func (r *InvoiceRepo) DeleteUnpaidByRegistrationTx(ctx context.Context, tx *sql.Tx, registrationID uint64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM invoices WHERE registration_id = ? AND status IN ('UNPAID','OVERDUE')`,
		registrationID)
	return err
}

// GetByID loads one invoice or returns ErrInvoiceNotFound.
func (r *InvoiceRepo) GetByID(ctx context.Context, id uint64) (*model.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	return inv, err
}

// ListUnpaidByStudent returns every UNPAID or OVERDUE invoice of a
// student, oldest first.
func (r *InvoiceRepo) ListUnpaidByStudent(ctx context.Context, studentID uint64) ([]model.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE student_id = ? AND status IN ('UNPAID','OVERDUE')
		 ORDER BY due_date ASC, id ASC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// ListByStudent returns all invoices of a student, newest first.
func (r *InvoiceRepo) ListByStudent(ctx context.Context, studentID uint64) ([]model.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE student_id = ? ORDER BY created_at DESC, id DESC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// MarkPaid flips the targeted invoices to PAID at the given instant.
// The status guard keeps already-paid rows untouched so a duplicate
// posting can never be applied twice.
func (r *InvoiceRepo) MarkPaid(ctx context.Context, ids []uint64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, at.UTC().Format("2006-01-02 15:04:05"))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = 'PAID', paid_at = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id IN (`+placeholders+`) AND status IN ('UNPAID','OVERDUE')`,
		args...)
	return err
}
