package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// PaymentSessionRepo persists payment sessions.  The two state flips
// (ACTIVE→EXPIRED, ACTIVE→CONFIRMED) are conditional UPDATEs keyed on
// the current status so that two racing confirmations resolve to
// exactly one winner; the loser sees zero affected rows, re-reads, and
// reports what it finds.
type PaymentSessionRepo struct {
	db *sql.DB
}

// NewPaymentSessionRepo returns a PaymentSessionRepo bound to the database.
func NewPaymentSessionRepo(db *sql.DB) *PaymentSessionRepo { return &PaymentSessionRepo{db: db} }

// encodeInvoiceIDs packs invoice IDs into the CSV column format.
func encodeInvoiceIDs(ids []uint64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(id, 10))
	}
	return strings.Join(parts, ",")
}

func decodeInvoiceIDs(csv string) []uint64 {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Create inserts a new ACTIVE session and populates the generated ID.
func (r *PaymentSessionRepo) Create(ctx context.Context, s *model.PaymentSession) error {
	const q = `INSERT INTO payment_sessions (reference, student_id, invoice_ids, amount_vnd, status, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		s.Reference, s.StudentID, encodeInvoiceIDs(s.InvoiceIDs), s.Amount,
		model.SessionActive, s.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.Status = model.SessionActive
	return nil
}

// GetByReference loads a session or returns ErrSessionNotFound.
func (r *PaymentSessionRepo) GetByReference(ctx context.Context, ref string) (*model.PaymentSession, error) {
	const q = `SELECT id, reference, student_id, invoice_ids, amount_vnd, status,
	                  expires_at, confirmed_at, created_at
	           FROM payment_sessions WHERE reference = ?`
	var (
		s           model.PaymentSession
		csv         string
		confirmedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, ref).Scan(
		&s.ID, &s.Reference, &s.StudentID, &csv, &s.Amount, &s.Status,
		&s.ExpiresAt, &confirmedAt, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.InvoiceIDs = decodeInvoiceIDs(csv)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		s.ConfirmedAt = &t
	}
	return &s, nil
}

// MarkExpired flips an ACTIVE session to EXPIRED.  Affecting zero rows
// is fine: another caller already flipped it, or it was confirmed in
// the meantime and the caller's subsequent re-read will see that.
func (r *PaymentSessionRepo) MarkExpired(ctx context.Context, ref string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_sessions SET status = ? WHERE reference = ? AND status = ?`,
		model.SessionExpired, ref, model.SessionActive)
	return err
}

// Confirm performs the atomic ACTIVE→CONFIRMED transition, also
// re-checking the expiry inside the statement so a stale clock on the
// caller cannot confirm a dead session.  Zero affected rows returns
// ErrConflict; the caller re-reads to classify the loss.
func (r *PaymentSessionRepo) Confirm(ctx context.Context, ref string, now time.Time) error {
	const q = `UPDATE payment_sessions
	           SET status = ?, confirmed_at = ?
	           WHERE reference = ? AND status = ? AND expires_at > ?`
	ts := now.UTC().Format("2006-01-02 15:04:05")
	res, err := r.db.ExecContext(ctx, q,
		model.SessionConfirmed, ts, ref, model.SessionActive, ts)
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

// ExpireStale flips every ACTIVE session past its expiry to EXPIRED and
// returns how many rows were affected.  Used by the periodic sweep;
// correctness never depends on it because verification also expires
// sessions lazily.
func (r *PaymentSessionRepo) ExpireStale(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_sessions SET status = ? WHERE status = ? AND expires_at <= UTC_TIMESTAMP()`,
		model.SessionExpired, model.SessionActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
