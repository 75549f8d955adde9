// Package payment implements the payment session manager: it issues
// short-lived QR payment references against a student's outstanding
// invoices and reconciles confirmation callbacks exactly once.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/repository"
)

// SessionStore is the persistence the manager needs for sessions.  The
// MySQL implementation lives in the repository package; tests use an
// in-memory fake.  Confirm must be an atomic conditional transition
// ACTIVE→CONFIRMED that also checks the expiry, returning
// repository.ErrConflict when zero rows were affected.
type SessionStore interface {
	Create(ctx context.Context, s *model.PaymentSession) error
	GetByReference(ctx context.Context, ref string) (*model.PaymentSession, error)
	MarkExpired(ctx context.Context, ref string) error
	Confirm(ctx context.Context, ref string, now time.Time) error
}

// InvoiceStore resolves and settles the invoices a session targets.
type InvoiceStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Invoice, error)
	ListUnpaidByStudent(ctx context.Context, studentID uint64) ([]model.Invoice, error)
	MarkPaid(ctx context.Context, ids []uint64, at time.Time) error
}

// RegistrationStore completes an AWAITING_PAYMENT registration once the
// last unpaid invoice tied to it has been settled.  Only registrations
// linked to the given invoices are considered.
type RegistrationStore interface {
	CompleteSettled(ctx context.Context, studentID uint64, invoiceIDs []uint64) ([]uint64, error)
}

// ErrNothingToPay is returned by Issue when the subject resolves to an
// empty invoice set.
var ErrNothingToPay = errors.New("no unpaid invoices for this subject")

// Subject identifies what a session pays for: one specific invoice, or
// every unpaid invoice of a student when InvoiceID is nil.
type Subject struct {
	StudentID uint64
	InvoiceID *uint64
}

// Confirmation is the result of a successful Confirm call.
type Confirmation struct {
	Session        *model.PaymentSession
	PaidInvoiceIDs []uint64
	CompletedRegs  []uint64
}

// Manager issues, verifies and confirms payment sessions.  The clock is
// injectable so TTL behavior is testable without sleeping.
type Manager struct {
	sessions      SessionStore
	invoices      InvoiceStore
	registrations RegistrationStore
	ttl           time.Duration
	now           func() time.Time
}

// NewManager constructs a Manager.  A non-positive ttl falls back to
// the 15 minute default.
func NewManager(sessions SessionStore, invoices InvoiceStore, registrations RegistrationStore, ttl time.Duration) *Manager {
	if sessions == nil || invoices == nil || registrations == nil {
		panic("nil store passed to payment.NewManager")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{
		sessions:      sessions,
		invoices:      invoices,
		registrations: registrations,
		ttl:           ttl,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager's clock.  Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue creates an ACTIVE session for the subject.  The amount is the
// sum of the targeted UNPAID/OVERDUE invoices at issuance time; the
// reference is an opaque UUID.
func (m *Manager) Issue(ctx context.Context, subject Subject) (*model.PaymentSession, error) {
	var targets []model.Invoice
	if subject.InvoiceID != nil {
		inv, err := m.invoices.GetByID(ctx, *subject.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.StudentID != subject.StudentID {
			return nil, repository.ErrForbidden
		}
		if !inv.Outstanding() {
			return nil, ErrNothingToPay
		}
		targets = []model.Invoice{*inv}
	} else {
		unpaid, err := m.invoices.ListUnpaidByStudent(ctx, subject.StudentID)
		if err != nil {
			return nil, err
		}
		targets = unpaid
	}
	if len(targets) == 0 {
		return nil, ErrNothingToPay
	}

	var amount int64
	ids := make([]uint64, 0, len(targets))
	for _, inv := range targets {
		amount += inv.Amount
		ids = append(ids, inv.ID)
	}

	now := m.now()
	session := &model.PaymentSession{
		Reference:  uuid.NewString(),
		StudentID:  subject.StudentID,
		InvoiceIDs: ids,
		Amount:     amount,
		Status:     model.SessionActive,
		ExpiresAt:  now.Add(m.ttl),
		CreatedAt:  now,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Verify resolves a reference.  Expiry is computed lazily: an ACTIVE
// session past its TTL is flipped to EXPIRED as a side effect and
// repository.ErrSessionExpired is returned.  A CONFIRMED session within
// its window is returned as-is so callers can display its state.
func (m *Manager) Verify(ctx context.Context, ref string) (*model.PaymentSession, error) {
	session, err := m.sessions.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionExpired {
		return nil, repository.ErrSessionExpired
	}
	if session.Status == model.SessionActive && session.ExpiredAt(m.now()) {
		if err := m.sessions.MarkExpired(ctx, ref); err != nil {
			return nil, err
		}
		return nil, repository.ErrSessionExpired
	}
	return session, nil
}

// Confirm settles a session exactly once.  The winner of the atomic
// ACTIVE→CONFIRMED flip marks the targeted invoices PAID and completes
// the student's AWAITING_PAYMENT registration when this was the final
// unpaid invoice.  A loser re-reads the session and fails with
// ErrSessionAlreadyConfirmed or ErrSessionExpired; it never applies the
// payment a second time.
func (m *Manager) Confirm(ctx context.Context, ref string) (*Confirmation, error) {
	session, err := m.Verify(ctx, ref)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionConfirmed {
		return nil, repository.ErrSessionAlreadyConfirmed
	}

	now := m.now()
	if err := m.sessions.Confirm(ctx, ref, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, m.classifyLoss(ctx, ref)
		}
		return nil, err
	}

	if err := m.invoices.MarkPaid(ctx, session.InvoiceIDs, now); err != nil {
		return nil, err
	}
	completed, err := m.registrations.CompleteSettled(ctx, session.StudentID, session.InvoiceIDs)
	if err != nil {
		return nil, err
	}

	session.Status = model.SessionConfirmed
	session.ConfirmedAt = &now
	return &Confirmation{
		Session:        session,
		PaidInvoiceIDs: session.InvoiceIDs,
		CompletedRegs:  completed,
	}, nil
}

// classifyLoss re-reads a session after losing the confirmation race
// and maps what it finds onto the error the caller should see.
func (m *Manager) classifyLoss(ctx context.Context, ref string) error {
	session, err := m.sessions.GetByReference(ctx, ref)
	if err != nil {
		return err
	}
	switch session.Status {
	case model.SessionConfirmed:
		return repository.ErrSessionAlreadyConfirmed
	case model.SessionExpired:
		return repository.ErrSessionExpired
	default:
		// ACTIVE but the conditional update failed: the expiry guard
		// rejected it.  Flip and report expired.
		_ = m.sessions.MarkExpired(ctx, ref)
		return repository.ErrSessionExpired
	}
}

// SweepExpired is the optional periodic cleanup.  Implementations that
// lack a bulk sweep can ignore it; lazy expiry in Verify remains
// authoritative.
type Sweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// RunSweeper flips stale ACTIVE sessions on a fixed interval until the
// context is cancelled.  Failures are returned to the caller's logger
// through the callback rather than stopping the loop.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, logf func(format string, args ...interface{})) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.ExpireStale(ctx); err != nil {
				logf("payment sweeper: %v", err)
			} else if n > 0 {
				logf("payment sweeper: expired %d stale sessions", n)
			}
		}
	}
}
