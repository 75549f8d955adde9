package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dorm-residency/internal/model"
	"github.com/iliyamo/dorm-residency/internal/repository"
)

// In-memory fakes.  The session fake implements the same conditional
// transition semantics as the MySQL repository: a confirm only wins
// when the session is still ACTIVE and unexpired, under a mutex so the
// concurrency test exercises a real race.

type fakeSessions struct {
	mu     sync.Mutex
	byRef  map[string]*model.PaymentSession
	nextID uint64
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byRef: map[string]*model.PaymentSession{}}
}

func (f *fakeSessions) Create(_ context.Context, s *model.PaymentSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.byRef[s.Reference] = &cp
	return nil
}

func (f *fakeSessions) GetByReference(_ context.Context, ref string) (*model.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byRef[ref]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) MarkExpired(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byRef[ref]; ok && s.Status == model.SessionActive {
		s.Status = model.SessionExpired
	}
	return nil
}

func (f *fakeSessions) Confirm(_ context.Context, ref string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byRef[ref]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if s.Status != model.SessionActive || !s.ExpiresAt.After(now) {
		return repository.ErrConflict
	}
	s.Status = model.SessionConfirmed
	s.ConfirmedAt = &now
	return nil
}

type fakeInvoices struct {
	mu   sync.Mutex
	byID map[uint64]*model.Invoice
}

func newFakeInvoices(invs ...model.Invoice) *fakeInvoices {
	f := &fakeInvoices{byID: map[uint64]*model.Invoice{}}
	for i := range invs {
		cp := invs[i]
		f.byID[cp.ID] = &cp
	}
	return f
}

func (f *fakeInvoices) GetByID(_ context.Context, id uint64) (*model.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoices) ListUnpaidByStudent(_ context.Context, studentID uint64) ([]model.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Invoice{}
	for _, inv := range f.byID {
		if inv.StudentID == studentID && inv.Outstanding() {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeInvoices) MarkPaid(_ context.Context, ids []uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if inv, ok := f.byID[id]; ok && inv.Outstanding() {
			inv.Status = model.InvoicePaid
			t := at
			inv.PaidAt = &t
		}
	}
	return nil
}

func (f *fakeInvoices) paidCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, inv := range f.byID {
		if inv.Status == model.InvoicePaid {
			n++
		}
	}
	return n
}

type fakeRegistrations struct {
	mu        sync.Mutex
	invoices  *fakeInvoices
	awaiting  map[uint64][]uint64 // studentID -> registration IDs
	completed []uint64
}

func newFakeRegistrations(invs *fakeInvoices) *fakeRegistrations {
	return &fakeRegistrations{invoices: invs, awaiting: map[uint64][]uint64{}}
}

// CompleteSettled mirrors the repository semantics: only registrations
// linked to the settled invoices complete, and only once they have no
// outstanding invoices of their own left.
func (f *fakeRegistrations) CompleteSettled(_ context.Context, studentID uint64, invoiceIDs []uint64) ([]uint64, error) {
	f.invoices.mu.Lock()
	linked := map[uint64]bool{}
	for _, id := range invoiceIDs {
		if inv, ok := f.invoices.byID[id]; ok && inv.RegistrationID != nil {
			linked[*inv.RegistrationID] = true
		}
	}
	outstanding := map[uint64]bool{}
	for _, inv := range f.invoices.byID {
		if inv.RegistrationID != nil && inv.Outstanding() {
			outstanding[*inv.RegistrationID] = true
		}
	}
	f.invoices.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	var done []uint64
	remain := f.awaiting[studentID][:0]
	for _, regID := range f.awaiting[studentID] {
		if linked[regID] && !outstanding[regID] {
			done = append(done, regID)
		} else {
			remain = append(remain, regID)
		}
	}
	f.awaiting[studentID] = remain
	f.completed = append(f.completed, done...)
	return done, nil
}

func fixedClock(at time.Time) func() time.Time { return func() time.Time { return at } }

const studentID = uint64(7)

func newTestManager(invs *fakeInvoices) (*Manager, *fakeSessions, *fakeRegistrations) {
	sessions := newFakeSessions()
	regs := newFakeRegistrations(invs)
	m := NewManager(sessions, invs, regs, 15*time.Minute)
	return m, sessions, regs
}

func TestIssueSingleInvoice(t *testing.T) {
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, Amount: 500000, Status: model.InvoiceUnpaid},
		model.Invoice{ID: 2, StudentID: studentID, Amount: 120000, Status: model.InvoiceUnpaid},
	)
	m, _, _ := newTestManager(invs)

	one := uint64(1)
	s, err := m.Issue(context.Background(), Subject{StudentID: studentID, InvoiceID: &one})
	require.NoError(t, err)
	assert.Equal(t, int64(500000), s.Amount)
	assert.Equal(t, []uint64{1}, s.InvoiceIDs)
	assert.Equal(t, model.SessionActive, s.Status)
	assert.NotEmpty(t, s.Reference)
	assert.Contains(t, s.QRPayload(), s.Reference)
}

func TestIssueAllUnpaidSumsAmounts(t *testing.T) {
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, Amount: 500000, Status: model.InvoiceUnpaid},
		model.Invoice{ID: 2, StudentID: studentID, Amount: 120000, Status: model.InvoiceOverdue},
		model.Invoice{ID: 3, StudentID: studentID, Amount: 99000, Status: model.InvoicePaid},
		model.Invoice{ID: 4, StudentID: 99, Amount: 700000, Status: model.InvoiceUnpaid},
	)
	m, _, _ := newTestManager(invs)

	s, err := m.Issue(context.Background(), Subject{StudentID: studentID})
	require.NoError(t, err)
	assert.Equal(t, int64(620000), s.Amount)
	assert.Len(t, s.InvoiceIDs, 2)
}

func TestIssueRejectsForeignAndSettledInvoices(t *testing.T) {
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: 99, Amount: 500000, Status: model.InvoiceUnpaid},
		model.Invoice{ID: 2, StudentID: studentID, Amount: 500000, Status: model.InvoicePaid},
	)
	m, _, _ := newTestManager(invs)

	foreign := uint64(1)
	_, err := m.Issue(context.Background(), Subject{StudentID: studentID, InvoiceID: &foreign})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	settled := uint64(2)
	_, err = m.Issue(context.Background(), Subject{StudentID: studentID, InvoiceID: &settled})
	assert.ErrorIs(t, err, ErrNothingToPay)

	_, err = m.Issue(context.Background(), Subject{StudentID: studentID})
	assert.ErrorIs(t, err, ErrNothingToPay)
}

func TestVerifyUnknownReference(t *testing.T) {
	invs := newFakeInvoices()
	m, _, _ := newTestManager(invs)
	_, err := m.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

// Verify past the TTL reports expired and flips the stored session so
// it can never answer ACTIVE again.
func TestVerifyLazyExpiry(t *testing.T) {
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, Amount: 500000, Status: model.InvoiceUnpaid},
	)
	m, sessions, _ := newTestManager(invs)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.WithClock(fixedClock(start))
	s, err := m.Issue(context.Background(), Subject{StudentID: studentID})
	require.NoError(t, err)

	m.WithClock(fixedClock(start.Add(16 * time.Minute)))
	_, err = m.Verify(context.Background(), s.Reference)
	assert.ErrorIs(t, err, repository.ErrSessionExpired)

	stored, getErr := sessions.GetByReference(context.Background(), s.Reference)
	require.NoError(t, getErr)
	assert.Equal(t, model.SessionExpired, stored.Status)

	_, err = m.Verify(context.Background(), s.Reference)
	assert.ErrorIs(t, err, repository.ErrSessionExpired)
}

// Scenario: issue a session for a 500,000 VND room-fee invoice and
// confirm within the TTL; the invoice flips to PAID and the linked
// AWAITING_PAYMENT registration completes.
func TestConfirmSettlesInvoiceAndCompletesRegistration(t *testing.T) {
	regID := uint64(31)
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, RegistrationID: &regID, Kind: model.InvoiceRoomFee,
			Amount: 500000, Status: model.InvoiceUnpaid},
	)
	m, _, regs := newTestManager(invs)
	regs.awaiting[studentID] = []uint64{regID}

	s, err := m.Issue(context.Background(), Subject{StudentID: studentID})
	require.NoError(t, err)

	conf, err := m.Confirm(context.Background(), s.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.SessionConfirmed, conf.Session.Status)
	assert.Equal(t, []uint64{1}, conf.PaidInvoiceIDs)
	assert.Equal(t, []uint64{regID}, conf.CompletedRegs)
	assert.Equal(t, 1, invs.paidCount())
}

// A remaining unpaid invoice on the same registration keeps it open.
func TestConfirmPartialPaymentLeavesRegistrationOpen(t *testing.T) {
	regID := uint64(31)
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, RegistrationID: &regID, Amount: 500000, Status: model.InvoiceUnpaid},
		model.Invoice{ID: 2, StudentID: studentID, RegistrationID: &regID, Amount: 80000, Status: model.InvoiceUnpaid},
	)
	m, _, regs := newTestManager(invs)
	regs.awaiting[studentID] = []uint64{regID}

	one := uint64(1)
	s, err := m.Issue(context.Background(), Subject{StudentID: studentID, InvoiceID: &one})
	require.NoError(t, err)

	conf, err := m.Confirm(context.Background(), s.Reference)
	require.NoError(t, err)
	assert.Empty(t, conf.CompletedRegs)
	assert.Equal(t, []uint64{regID}, regs.awaiting[studentID])
}

// Two awards in different semesters each carry their own invoice.
// Settling one invoice completes only the registration it is tied to;
// the other stays AWAITING_PAYMENT even though that invoice is also for
// the same student.
func TestConfirmCompletesOnlyLinkedRegistration(t *testing.T) {
	springReg := uint64(31)
	fallReg := uint64(44)
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, RegistrationID: &springReg, Kind: model.InvoiceRoomFee,
			Amount: 500000, Status: model.InvoiceUnpaid},
		model.Invoice{ID: 2, StudentID: studentID, RegistrationID: &fallReg, Kind: model.InvoiceRoomFee,
			Amount: 520000, Status: model.InvoiceUnpaid},
	)
	m, _, regs := newTestManager(invs)
	regs.awaiting[studentID] = []uint64{springReg, fallReg}

	one := uint64(1)
	s, err := m.Issue(context.Background(), Subject{StudentID: studentID, InvoiceID: &one})
	require.NoError(t, err)

	conf, err := m.Confirm(context.Background(), s.Reference)
	require.NoError(t, err)
	assert.Equal(t, []uint64{springReg}, conf.CompletedRegs)
	assert.Equal(t, []uint64{fallReg}, regs.awaiting[studentID])
	assert.Equal(t, 1, invs.paidCount())
}

// Scenario: confirmation attempted after the TTL fails with Expired and
// the invoice stays unpaid.
func TestConfirmAfterTTLFails(t *testing.T) {
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, Amount: 500000, Status: model.InvoiceUnpaid},
	)
	m, _, _ := newTestManager(invs)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.WithClock(fixedClock(start))
	s, err := m.Issue(context.Background(), Subject{StudentID: studentID})
	require.NoError(t, err)

	m.WithClock(fixedClock(start.Add(20 * time.Minute)))
	_, err = m.Confirm(context.Background(), s.Reference)
	assert.ErrorIs(t, err, repository.ErrSessionExpired)
	assert.Equal(t, 0, invs.paidCount())
}

func TestSecondConfirmFailsAlreadyConfirmed(t *testing.T) {
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, Amount: 500000, Status: model.InvoiceUnpaid},
	)
	m, _, _ := newTestManager(invs)

	s, err := m.Issue(context.Background(), Subject{StudentID: studentID})
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), s.Reference)
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), s.Reference)
	assert.ErrorIs(t, err, repository.ErrSessionAlreadyConfirmed)
	assert.Equal(t, 1, invs.paidCount())
}

// N racing confirms: exactly one wins, the rest fail with
// AlreadyConfirmed or Expired, and the invoice is paid exactly once.
func TestConcurrentConfirmExactlyOnce(t *testing.T) {
	invs := newFakeInvoices(
		model.Invoice{ID: 1, StudentID: studentID, Amount: 500000, Status: model.InvoiceUnpaid},
	)
	m, _, _ := newTestManager(invs)

	s, err := m.Issue(context.Background(), Subject{StudentID: studentID})
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Confirm(context.Background(), s.Reference)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, e := range errs {
		if e == nil {
			wins++
			continue
		}
		ok := errors.Is(e, repository.ErrSessionAlreadyConfirmed) ||
			errors.Is(e, repository.ErrSessionExpired)
		assert.True(t, ok, "unexpected error: %v", e)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, invs.paidCount())
}
