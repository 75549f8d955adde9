package model

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle of a payment session.  A session is
// CONFIRMED at most once; any confirmation attempt after ExpiresAt must
// fail.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionConfirmed SessionStatus = "CONFIRMED"
	SessionExpired   SessionStatus = "EXPIRED"
)

// PaymentSession is a short-lived payment reference bound to one or
// more invoices of a single student.  The amount is frozen at issuance
// time; invoices added after issuance are not covered by the session.
type PaymentSession struct {
	ID          uint64        // payment_sessions.id
	Reference   string        // payment_sessions.reference (opaque token)
	StudentID   uint64        // payment_sessions.student_id
	InvoiceIDs  []uint64      // payment_sessions.invoice_ids (CSV column)
	Amount      int64         // payment_sessions.amount_vnd
	Status      SessionStatus // payment_sessions.status
	ExpiresAt   time.Time     // payment_sessions.expires_at
	ConfirmedAt *time.Time    // payment_sessions.confirmed_at (nullable)
	CreatedAt   time.Time     // payment_sessions.created_at
}

// ExpiredAt reports whether the session is past its TTL at the given
// instant.  Callers pass time.Now().UTC() so tests can pin the clock.
func (s *PaymentSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// QRPayload renders the string encoded into the payment QR code shown
// to the student.  The format is stable so the mobile banking bridge
// can parse it: DORMPAY|v1|<reference>|<amount>|<unix expiry>.
func (s *PaymentSession) QRPayload() string {
	return fmt.Sprintf("DORMPAY|v1|%s|%d|%d", s.Reference, s.Amount, s.ExpiresAt.Unix())
}
