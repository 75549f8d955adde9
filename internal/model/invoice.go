package model

import "time"

// InvoiceStatus tracks whether an invoice still counts toward a
// student's outstanding balance.  OVERDUE invoices are still unpaid and
// are included when a payment session is issued.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "UNPAID"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

// InvoiceKind labels what an invoice charges for.
type InvoiceKind string

const (
	InvoiceRoomFee InvoiceKind = "ROOM_FEE"
	InvoiceUtility InvoiceKind = "UTILITY"
)

// Invoice is a charge against a student.  Amounts are whole VND.
// RegistrationID links room-fee invoices back to the registration that
// produced them so payment confirmation can complete the registration.
type Invoice struct {
	ID             uint64        // invoices.id
	StudentID      uint64        // invoices.student_id
	RegistrationID *uint64       // invoices.registration_id (nullable)
	Kind           InvoiceKind   // invoices.kind
	Amount         int64         // invoices.amount_vnd
	Status         InvoiceStatus // invoices.status
	DueDate        time.Time     // invoices.due_date
	PaidAt         *time.Time    // invoices.paid_at (nullable)
	CreatedAt      time.Time     // invoices.created_at
	UpdatedAt      time.Time     // invoices.updated_at
}

// Outstanding reports whether the invoice still needs to be paid.
func (i *Invoice) Outstanding() bool {
	return i.Status == InvoiceUnpaid || i.Status == InvoiceOverdue
}
