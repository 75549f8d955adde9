// Package queue defines the notification payloads exchanged over the
// message broker.  Delivery is fire-and-forget: nothing in the
// registration or payment flow depends on a consumer being up.
package queue

// RegistrationDecidedEvent is published when staff approve, reject or
// return a registration, and when an approval fails allocation.
type RegistrationDecidedEvent struct {
	RegistrationID uint64 `json:"registration_id"`
	StudentID      uint64 `json:"student_id"`
	Semester       string `json:"semester"`
	Action         string `json:"action"`
	NewStatus      string `json:"new_status"`
	Note           string `json:"note,omitempty"`
	DecidedAt      string `json:"decided_at"`
}

// RoomAssignedEvent is published when the assignment engine places a
// student in a room.
type RoomAssignedEvent struct {
	RegistrationID uint64 `json:"registration_id"`
	StudentID      uint64 `json:"student_id"`
	RoomID         uint64 `json:"room_id"`
	BuildingID     uint64 `json:"building_id"`
	InvoiceID      uint64 `json:"invoice_id"`
	AmountVND      int64  `json:"amount_vnd"`
	AssignedAt     string `json:"assigned_at"`
}

// PaymentConfirmedEvent is published when a payment session is
// confirmed and its invoices settle.
type PaymentConfirmedEvent struct {
	Reference     string   `json:"reference"`
	StudentID     uint64   `json:"student_id"`
	AmountVND     int64    `json:"amount_vnd"`
	InvoiceIDs    []uint64 `json:"invoice_ids"`
	CompletedRegs []uint64 `json:"completed_registrations,omitempty"`
	ConfirmedAt   string   `json:"confirmed_at"`
}
