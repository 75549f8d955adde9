package model

import (
	"errors"
	"time"
)

// RegistrationType describes how a student applies for residency.
// PRIORITY applications carry an additional category plus supporting
// evidence; the category is meaningless for the other two types.
type RegistrationType string

const (
	TypeNormal   RegistrationType = "NORMAL"
	TypePriority RegistrationType = "PRIORITY"
	TypeRenewal  RegistrationType = "RENEWAL"
)

// PriorityCategory refines a PRIORITY registration.  CategoryNone is
// stored for NORMAL and RENEWAL registrations so that the column is
// never NULL.
type PriorityCategory string

const (
	CategoryNone          PriorityCategory = "NONE"
	CategoryPoorHousehold PriorityCategory = "POOR_HOUSEHOLD"
	CategoryDisability    PriorityCategory = "DISABILITY"
	CategoryOther         PriorityCategory = "OTHER"
)

// Status enumerates the lifecycle states of a registration.  COMPLETED,
// REJECTED and CANCELLED are terminal: no transition ever leaves them.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusReturn          Status = "RETURN"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusApproved        Status = "APPROVED"
	StatusCompleted       Status = "COMPLETED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

// Action is a lifecycle event applied to a registration.  The staff
// review actions (APPROVE, REJECT, RETURN) are only legal from PENDING;
// the remaining actions are driven by the system or the student.
type Action string

const (
	ActionApprove  Action = "APPROVE"  // staff: accept and allocate a room
	ActionReject   Action = "REJECT"   // staff: refuse the application
	ActionReturn   Action = "RETURN"   // staff: send back for correction
	ActionResubmit Action = "RESUBMIT" // student: resubmit after correction
	ActionComplete Action = "COMPLETE" // system: final invoice paid
	ActionCancel   Action = "CANCEL"   // student withdrawal or staff override
)

// ErrInvalidTransition is returned by NextStatus when the requested
// action has no edge from the current status.  Handlers translate it
// into HTTP 409.
var ErrInvalidTransition = errors.New("invalid registration transition")

// transitions is the edge table of the approval state machine.  An
// APPROVE edge lands on AWAITING_PAYMENT rather than APPROVED because
// approval only sticks once the assignment engine has found a room; a
// failed allocation leaves the registration in PENDING.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove: StatusAwaitingPayment,
		ActionReject:  StatusRejected,
		ActionReturn:  StatusReturn,
		ActionCancel:  StatusCancelled,
	},
	StatusReturn: {
		ActionResubmit: StatusPending,
		ActionReject:   StatusRejected,
	},
	StatusAwaitingPayment: {
		ActionComplete: StatusCompleted,
		ActionCancel:   StatusCancelled,
	},
}

// NextStatus resolves the status an action leads to from the current
// one.  It returns ErrInvalidTransition when no such edge exists,
// including every action attempted on a terminal status.
func NextStatus(current Status, action Action) (Status, error) {
	if edges, ok := transitions[current]; ok {
		if next, ok := edges[action]; ok {
			return next, nil
		}
	}
	return "", ErrInvalidTransition
}

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// StaffAction reports whether the action belongs to the staff review
// set exposed on the transition endpoint.
func (a Action) StaffAction() bool {
	return a == ActionApprove || a == ActionReject || a == ActionReturn
}

// Registration is a student's application for dormitory residency in a
// given semester.  It corresponds to a row in the `registrations` table.
//
// The priority fields (category, description, evidence) are only
// interpretable when Type is PRIORITY; ValidateIntent enforces that
// structurally at creation time.  AdminNote is replaced, never appended,
// on every staff transition and also carries the allocation failure
// reason when the assignment engine cannot place the student.
type Registration struct {
	ID                  uint64           // registrations.id
	StudentID           uint64           // registrations.student_id
	Semester            string           // registrations.semester
	Type                RegistrationType // registrations.registration_type
	Status              Status           // registrations.status
	DesiredBuildingID   *uint64          // registrations.desired_building_id (nullable)
	PriorityCategory    PriorityCategory // registrations.priority_category
	PriorityDescription string           // registrations.priority_description
	EvidenceFile        *string          // registrations.evidence_file (nullable)
	AdminNote           string           // registrations.admin_note
	AssignedRoomID      *uint64          // registrations.assigned_room_id (nullable)
	CreatedAt           time.Time        // registrations.created_at
	UpdatedAt           time.Time        // registrations.updated_at
}

// ValidateIntent checks the type/category coupling: a PRIORITY
// registration must name a concrete category, and any other type must
// not carry one.  It returns a human-readable error suitable for a 400
// response body.
func (r *Registration) ValidateIntent() error {
	switch r.Type {
	case TypePriority:
		switch r.PriorityCategory {
		case CategoryPoorHousehold, CategoryDisability, CategoryOther:
			return nil
		default:
			return errors.New("priority registration requires a priority category")
		}
	case TypeNormal, TypeRenewal:
		if r.PriorityCategory != "" && r.PriorityCategory != CategoryNone {
			return errors.New("priority category is only valid for priority registrations")
		}
		return nil
	default:
		return errors.New("unknown registration type")
	}
}
