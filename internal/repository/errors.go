// Package repository implements the MySQL persistence layer.  This
// file collects the sentinel errors shared across repositories so that
// handlers and services can branch on failure kind with errors.Is.
// Allocation failure is deliberately absent: not finding a room is a
// business outcome carried in the batch result, not an error.
package repository

import "errors"

// ErrRegistrationNotFound is returned when no registration row matches
// the requested id.  Handlers translate it to HTTP 404.
var ErrRegistrationNotFound = errors.New("registration not found")

// ErrRoomNotFound is returned when a room id does not exist.
var ErrRoomNotFound = errors.New("room not found")

// ErrBuildingNotFound is returned when a building id does not exist.
var ErrBuildingNotFound = errors.New("building not found")

// ErrStudentNotFound is returned when a student record is missing,
// including when a login account has no linked student profile.
var ErrStudentNotFound = errors.New("student not found")

// ErrInvoiceNotFound is returned when an invoice id does not exist or
// does not belong to the acting student.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ErrSessionNotFound is returned when a payment reference is unknown.
var ErrSessionNotFound = errors.New("payment session not found")

// ErrSessionExpired is returned when a payment session is past its TTL.
// Handlers translate it to HTTP 410 and a generic "regenerate" message.
var ErrSessionExpired = errors.New("payment session expired")

// ErrSessionAlreadyConfirmed is returned on a duplicate confirmation
// attempt.  Duplicate payment postings must never be applied twice, so
// this is an error rather than a silent success.
var ErrSessionAlreadyConfirmed = errors.New("payment session already confirmed")

// ErrCapacityRace is returned when the conditional room-occupancy
// increment affected zero rows: another allocation won the slot between
// snapshot load and commit.  Callers retry once with a fresh snapshot.
var ErrCapacityRace = errors.New("room capacity changed concurrently")

// ErrStaleStatus is returned when a conditional registration update
// found the row no longer in the expected status.  It means another
// actor transitioned the registration first.
var ErrStaleStatus = errors.New("registration status changed concurrently")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation cannot proceed due to the
// current state of dependent records.  Handlers translate it to 409.
var ErrConflict = errors.New("conflict")
