package model

import "time"

// Student is the directory record consumed by the assignment engine.
// Only the gender matters for allocation; the remaining fields exist
// for display.  Each student links back to a login account via UserID.
type Student struct {
	ID          uint64       // students.id
	UserID      uint64       // students.user_id
	StudentCode string       // students.student_code
	FullName    string       // students.full_name
	Gender      GenderPolicy // students.gender (MALE or FEMALE)
	CreatedAt   time.Time    // students.created_at
	UpdatedAt   time.Time    // students.updated_at
}
