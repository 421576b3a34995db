package models

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus is active or completed.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

// CompleteProgress is the progress value at which a course counts as finished.
const CompleteProgress = 100.0

// Enrollment is unique per (user, course).
type Enrollment struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	CourseID   uuid.UUID        `json:"course_id"`
	Progress   float64          `json:"progress"`
	Status     EnrollmentStatus `json:"status"`
	EnrolledAt time.Time        `json:"enrolled_at"`
}

// Completed reports whether progress has reached 100.
func (e *Enrollment) Completed() bool {
	return e.Progress >= CompleteProgress
}
