package models

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is issued once per (user, course).
type Certificate struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	CourseID   uuid.UUID `json:"course_id"`
	IssuedDate time.Time `json:"issued_date"`
}
