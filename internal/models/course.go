package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Course is the read-only view of a catalog course used by the commerce pipeline.
type Course struct {
	ID           uuid.UUID       `json:"id"`
	InstructorID uuid.UUID       `json:"instructor_id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IsFree reports whether the course can be enrolled in without checkout.
func (c *Course) IsFree() bool {
	return !c.Price.IsPositive()
}

// Instructor holds the running earnings total credited by paid enrollments.
type Instructor struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Earnings  decimal.Decimal `json:"earnings"`
	CreatedAt time.Time       `json:"created_at"`
}
