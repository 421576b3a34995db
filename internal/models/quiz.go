package models

import (
	"time"

	"github.com/google/uuid"
)

// QuizQuestion is one multiple-choice question; CorrectAnswer indexes Options.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
}

// Quiz belongs to a course.
type Quiz struct {
	ID        uuid.UUID      `json:"id"`
	CourseID  uuid.UUID      `json:"course_id"`
	Title     string         `json:"title"`
	Questions []QuizQuestion `json:"questions"`
	CreatedAt time.Time      `json:"created_at"`
}

// QuizResult is appended on every submission; the latest one counts.
type QuizResult struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	QuizID      uuid.UUID `json:"quiz_id"`
	CourseID    uuid.UUID `json:"course_id"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}
